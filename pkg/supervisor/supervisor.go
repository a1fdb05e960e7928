// Package supervisor restarts captioning batches until the library is drained.
//
// A batch reports how it ended through its exit code: 0 when nothing is
// left, 2 when it stopped at a checkpoint with work remaining, anything else
// on failure. The supervisor starts the next batch only after a 2.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/robfig/cron/v3"

	"captioner/pkg/logger"
)

// Exit codes a batch reports
const (
	ExitDone        = 0
	ExitFailed      = 1
	ExitCheckpoint  = 2
	ExitInterrupted = 130
)

// BatchFunc runs one batch and returns its exit code. A non-nil error means
// the batch could not be started at all.
type BatchFunc func(ctx context.Context, batch int) (int, error)

// Options configures a Supervisor
type Options struct {
	// Pause is waited between batches when there is no Schedule
	Pause time.Duration
	// Schedule is a standard five field cron expression. Each batch starts
	// at the next activation.
	Schedule string
	// MaxBatches stops the loop after that many batches, 0 means no limit
	MaxBatches int
	Logger     logger.Logger

	// now and sleep are replaced in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Result is how the supervised loop ended
type Result struct {
	Batches  int
	ExitCode int
}

// Supervisor runs batches in a loop
type Supervisor struct {
	run      BatchFunc
	opts     Options
	schedule cron.Schedule
	logger   logger.Logger
}

// New creates a Supervisor
func New(run BatchFunc, opts Options) (*Supervisor, error) {
	if run == nil {
		return nil, errors.New("supervisor: batch function is required")
	}
	if opts.MaxBatches < 0 {
		return nil, errors.New("supervisor: max batches cannot be negative")
	}
	s := &Supervisor{run: run, opts: opts}
	if opts.Schedule != "" {
		sched, err := cron.ParseStandard(opts.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
		}
		s.schedule = sched
	}
	if s.opts.now == nil {
		s.opts.now = time.Now
	}
	if s.opts.sleep == nil {
		s.opts.sleep = sleep
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	s.logger = log.WithField("component", "supervisor")
	return s, nil
}

// Run starts batches until one drains the library, fails, or MaxBatches is
// reached. Cancelling ctx stops the loop between batches with exit code 130.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	var res Result
	for batch := 1; ; batch++ {
		if err := s.waitTurn(ctx, batch); err != nil {
			res.ExitCode = ExitInterrupted
			return res, nil
		}

		s.logger.InfoWithFields("Starting batch", map[string]interface{}{
			"batch": batch,
		})
		start := s.opts.now()
		code, err := s.run(ctx, batch)
		res.Batches = batch
		if err != nil {
			res.ExitCode = ExitFailed
			return res, fmt.Errorf("batch %d: %w", batch, err)
		}
		res.ExitCode = code

		fields := map[string]interface{}{
			"batch":     batch,
			"exit_code": code,
			"duration":  s.opts.now().Sub(start).Round(time.Millisecond),
		}
		switch code {
		case ExitCheckpoint:
			if ctx.Err() != nil {
				res.ExitCode = ExitInterrupted
				return res, nil
			}
			if s.opts.MaxBatches > 0 && batch >= s.opts.MaxBatches {
				s.logger.InfoWithFields("Max batches reached, work remains", fields)
				return res, nil
			}
			s.logger.InfoWithFields("Batch checkpointed, restarting", fields)
		case ExitDone:
			s.logger.InfoWithFields("Library drained", fields)
			return res, nil
		default:
			s.logger.WarnWithFields("Batch failed, stopping", fields)
			return res, nil
		}
	}
}

// waitTurn blocks until batch may start
func (s *Supervisor) waitTurn(ctx context.Context, batch int) error {
	var d time.Duration
	switch {
	case s.schedule != nil:
		now := s.opts.now()
		next := s.schedule.Next(now)
		d = next.Sub(now)
		s.logger.InfoWithFields("Waiting for schedule", map[string]interface{}{
			"batch":    batch,
			"start_at": next.Format(time.RFC3339),
		})
	case batch > 1:
		d = s.opts.Pause
	}
	if d <= 0 {
		return ctx.Err()
	}
	return s.opts.sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecBatch returns a BatchFunc that runs name with args as a child process,
// sharing this process's stdio. Cancelling ctx forwards an interrupt so the
// child can finish its in-flight photos.
func ExecBatch(name string, args ...string) BatchFunc {
	return func(ctx context.Context, batch int) (int, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error {
			return cmd.Process.Signal(os.Interrupt)
		}
		cmd.WaitDelay = 5 * time.Minute

		err := cmd.Run()
		if err == nil {
			return ExitDone, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				return code, nil
			}
			return ExitInterrupted, nil
		}
		return ExitFailed, err
	}
}
