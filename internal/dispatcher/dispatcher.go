// Package dispatcher drives a backlog of photos through a captioning
// capability with bounded concurrency, journaling every outcome before it
// counts as done and stopping at a checkpoint after a fixed number of items.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	errs "captioner/pkg/errors"
	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// DefaultWindow is the number of items submitted to the pool at once
const DefaultWindow = 500

// Capability turns one item into a result string
type Capability interface {
	Process(ctx context.Context, item models.Item) (string, error)
}

// Recorder durably stores one outcome. An error is fatal to the run.
type Recorder interface {
	Write(key string, result *string, status models.Status) error
}

// Outcome is how a run ended
type Outcome string

const (
	// OutcomeNothingToDo means the backlog was empty
	OutcomeNothingToDo Outcome = "nothing_to_do"
	// OutcomeCheckpoint means the restart budget was spent and backlog remains
	OutcomeCheckpoint Outcome = "checkpoint"
	// OutcomeDrained means every pending item was journaled
	OutcomeDrained Outcome = "drained"
	// OutcomeInterrupted means the context was cancelled before the backlog was submitted
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeFailed means an outcome could not be journaled
	OutcomeFailed Outcome = "failed"
)

// ExitCode maps an outcome to the process exit status a supervisor acts on
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeNothingToDo, OutcomeDrained:
		return 0
	case OutcomeCheckpoint:
		return 2
	case OutcomeInterrupted:
		return 130
	default:
		return 1
	}
}

// Result is the outcome of one item
type Result struct {
	Item     models.Item
	Caption  string
	Status   models.Status
	Err      error
	Duration time.Duration
	// WriteErr is set when the outcome could not be journaled
	WriteErr error
	// Skipped items were dequeued after a stop and never processed
	Skipped bool
}

// Options configures a Dispatcher
type Options struct {
	// Workers is the number of items processed at once. 1 runs sequentially.
	Workers int
	// Window is the chunk size submitted to the pool before waiting for it to drain
	Window int
	// RestartEvery caps the items submitted in one run, 0 disables the cap
	RestartEvery int
	Logger       logger.Logger
	// OnResult is called from the dispatching goroutine for every journaled item
	OnResult func(Result)
}

// Report summarizes one run
type Report struct {
	Outcome   Outcome
	Processed int
	Remaining int
	Counts    map[models.Status]int
	Duration  time.Duration
}

// Dispatcher runs pending items through a Capability and a Recorder
type Dispatcher struct {
	capability Capability
	recorder   Recorder
	opts       Options
	logger     logger.Logger
}

// New creates a Dispatcher. Zero Workers and Window take their defaults.
func New(capability Capability, recorder Recorder, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Window < 1 {
		opts.Window = DefaultWindow
	}
	if opts.RestartEvery < 0 {
		opts.RestartEvery = 0
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Dispatcher{
		capability: capability,
		recorder:   recorder,
		opts:       opts,
		logger:     log.WithField("component", "dispatcher"),
	}
}

// run holds the per-run state shared between the dispatching goroutine and the workers
type run struct {
	ctx context.Context
	// work is detached from ctx so in-flight calls finish after a stop request
	work     context.Context
	fatal    atomic.Bool
	report   *Report
	writeErr error
}

func (r *run) stopped() bool {
	return r.fatal.Load() || r.ctx.Err() != nil
}

// Run processes items in order until they are all journaled, the restart
// budget is spent, ctx is cancelled or a journal write fails. Only a journal
// write failure returns an error.
func (d *Dispatcher) Run(ctx context.Context, items []models.Item) (*Report, error) {
	start := time.Now()
	r := &run{
		ctx:  ctx,
		work: context.WithoutCancel(ctx),
		report: &Report{
			Counts: make(map[models.Status]int),
		},
	}

	if len(items) == 0 {
		r.report.Outcome = OutcomeNothingToDo
		d.logger.Info("Nothing to do")
		return r.report, nil
	}

	budget := len(items)
	if d.opts.RestartEvery > 0 && d.opts.RestartEvery < budget {
		budget = d.opts.RestartEvery
	}

	d.logger.InfoWithFields("Processing photos", map[string]interface{}{
		"pending":       len(items),
		"this_run":      budget,
		"workers":       d.opts.Workers,
		"restart_every": d.opts.RestartEvery,
	})

	var submitted int
	if d.opts.Workers == 1 {
		submitted = d.runSequential(r, items[:budget])
	} else {
		submitted = d.runPool(r, items[:budget])
	}

	rep := r.report
	rep.Remaining = len(items) - rep.Processed
	rep.Duration = time.Since(start)

	switch {
	case r.writeErr != nil:
		rep.Outcome = OutcomeFailed
		d.logger.WithError(r.writeErr).Error("Journal write failed, stopping")
		return rep, fmt.Errorf("dispatch stopped: %w", r.writeErr)
	case submitted < budget:
		rep.Outcome = OutcomeInterrupted
		d.logger.InfoWithFields("Interrupted, in-flight photos finished", map[string]interface{}{
			"processed": rep.Processed,
			"remaining": rep.Remaining,
		})
	case rep.Remaining == 0:
		rep.Outcome = OutcomeDrained
	default:
		rep.Outcome = OutcomeCheckpoint
		d.logger.InfoWithFields("Checkpoint reached", map[string]interface{}{
			"processed": rep.Processed,
			"remaining": rep.Remaining,
		})
	}
	return rep, nil
}

// runSequential processes items on the calling goroutine and returns how many were started
func (d *Dispatcher) runSequential(r *run, items []models.Item) int {
	for i, item := range items {
		if r.stopped() {
			return i
		}
		d.collect(r, d.handle(r.work, item))
	}
	return len(items)
}

// runPool submits items one window at a time and waits for each window to
// drain before submitting the next
func (d *Dispatcher) runPool(r *run, items []models.Item) int {
	pool := newWorkerPool(d.opts.Workers, d.opts.Window, func(item models.Item) Result {
		res := d.handle(r.work, item)
		if res.WriteErr != nil {
			r.fatal.Store(true)
		}
		return res
	}, r.stopped, d.logger)
	pool.Start()

	started := 0
	for offset := 0; offset < len(items); offset += d.opts.Window {
		if r.stopped() {
			break
		}
		end := offset + d.opts.Window
		if end > len(items) {
			end = len(items)
		}
		chunk := items[offset:end]
		for _, item := range chunk {
			pool.Submit(item)
		}
		for range chunk {
			res := <-pool.Results()
			if !res.Skipped {
				started++
			}
			d.collect(r, res)
		}
	}

	if err := pool.Stop(); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
	return started
}

// collect accounts for one result on the dispatching goroutine
func (d *Dispatcher) collect(r *run, res Result) {
	if res.Skipped {
		return
	}
	if res.WriteErr != nil {
		if r.writeErr == nil {
			r.writeErr = res.WriteErr
		}
		r.fatal.Store(true)
		return
	}
	r.report.Processed++
	r.report.Counts[res.Status]++
	if d.opts.OnResult != nil {
		d.opts.OnResult(res)
	}
}

// handle processes and journals one item
func (d *Dispatcher) handle(ctx context.Context, item models.Item) Result {
	start := time.Now()
	res := Result{Item: item}

	caption, err := d.invoke(ctx, item)
	if err == nil && caption == "" {
		err = errs.Processing("dispatch", errors.New("empty result"))
	}

	var result *string
	if err != nil {
		res.Err = err
		res.Status = errs.StatusOf(err)
		logger.LogItemFailure(d.logger, item.Key, res.Status.String(), err)
	} else {
		res.Caption = caption
		res.Status = models.StatusSuccess
		result = &caption
	}

	if werr := d.recorder.Write(item.Key, result, res.Status); werr != nil {
		res.WriteErr = werr
	}
	res.Duration = time.Since(start)
	return res
}

// invoke calls the capability, turning a panic into a processing error
func (d *Dispatcher) invoke(ctx context.Context, item models.Item) (caption string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errs.Processing("dispatch", fmt.Errorf("panic: %v", p))
		}
	}()
	return d.capability.Process(ctx, item)
}
