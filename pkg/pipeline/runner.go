package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"captioner/internal/dispatcher"
	"captioner/pkg/backend"
	"captioner/pkg/config"
	"captioner/pkg/imageload"
	"captioner/pkg/journal"
	"captioner/pkg/library"
	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// Observer follows a run as it happens. Advance is called once per
// journaled photo, in completion order.
type Observer interface {
	Start(pending int)
	Advance(key string, status models.Status)
	Finish()
}

// Options configures a Runner
type Options struct {
	Config *config.Config
	// Fs is the filesystem the library is read from, the OS by default.
	// The journal always lives on the real filesystem.
	Fs      afero.Fs
	Backend backend.Backend
	Logger  logger.Logger
	// Observer is optional
	Observer Observer
}

// Runner executes one batch: resume from the journal, find what is left,
// caption up to the restart budget and report how the batch ended
type Runner struct {
	cfg      *config.Config
	fs       afero.Fs
	backend  backend.Backend
	observer Observer
	logger   logger.Logger
}

// New creates a Runner
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("pipeline: backend is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		cfg:      opts.Config,
		fs:       opts.Fs,
		backend:  opts.Backend,
		observer: opts.Observer,
		logger:   log.WithField("component", "pipeline"),
	}, nil
}

// Run processes one batch. The error is non-nil only when the batch could
// not start or when an outcome could not be journaled.
func (r *Runner) Run(ctx context.Context) (*dispatcher.Report, error) {
	start := time.Now()
	cfg := r.cfg

	retrySet, err := cfg.RetrySet()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Journal), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	lock, err := journal.AcquireLock(cfg.Paths.Journal)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	j := journal.New(cfg.Paths.Journal, r.logger)
	defer j.Close()

	if cfg.Run.Force {
		r.logger.Info("Force: ignoring the journal, every photo is processed again")
	} else {
		if _, err := j.Load(retrySet); err != nil {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
		if j.Len() > 0 {
			r.logger.InfoWithFields(j.Summary(), map[string]interface{}{
				"retry_status": statusNames(retrySet.Slice()),
			})
		}
	}

	items, err := library.NewScanner(r.fs, cfg.Paths.PhotosDir, r.logger).Scan()
	if err != nil {
		return nil, err
	}

	pending := make([]models.Item, 0, len(items))
	for _, item := range items {
		if !j.IsDone(item.Key) {
			pending = append(pending, item)
		}
	}
	if cfg.Run.Limit > 0 && len(pending) > cfg.Run.Limit {
		pending = pending[:cfg.Run.Limit]
	}

	workers := cfg.Run.MaxWorkers
	if workers > 1 && backend.SingleDevice(r.backend.Name()) {
		r.logger.WarnWithFields("Backend runs on a single device, using one worker", map[string]interface{}{
			"requested": workers,
		})
		workers = 1
	}

	logger.LogComponentStart(r.logger, "pipeline", map[string]interface{}{
		"photos":  len(items),
		"pending": len(pending),
		"backend": r.backend.Name(),
		"workers": workers,
		"dry_run": cfg.Run.DryRun,
	})

	loader := imageload.NewLoader(r.fs, imageload.Options{
		MaxDimension: cfg.Image.MaxDimension,
		Quality:      cfg.Image.JPEGQuality,
	})

	opts := dispatcher.Options{
		Workers:      workers,
		Window:       cfg.Run.Window,
		RestartEvery: cfg.Run.RestartEvery,
		Logger:       r.logger,
	}
	if r.observer != nil {
		budget := len(pending)
		if cfg.Run.RestartEvery > 0 && cfg.Run.RestartEvery < budget {
			budget = cfg.Run.RestartEvery
		}
		r.observer.Start(budget)
		defer r.observer.Finish()
		opts.OnResult = func(res dispatcher.Result) {
			r.observer.Advance(res.Item.Key, res.Status)
		}
	}

	report, runErr := dispatcher.New(NewCaptioner(loader, r.backend), j, opts).Run(ctx, pending)
	if closeErr := j.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close journal: %w", closeErr)
	}
	if report != nil {
		counts := make(map[string]int, len(report.Counts))
		for status, n := range report.Counts {
			counts[status.String()] = n
		}
		logger.LogRunSummary(r.logger, string(report.Outcome), report.Processed, report.Remaining, counts, time.Since(start))
	}
	return report, runErr
}

func statusNames(statuses []models.Status) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.String()
	}
	return names
}
