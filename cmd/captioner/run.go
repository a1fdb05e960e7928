package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"captioner/internal/dispatcher"
	"captioner/pkg/config"
	"captioner/pkg/journal"
	"captioner/pkg/keys"
	"captioner/pkg/logger"
	"captioner/pkg/pipeline"
	"captioner/pkg/supervisor"
	"captioner/pkg/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Caption every photo that is not in the journal yet",
	Long: `Caption the photos of a library and append each outcome to the journal.

A photo already journaled is skipped, unless its status is listed in
--retry-status. With --restart-every N the batch stops after N photos and exits
with code 2 so a supervisor can start the next one.

Exit codes:
  0    nothing to do, or the library is fully captioned
  2    checkpoint reached, photos remain
  130  interrupted
  1    fatal error`,
	Example: `  # Caption a library with OpenAI, four requests at a time
  captioner run --photos-dir ~/Pictures --max-workers 4

  # Retry photos that failed on the service side
  captioner run --photos-dir ~/Pictures --retry-status error_capability,error_processing

  # Batches of 500, for use with 'captioner supervise'
  captioner run --photos-dir ~/Pictures --restart-every 500

  # Try the pipeline without calling a model
  captioner run --photos-dir ~/Pictures --dry-run --limit 20`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runBatch(cmd))
	},
}

// runFlagNames are the run flags config.MergeCommandLineFlags understands
var runFlagNames = []string{
	"backend", "model", "prompt", "base-url", "photos-dir", "journal", "retry-status",
	"log-level", "log-file", "max-workers", "window", "restart-every", "limit",
	"max-dimension", "force", "dry-run", "notify",
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

// addRunFlags registers the run flags on cmd. Defaults mirror config.DefaultConfig;
// only flags set on the command line override the config file.
func addRunFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	f := cmd.Flags()
	f.String("backend", defaults.Backend.Name, "caption backend (mock, openai, xai, anthropic, gemini, local)")
	f.String("model", "", "model name (default depends on the backend)")
	f.String("prompt", "", "prompt sent with every photo")
	f.String("base-url", "", "override the backend API base URL")
	f.StringP("photos-dir", "d", "", "root of the photo library")
	f.StringP("journal", "j", defaults.Paths.Journal, "journal file")
	f.String("retry-status", "", "comma separated statuses to process again, e.g. error_capability")
	f.String("log-level", defaults.Logging.Level, "log level (debug, info, warn, error)")
	f.String("log-file", "", "JSON log file (default caption.log next to the journal)")
	f.IntP("max-workers", "w", defaults.Run.MaxWorkers, "photos captioned at once")
	f.Int("window", defaults.Run.Window, "photos submitted before waiting for the workers to drain")
	f.Int("restart-every", 0, "stop the batch after this many photos, 0 disables")
	f.Int("limit", 0, "process at most this many photos, 0 means all")
	f.Int("max-dimension", defaults.Image.MaxDimension, "downscale photos so the longest side fits, 0 keeps the original")
	f.Bool("force", false, "ignore the journal and process every photo again")
	f.Bool("dry-run", false, "use the mock backend, no API calls")
	f.Bool("notify", false, "notify when the batch checkpoints or the library is done")
}

// changedFlags collects the named flags that were set on the command line,
// in the form config.MergeCommandLineFlags expects
func changedFlags(cmd *cobra.Command, names ...string) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()
	for _, name := range names {
		if !fs.Changed(name) {
			continue
		}
		switch fs.Lookup(name).Value.Type() {
		case "string":
			v, _ := fs.GetString(name)
			flags[name] = v
		case "int":
			v, _ := fs.GetInt(name)
			flags[name] = v
		case "bool":
			v, _ := fs.GetBool(name)
			flags[name] = v
		}
	}
	return flags
}

// loadRunConfig loads the configuration and fills in what the command line
// derives: the log file location and the API key from the key store
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, changedFlags(cmd, runFlagNames...))
	if err != nil {
		return nil, err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(filepath.Dir(cfg.Paths.Journal), "caption.log")
	}
	if noColor {
		cfg.Logging.NoColor = true
	}
	return cfg, nil
}

func resolveAPIKey(cfg *config.Config, log logger.Logger) {
	if cfg.Backend.APIKey != "" || cfg.Run.DryRun {
		return
	}
	if _, ok := config.ProviderEnvVars[cfg.Backend.Name]; !ok {
		return
	}
	manager, err := keys.NewManager(cfg.Keys)
	if err != nil {
		log.WithError(err).Warn("Key store unavailable")
		return
	}
	cfg.Backend.APIKey = manager.Resolve(cfg.Backend.Name)
}

func runBatch(cmd *cobra.Command) int {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		return supervisor.ExitFailed
	}
	if cfg.Paths.PhotosDir == "" {
		ui.PrintError("No photo library given", "use --photos-dir or CAPTIONER_PHOTOS_DIR")
		return supervisor.ExitFailed
	}

	if err := logger.Initialize(&cfg.Logging, logger.NewRunID()); err != nil {
		ui.PrintError("Failed to initialize logging", err)
		return supervisor.ExitFailed
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("captioner starting")

	resolveAPIKey(cfg, log)
	b, err := pipeline.LoadBackend(cfg, log)
	if err != nil {
		ui.PrintError("Failed to initialize backend", err)
		return supervisor.ExitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progressOut io.Writer = os.Stderr
	if quiet {
		progressOut = io.Discard
	}
	progress := ui.NewProgress(progressOut)

	runner, err := pipeline.New(pipeline.Options{
		Config:   cfg,
		Backend:  b,
		Logger:   log,
		Observer: progress,
	})
	if err != nil {
		ui.PrintError("Failed to initialize run", err)
		return supervisor.ExitFailed
	}

	notifier := ui.NewNotifier(cfg.Notifications)
	report, err := runner.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, journal.ErrLocked):
			ui.PrintError("Another run is using this journal", cfg.Paths.Journal)
		default:
			ui.PrintError("Run failed", err)
		}
		log.WithError(err).Error("Run failed")
		notifier.Failed(err)
		return supervisor.ExitFailed
	}

	printReport(report)
	switch report.Outcome {
	case dispatcher.OutcomeCheckpoint:
		notifier.Checkpoint(report.Processed, report.Remaining)
	case dispatcher.OutcomeDrained:
		notifier.Drained(report.Processed)
	}
	return report.Outcome.ExitCode()
}

func printReport(report *dispatcher.Report) {
	if quiet {
		return
	}
	switch report.Outcome {
	case dispatcher.OutcomeNothingToDo:
		ui.PrintSuccess("Nothing to do, every photo is journaled")
		return
	case dispatcher.OutcomeDrained:
		ui.PrintSuccess("Library captioned")
	case dispatcher.OutcomeCheckpoint:
		ui.PrintWarning("Checkpoint reached", fmt.Sprintf("%d photos remain", report.Remaining))
	case dispatcher.OutcomeInterrupted:
		ui.PrintWarning("Interrupted", fmt.Sprintf("%d photos remain", report.Remaining))
	}
	ui.PrintInfo("Processed", fmt.Sprintf("%d in %s", report.Processed, ui.FormatDuration(report.Duration)))
	ui.RenderStats(os.Stdout, report.Counts, 0)
}
