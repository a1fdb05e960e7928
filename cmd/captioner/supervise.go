package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"captioner/pkg/config"
	"captioner/pkg/logger"
	"captioner/pkg/supervisor"
	"captioner/pkg/ui"
)

var (
	supervisePause      time.Duration
	superviseSchedule   string
	superviseMaxBatches int
)

// superviseCmd represents the supervise command
var superviseCmd = &cobra.Command{
	Use:   "supervise [flags] -- [run flags]",
	Short: "Run batches until the library is captioned",
	Long: `Start 'captioner run' again and again while it exits with code 2.

Every batch is a fresh process, so memory and connections are released between
batches. The loop stops when a batch exits 0, and any other exit code is
returned as is. Use --schedule to start each batch on a cron window instead of
after a fixed pause.`,
	Example: `  # Batches of 500 photos, 10 seconds apart
  captioner supervise --pause 10s -- --photos-dir ~/Pictures --restart-every 500

  # One batch at the top of every night hour
  captioner supervise --schedule "0 0-6 * * *" -- --photos-dir ~/Pictures --restart-every 2000`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSupervise(cmd, args))
	},
}

func init() {
	rootCmd.AddCommand(superviseCmd)
	defaults := config.DefaultConfig().Supervisor
	f := superviseCmd.Flags()
	f.DurationVar(&supervisePause, "pause", defaults.Pause, "wait between batches")
	f.StringVar(&superviseSchedule, "schedule", "", "cron expression for the start of each batch")
	f.IntVar(&superviseMaxBatches, "max-batches", 0, "stop after this many batches, 0 means no limit")
}

func runSupervise(cmd *cobra.Command, args []string) int {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		return supervisor.ExitFailed
	}
	if cmd.Flags().Changed("pause") {
		cfg.Supervisor.Pause = supervisePause
	}
	if cmd.Flags().Changed("schedule") {
		cfg.Supervisor.Schedule = superviseSchedule
	}
	if cmd.Flags().Changed("max-batches") {
		cfg.Supervisor.MaxBatches = superviseMaxBatches
	}

	if err := logger.Initialize(&config.LoggingConfig{Level: cfg.Logging.Level, NoColor: noColor}, logger.NewRunID()); err != nil {
		ui.PrintError("Failed to initialize logging", err)
		return supervisor.ExitFailed
	}
	log := logger.GetLogger()

	exe, err := os.Executable()
	if err != nil {
		ui.PrintError("Failed to locate the captioner binary", err)
		return supervisor.ExitFailed
	}
	runArgs := []string{"run"}
	if configFile != "" {
		runArgs = append(runArgs, "--config", configFile)
	}
	runArgs = append(runArgs, args...)

	s, err := supervisor.New(supervisor.ExecBatch(exe, runArgs...), supervisor.Options{
		Pause:      cfg.Supervisor.Pause,
		Schedule:   cfg.Supervisor.Schedule,
		MaxBatches: cfg.Supervisor.MaxBatches,
		Logger:     log,
	})
	if err != nil {
		ui.PrintError("Invalid supervisor settings", err)
		return supervisor.ExitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := s.Run(ctx)
	if err != nil {
		ui.PrintError("Supervisor stopped", err)
	}
	log.InfoWithFields("Supervisor finished", map[string]interface{}{
		"batches":   res.Batches,
		"exit_code": res.ExitCode,
	})
	return res.ExitCode
}
