package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captioner/pkg/config"
)

func TestChangedFlagsOnlyReportsSetFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--backend", "gemini",
		"-w", "4",
		"--retry-status", "error_capability",
		"--dry-run",
	}))

	flags := changedFlags(cmd, runFlagNames...)
	assert.Equal(t, map[string]interface{}{
		"backend":      "gemini",
		"max-workers":  4,
		"retry-status": "error_capability",
		"dry-run":      true,
	}, flags)

	cfg := config.DefaultConfig()
	cfg.Run.Window = 50
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, "gemini", cfg.Backend.Name)
	assert.Equal(t, 4, cfg.Run.MaxWorkers)
	assert.Equal(t, 50, cfg.Run.Window, "unset flags keep the file value")
	assert.Equal(t, []string{"error_capability"}, cfg.Run.RetryStatus)
	assert.True(t, cfg.Run.DryRun)
}

func TestEveryRunFlagIsRegistered(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	for _, name := range runFlagNames {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
