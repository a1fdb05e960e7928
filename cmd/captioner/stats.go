package main

import (
	"os"

	"github.com/spf13/cobra"

	"captioner/pkg/config"
	"captioner/pkg/journal"
	"captioner/pkg/ui"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many photos are in each status",
	Long: `Read the journal and print the number of photos per status.

Later records of a photo supersede earlier ones, so each photo is counted once.`,
	Example: `  captioner stats
  captioner stats --journal ~/Pictures/captions.jsonl`,
	Args: cobra.NoArgs,
	Run:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("journal", "j", config.DefaultConfig().Paths.Journal, "journal file")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, changedFlags(cmd, "journal"))
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		os.Exit(1)
	}

	records, discarded, err := journal.ReadAll(cfg.Paths.Journal)
	if err != nil {
		ui.PrintError("Failed to read journal", err)
		os.Exit(1)
	}

	ui.PrintInfo("Journal", cfg.Paths.Journal)
	ui.RenderStats(os.Stdout, journal.CountByStatus(records), discarded)
}
