package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"captioner/pkg/backend"
	"captioner/pkg/config"
	"captioner/pkg/estimate"
	"captioner/pkg/journal"
	"captioner/pkg/library"
	"captioner/pkg/logger"
	"captioner/pkg/ui"
)

var (
	estimateWorkers int
	showRates       bool
)

// estimateCmd represents the estimate command
var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the cost and time of captioning what is left",
	Long: `Count the photos not yet journaled and project the cost and wall time of
captioning them with the chosen model. Figures are rough per-image averages.`,
	Example: `  captioner estimate --photos-dir ~/Pictures
  captioner estimate --photos-dir ~/Pictures --backend gemini --model gemini-1.5-flash
  captioner estimate --rates`,
	Args: cobra.NoArgs,
	Run:  runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	defaults := config.DefaultConfig()
	f := estimateCmd.Flags()
	f.String("backend", defaults.Backend.Name, "caption backend")
	f.String("model", "", "model name (default depends on the backend)")
	f.StringP("photos-dir", "d", "", "root of the photo library")
	f.StringP("journal", "j", defaults.Paths.Journal, "journal file")
	f.IntVarP(&estimateWorkers, "max-workers", "w", 8, "photos captioned at once")
	f.BoolVar(&showRates, "rates", false, "print the per-image rates and exit")
}

func runEstimate(cmd *cobra.Command, args []string) {
	if showRates {
		ui.RenderRates(os.Stdout, estimate.Rates, estimate.Models())
		return
	}

	cfg, err := config.Load(configFile, changedFlags(cmd, "backend", "model", "photos-dir", "journal"))
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		os.Exit(1)
	}
	if cfg.Paths.PhotosDir == "" {
		ui.PrintError("No photo library given", "use --photos-dir or CAPTIONER_PHOTOS_DIR")
		os.Exit(1)
	}
	model := cfg.Backend.Model
	if model == "" {
		model = backend.DefaultModels[cfg.Backend.Name]
	}

	items, err := library.NewScanner(afero.NewOsFs(), cfg.Paths.PhotosDir, logger.NewNopLogger()).Scan()
	if err != nil {
		ui.PrintError("Failed to scan library", err)
		os.Exit(1)
	}

	records, _, err := journal.ReadAll(cfg.Paths.Journal)
	if err != nil {
		ui.PrintError("Failed to read journal", err)
		os.Exit(1)
	}
	done := 0
	for _, item := range items {
		if _, ok := records[item.Key]; ok {
			done++
		}
	}

	ui.RenderEstimate(os.Stdout, estimate.Compute(cfg.Backend.Name, model, len(items), done, estimateWorkers))
}
