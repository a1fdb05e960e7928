package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"captioner/pkg/config"
	"captioner/pkg/logger"
	"captioner/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage captioner configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (CAPTIONER_*, provider API key variables)
  - config.env, .env and ~/.captioner.env
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write the default configuration as YAML.

The file is created as '.captioner.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	Run:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	Run:   runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = config.SearchPaths()[0]
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", path)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		ui.PrintError("Failed to create configuration file", err)
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set paths.photos_dir and backend.name in the file")
	fmt.Println("2. Store an API key with 'captioner keys set <provider>'")
	fmt.Println("3. Check the setup with 'captioner config validate'")
	fmt.Println("4. Start with 'captioner run --dry-run --limit 10'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		os.Exit(1)
	}

	// backend.APIKey is excluded from YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err)
		os.Exit(1)
	}
	fmt.Print(string(data))

	if cfg.Backend.APIKey != "" {
		fmt.Printf("\n# API key for %s found in the environment\n", cfg.Backend.Name)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err)
		os.Exit(1)
	}

	var warnings []string
	if cfg.Paths.PhotosDir == "" {
		warnings = append(warnings, "paths.photos_dir is not set, pass --photos-dir to run")
	} else if info, err := os.Stat(cfg.Paths.PhotosDir); err != nil || !info.IsDir() {
		warnings = append(warnings, fmt.Sprintf("photo library %s is not a readable directory", cfg.Paths.PhotosDir))
	}
	if _, ok := config.ProviderEnvVars[cfg.Backend.Name]; ok {
		resolveAPIKey(cfg, logger.NewNopLogger())
		if cfg.Backend.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("no API key for %s, use 'captioner keys set %s' or %s",
				cfg.Backend.Name, cfg.Backend.Name, config.ProviderEnvVars[cfg.Backend.Name]))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Backend: %s\n", cfg.Backend.Name)
	fmt.Printf("  Photo library: %s\n", cfg.Paths.PhotosDir)
	fmt.Printf("  Journal: %s\n", cfg.Paths.Journal)
	fmt.Printf("  Workers: %d\n", cfg.Run.MaxWorkers)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max retries: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
