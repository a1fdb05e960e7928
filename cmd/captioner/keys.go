package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"captioner/pkg/config"
	"captioner/pkg/keys"
	"captioner/pkg/ui"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage caption service API keys",
	Long: `Store API keys outside the config file.

Keys are kept in:
  - the system keychain (when available)
  - an encrypted file with PBKDF2 key derivation
  - the provider's environment variable (read only)

Providers: ` + strings.Join(providerNames(), ", "),
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key",
	Long: `Store the API key of a provider. The key is read from a hidden prompt,
or from stdin when it is not a terminal.`,
	Example: `  captioner keys set openai
  echo "$KEY" | captioner keys set gemini`,
	Args: cobra.ExactArgs(1),
	Run:  runKeysSet,
}

var keysShowCmd = &cobra.Command{
	Use:   "show [provider]",
	Short: "Show stored API keys, masked",
	Args:  cobra.MaximumNArgs(1),
	Run:   runKeysShow,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	Run:   runKeysDelete,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

func providerNames() []string {
	names := make([]string, 0, len(config.ProviderEnvVars))
	for name := range config.ProviderEnvVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newKeyManager() *keys.Manager {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		os.Exit(1)
	}
	manager, err := keys.NewManager(cfg.Keys)
	if err != nil {
		ui.PrintError("Failed to initialize key store", err)
		os.Exit(1)
	}
	return manager
}

func runKeysSet(cmd *cobra.Command, args []string) {
	provider := strings.ToLower(strings.TrimSpace(args[0]))
	manager := newKeyManager()

	fmt.Printf("API key for %s: ", provider)
	value, err := readSecret()
	if err != nil {
		ui.PrintError("Failed to read key", err)
		os.Exit(1)
	}

	store, err := manager.Set(provider, value)
	if err != nil {
		ui.PrintError("Failed to store key", err)
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Key for %s stored in %s", provider, store))
}

func runKeysShow(cmd *cobra.Command, args []string) {
	manager := newKeyManager()

	var providers []string
	if len(args) == 1 {
		providers = []string{strings.ToLower(args[0])}
	} else {
		stored, err := manager.List()
		if err != nil {
			ui.PrintError("Failed to list keys", err)
			os.Exit(1)
		}
		for _, key := range stored {
			providers = append(providers, key.Provider)
		}
	}

	var rows [][3]string
	for _, provider := range providers {
		key, store, err := manager.Get(provider)
		if errors.Is(err, keys.ErrNotFound) {
			continue
		}
		if err != nil {
			ui.PrintError("Failed to read key", err)
			os.Exit(1)
		}
		rows = append(rows, [3]string{provider, keys.Mask(key.Value), store})
	}
	ui.RenderKeys(os.Stdout, rows)
}

func runKeysDelete(cmd *cobra.Command, args []string) {
	provider := strings.ToLower(strings.TrimSpace(args[0]))
	if err := newKeyManager().Delete(provider); err != nil {
		ui.PrintError("Failed to delete key", err)
		os.Exit(1)
	}
	ui.PrintSuccess("Key for " + provider + " removed")
}

// readSecret reads one line without echo from a terminal, or plainly from a pipe
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
