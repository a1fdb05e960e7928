// Package keys stores caption service API keys outside the config file.
//
// Keys are looked up in the system keychain first, then in an encrypted
// file, then in the provider's environment variable.
package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"captioner/pkg/config"
)

// Key is one provider's API key
type Key struct {
	Provider     string    `json:"provider"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a place keys can be kept
type Store interface {
	Name() string
	Set(key *Key) error
	Get(provider string) (*Key, error)
	List() ([]*Key, error)
	Delete(provider string) error
}

var (
	ErrNotFound         = errors.New("key not found")
	ErrInvalidKey       = errors.New("invalid key")
	ErrStoreUnavailable = errors.New("key store unavailable")
)

// Manager reads and writes keys across an ordered list of stores
type Manager struct {
	stores []Store
}

// NewManager builds the store chain named by cfg.Store: auto, keyring, file or env
func NewManager(cfg config.KeysConfig) (*Manager, error) {
	file := cfg.File
	if file == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		file = filepath.Join(dir, "keys.enc")
	}

	var stores []Store
	switch cfg.Store {
	case "", "auto":
		if ks, err := NewKeyringStore(); err == nil {
			stores = append(stores, ks)
		}
		fs, err := NewFileStore(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, fs, NewEnvStore())
	case "keyring":
		ks, err := NewKeyringStore()
		if err != nil {
			return nil, err
		}
		stores = append(stores, ks, NewEnvStore())
	case "file":
		fs, err := NewFileStore(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, fs, NewEnvStore())
	case "env":
		stores = append(stores, NewEnvStore())
	default:
		return nil, fmt.Errorf("unknown key store %q (want auto, keyring, file or env)", cfg.Store)
	}
	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, in lookup order
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Set saves value for provider in the first store that accepts it and
// returns that store's name
func (m *Manager) Set(provider, value string) (string, error) {
	if err := validateProvider(provider); err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidKey)
	}

	key := &Key{Provider: provider, Value: value, LastModified: time.Now()}
	var lastErr error
	for _, store := range m.stores {
		err := store.Set(key)
		if err == nil {
			return store.Name(), nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("failed to store key: %w", lastErr)
	}
	return "", ErrStoreUnavailable
}

// Get returns provider's key from the first store that has it
func (m *Manager) Get(provider string) (*Key, string, error) {
	for _, store := range m.stores {
		if key, err := store.Get(provider); err == nil && key != nil {
			return key, store.Name(), nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, provider)
}

// Resolve returns provider's key value, or "" when no store has one
func (m *Manager) Resolve(provider string) string {
	key, _, err := m.Get(provider)
	if err != nil {
		return ""
	}
	return key.Value
}

// List returns the newest key per provider across every store, sorted by provider
func (m *Manager) List() ([]*Key, error) {
	latest := make(map[string]*Key)
	for _, store := range m.stores {
		keys, err := store.List()
		if err != nil {
			continue
		}
		for _, key := range keys {
			if existing, ok := latest[key.Provider]; !ok || key.LastModified.After(existing.LastModified) {
				latest[key.Provider] = key
			}
		}
	}

	out := make([]*Key, 0, len(latest))
	for _, key := range latest {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Delete removes provider's key from every store that has it
func (m *Manager) Delete(provider string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		err := store.Delete(provider)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete key: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, provider)
	}
	return nil
}

// Mask hides all but the first and last four characters of a key
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func validateProvider(provider string) error {
	if _, ok := config.ProviderEnvVars[provider]; !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidKey, provider)
	}
	return nil
}

// ConfigDir returns the per-user captioner configuration directory, creating it
func ConfigDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "captioner")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "captioner")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "captioner")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "captioner")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
