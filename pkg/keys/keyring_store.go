package keys

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"captioner/pkg/config"
)

const keyringService = "captioner"

// KeyringStore keeps keys in the system keychain
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore if the keychain accepts writes
func NewKeyringStore() (*KeyringStore, error) {
	probe := "availability_probe"
	if err := keyring.Set(keyringService, probe, "probe"); err != nil {
		return nil, fmt.Errorf("%w: keyring: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Set(key *Key) error {
	if key == nil || key.Provider == "" {
		return ErrInvalidKey
	}
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := keyring.Set(keyringService, key.Provider, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Get(provider string) (*Key, error) {
	if provider == "" {
		return nil, ErrInvalidKey
	}
	data, err := keyring.Get(keyringService, provider)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var key Key
	if err := json.Unmarshal([]byte(data), &key); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key: %w", err)
	}
	return &key, nil
}

// List probes every known provider, the keychain API cannot enumerate entries
func (k *KeyringStore) List() ([]*Key, error) {
	var out []*Key
	for provider := range config.ProviderEnvVars {
		if key, err := k.Get(provider); err == nil {
			out = append(out, key)
		}
	}
	return out, nil
}

func (k *KeyringStore) Delete(provider string) error {
	if provider == "" {
		return ErrInvalidKey
	}
	if err := keyring.Delete(keyringService, provider); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
