package keys

import (
	"os"
	"time"

	"captioner/pkg/config"
)

// EnvStore reads keys from the provider environment variables. It is read only.
type EnvStore struct {
	getenv func(string) string
}

// NewEnvStore creates an EnvStore over the process environment
func NewEnvStore() *EnvStore {
	return &EnvStore{getenv: os.Getenv}
}

func (e *EnvStore) Name() string { return "env" }

func (e *EnvStore) Set(key *Key) error {
	return ErrStoreUnavailable
}

func (e *EnvStore) Get(provider string) (*Key, error) {
	name, ok := config.ProviderEnvVars[provider]
	if !ok {
		return nil, ErrInvalidKey
	}
	value := e.getenv(name)
	if value == "" {
		return nil, ErrNotFound
	}
	return &Key{Provider: provider, Value: value, LastModified: time.Time{}}, nil
}

func (e *EnvStore) List() ([]*Key, error) {
	var out []*Key
	for provider := range config.ProviderEnvVars {
		if key, err := e.Get(provider); err == nil {
			out = append(out, key)
		}
	}
	return out, nil
}

func (e *EnvStore) Delete(provider string) error {
	return ErrStoreUnavailable
}
