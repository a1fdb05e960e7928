package keys

import (
	"sync"
)

// MemoryStore keeps keys in memory. Used in tests, with optional error injection.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]Key

	SetError    error
	GetError    error
	DeleteError error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]Key)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Set(key *Key) error {
	if m.SetError != nil {
		return m.SetError
	}
	if key == nil || key.Provider == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.Provider] = *key
	return nil
}

func (m *MemoryStore) Get(provider string) (*Key, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[provider]
	if !ok {
		return nil, ErrNotFound
	}
	return &key, nil
}

func (m *MemoryStore) List() ([]*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Key, 0, len(m.keys))
	for _, key := range m.keys {
		k := key
		out = append(out, &k)
	}
	return out, nil
}

func (m *MemoryStore) Delete(provider string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[provider]; !ok {
		return ErrNotFound
	}
	delete(m.keys, provider)
	return nil
}

// Count returns the number of keys held
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}
