package auth

import (
	"context"
	"sync"
)

// Durable storage keys shared with the web client.
const (
	StorageKeyAdminSessionStart = "adminSessionStart"
	StorageKeyRememberedEmail   = "rememberedEmail"
	StorageKeyRememberMe        = "rememberMe"
	StorageKeyLoginAttempts     = "loginAttempts"
	StorageKeyLoginBlockEnd     = "loginBlockEnd"
)

// MemoryStorage is a process local Storage. Useful for tests and for
// clients that do not need state to survive a restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns the keys currently set, in no particular order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

var _ Storage = (*MemoryStorage)(nil)
