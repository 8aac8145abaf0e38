package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/cache"
)

// MockCache is an in-memory mock implementation of the Cache interface
// with injectable failures. Entries never expire.
type MockCache struct {
	data map[string]string
	mu   sync.RWMutex

	GetErr error
	SetErr error
	DelErr error

	Sets int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string]string)}
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return val, nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.Sets++
	return nil
}

// Del removes keys from the mock cache
func (m *MockCache) Del(_ context.Context, keys ...string) error {
	if m.DelErr != nil {
		return m.DelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Keys returns the stored keys.
func (m *MockCache) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// Health always succeeds.
func (m *MockCache) Health(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockCache) Close() error {
	return nil
}
