package mocks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrObjectNotFound is returned by MockStorage.Open for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// MockStorage keeps stored documents in memory.
type MockStorage struct {
	mu      sync.RWMutex
	Objects map[string][]byte
	SaveErr error
}

// NewMockStorage creates an empty MockStorage.
func NewMockStorage() *MockStorage {
	return &MockStorage{Objects: make(map[string][]byte)}
}

// Save stores data under key and returns "/storage/{key}".
func (m *MockStorage) Save(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.Objects[key] = b
	m.mu.Unlock()
	return "/storage/" + key, nil
}

// Open returns the stored bytes.
func (m *MockStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.Objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Delete removes a stored object.
func (m *MockStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.Objects, key)
	m.mu.Unlock()
	return nil
}
