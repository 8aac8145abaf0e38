package mocks

import (
	"context"
	"strconv"
)

// MockSettings serves configuration values from a map.
type MockSettings struct {
	Values map[string]string
}

// GetString returns the value of key or def.
func (m *MockSettings) GetString(_ context.Context, key, def string) string {
	if v, ok := m.Values[key]; ok {
		return v
	}
	return def
}

// GetNumber returns the numeric value of key or def.
func (m *MockSettings) GetNumber(_ context.Context, key string, def float64) float64 {
	v, ok := m.Values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}
