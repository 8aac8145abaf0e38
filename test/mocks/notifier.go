package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// Notice records one in-app notification.
type Notice struct {
	UserID  uint
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]any
}

// MockNotifier records notifications instead of storing them.
type MockNotifier struct {
	mu      sync.Mutex
	Notices []Notice
	Fail    bool
}

// Notify records the notification, or fails when Fail is set.
func (m *MockNotifier) Notify(_ context.Context, userID uint, kind models.NotificationType, title, message string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("notification store unavailable")
	}
	m.Notices = append(m.Notices, Notice{UserID: userID, Type: kind, Title: title, Message: message, Data: data})
	return nil
}

// For returns the notifications addressed to a user.
func (m *MockNotifier) For(userID uint) []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notice
	for _, n := range m.Notices {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}
