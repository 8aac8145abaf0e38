// Package testdb opens migrated in-memory SQLite databases for service and handler tests.
package testdb

import (
	"testing"

	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// New returns an empty, migrated database that is closed when the test ends.
func New(t *testing.T) *repository.DB {
	t.Helper()

	db, err := repository.NewDB(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
