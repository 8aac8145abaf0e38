package repository

import (
	"testing"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func TestConfigurationRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConfigurationRepository(db)

	cfg := &models.Configuration{Key: models.ConfigKeyPointsPerDollar, Value: "2", Type: models.ConfigNumber, Editable: true}
	if err := repo.Create(cfg); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	dup := &models.Configuration{Key: models.ConfigKeyPointsPerDollar, Value: "3", Type: models.ConfigNumber}
	if err := repo.Create(dup); !IsDuplicate(err) {
		t.Errorf("Expected duplicate key error, got %v", err)
	}

	got, err := repo.GetByKey(models.ConfigKeyPointsPerDollar)
	if err != nil {
		t.Fatalf("GetByKey() failed: %v", err)
	}
	if got.Value != "2" || !got.Editable {
		t.Errorf("Unexpected configuration: %+v", got)
	}

	many, err := repo.GetByKeys([]string{models.ConfigKeyPointsPerDollar, "missing"})
	if err != nil || len(many) != 1 {
		t.Errorf("Expected one configuration, got %d (%v)", len(many), err)
	}

	if err := repo.Delete(models.ConfigKeyPointsPerDollar); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := repo.Delete(models.ConfigKeyPointsPerDollar); !IsNotFound(err) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}
