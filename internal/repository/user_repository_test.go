package repository

import (
	"testing"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func TestUserRepository_GetByEmailCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db, "maria@example.com", 0)

	got, err := repo.GetByEmail("MARIA@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, got.ID)
	}

	exists, err := repo.ExistsByEmail("maria@EXAMPLE.com")
	if err != nil || !exists {
		t.Errorf("Expected email to exist, got %v (%v)", exists, err)
	}

	if _, err := repo.GetByEmail("nadie@example.com"); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestUserRepository_AddPointsRecomputesTier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db, "maria@example.com", 180)

	updated, err := repo.AddPoints(user.ID, 25)
	if err != nil {
		t.Fatalf("AddPoints() failed: %v", err)
	}
	if updated.Points != 205 {
		t.Errorf("Expected 205 points, got %d", updated.Points)
	}
	if updated.Tier != models.TierSilver {
		t.Errorf("Expected tier Plata, got %s", updated.Tier)
	}

	stored, _ := repo.GetByID(user.ID)
	if stored.Tier != models.TierSilver {
		t.Errorf("Expected stored tier Plata, got %s", stored.Tier)
	}

	if _, err := repo.AddPoints(999, 10); !IsNotFound(err) {
		t.Errorf("Expected not found for unknown user, got %v", err)
	}
}

func TestUserRepository_ListAndSearch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	createTestUser(t, db, "maria@example.com", 0)
	createTestUser(t, db, "jose@example.com", 0)
	inactive := createTestUser(t, db, "pedro@example.com", 0)
	if err := repo.SetActive(inactive.ID, false); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}

	active := true
	users, total, err := repo.List(Pagination{Page: 1, Limit: 10}, &active)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Errorf("Expected 2 active users, got %d", total)
	}

	found, total, err := repo.Search("jose", Pagination{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if total != 1 || found[0].Email != "jose@example.com" {
		t.Errorf("Unexpected search result: %+v", found)
	}

	if err := repo.SetActive(999, false); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestPagination_Normalize(t *testing.T) {
	p := Pagination{}.Normalize()
	if p.Page != 1 || p.Limit != 10 {
		t.Errorf("Unexpected defaults: %+v", p)
	}
	if (Pagination{Page: 3, Limit: 20}).Offset() != 40 {
		t.Error("Expected offset 40")
	}
	if (Pagination{Page: 1, Limit: 1000}).Normalize().Limit != 100 {
		t.Error("Expected limit to be capped at 100")
	}
}
