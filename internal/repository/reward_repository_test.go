package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// createTestReward creates a catalog reward.
func createTestReward(t *testing.T, repo *RewardRepository, name string, cost int, stock *int) *models.Reward {
	t.Helper()

	reward := &models.Reward{
		Name:           name,
		Description:    name + " description",
		PointsRequired: cost,
		Type:           models.RewardBadge,
		Active:         true,
		Stock:          stock,
	}
	if err := repo.Create(reward); err != nil {
		t.Fatalf("Failed to create test reward: %v", err)
	}
	return reward
}

func newAssignment(userID uint, reward *models.Reward, code string) *models.UserReward {
	return &models.UserReward{
		UserID:     userID,
		RewardID:   reward.ID,
		Code:       code,
		AwardedAt:  time.Now().UTC(),
		PointsUsed: reward.PointsRequired,
		State:      models.UserRewardPending,
	}
}

func TestRewardRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)

	reward := createTestReward(t, repo, "Donante solidario", 200, nil)
	if reward.ID == 0 {
		t.Fatal("Expected reward ID to be set")
	}

	got, err := repo.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Name != "Donante solidario" || got.PointsRequired != 200 {
		t.Errorf("Unexpected reward: %+v", got)
	}
	if got.HasFiniteStock() {
		t.Error("Expected unlimited stock")
	}

	if _, err := repo.GetByID(999); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRewardRepository_ListOrderedByCost(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)

	createTestReward(t, repo, "Oro", 500, nil)
	createTestReward(t, repo, "Bronce", 50, nil)
	inactive := createTestReward(t, repo, "Retirada", 10, nil)
	inactive.Active = false
	if err := repo.Update(inactive); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	active := true
	rewards, total, err := repo.List(RewardFilter{Active: &active}, Pagination{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 2 || len(rewards) != 2 {
		t.Fatalf("Expected 2 active rewards, got total=%d len=%d", total, len(rewards))
	}
	if rewards[0].Name != "Bronce" {
		t.Errorf("Expected cheapest reward first, got %q", rewards[0].Name)
	}
}

func TestRewardRepository_AvailableForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	user := createTestUser(t, db, "ana@example.com", 300)

	cheap := createTestReward(t, repo, "Barata", 100, nil)
	createTestReward(t, repo, "Media", 250, nil)
	createTestReward(t, repo, "Cara", 1000, nil)

	if err := repo.Assign(newAssignment(user.ID, cheap, "INSI-2024-00001"), false); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	available, err := repo.AvailableForUser(user.ID, user.Points)
	if err != nil {
		t.Fatalf("AvailableForUser() failed: %v", err)
	}
	if len(available) != 1 || available[0].Name != "Media" {
		t.Errorf("Expected only 'Media' to be available, got %+v", available)
	}
}

func TestRewardRepository_AssignDecrementsStock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	user := createTestUser(t, db, "ana@example.com", 300)
	reward := createTestReward(t, repo, "Limitada", 200, intPtr(2))

	if err := repo.Assign(newAssignment(user.ID, reward, "INSI-2024-11111"), true); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	got, err := repo.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Stock == nil || *got.Stock != 1 {
		t.Errorf("Expected stock 1, got %v", got.Stock)
	}
}

func TestRewardRepository_AssignTwiceFails(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	user := createTestUser(t, db, "ana@example.com", 300)
	reward := createTestReward(t, repo, "Limitada", 200, intPtr(5))

	if err := repo.Assign(newAssignment(user.ID, reward, "INSI-2024-00001"), true); err != nil {
		t.Fatalf("first Assign() failed: %v", err)
	}
	err := repo.Assign(newAssignment(user.ID, reward, "INSI-2024-00002"), true)
	if !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("Expected ErrAlreadyAssigned, got %v", err)
	}

	// The failed attempt must not consume inventory
	got, _ := repo.GetByID(reward.ID)
	if *got.Stock != 4 {
		t.Errorf("Expected stock 4, got %d", *got.Stock)
	}
}

func TestRewardRepository_ConcurrentAssignLastUnit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	reward := createTestReward(t, repo, "Ultima", 200, intPtr(1))
	users := []*models.User{
		createTestUser(t, db, "a@example.com", 250),
		createTestUser(t, db, "b@example.com", 250),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			errs[i] = repo.Assign(newAssignment(u.ID, reward, "INSI-2024-0000"+string(rune('1'+i))), true)
		}(i, u)
	}
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if succeeded != 1 || outOfStock != 1 {
		t.Errorf("Expected one success and one out-of-stock, got %d/%d", succeeded, outOfStock)
	}

	got, _ := repo.GetByID(reward.ID)
	if *got.Stock != 0 {
		t.Errorf("Expected final stock 0, got %d", *got.Stock)
	}
}

func TestRewardRepository_UpdateUserRewardState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	user := createTestUser(t, db, "ana@example.com", 300)
	reward := createTestReward(t, repo, "Certificado", 100, nil)

	if err := repo.Assign(newAssignment(user.ID, reward, "CERT-2024-12345"), false); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	ur, err := repo.GetUserReward(user.ID, reward.ID)
	if err != nil {
		t.Fatalf("GetUserReward() failed: %v", err)
	}
	now := time.Now().UTC()
	ur.State = models.UserRewardDelivered
	ur.DeliveredAt = &now
	ur.Notes = "entregado en oficina"
	if err := repo.UpdateUserRewardState(ur); err != nil {
		t.Fatalf("UpdateUserRewardState() failed: %v", err)
	}

	got, _ := repo.GetUserReward(user.ID, reward.ID)
	if got.State != models.UserRewardDelivered || got.DeliveredAt == nil {
		t.Errorf("Unexpected assignment after update: %+v", got)
	}
	if got.Reward == nil || got.Reward.Name != "Certificado" {
		t.Error("Expected reward to be preloaded")
	}
}

func TestRewardRepository_HoldersCountAndByType(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRewardRepository(db)
	user := createTestUser(t, db, "ana@example.com", 300)
	reward := createTestReward(t, repo, "Insignia", 100, nil)

	count, _ := repo.GetHoldersCount(reward.ID)
	if count != 0 {
		t.Errorf("Expected 0 holders, got %d", count)
	}

	if err := repo.Assign(newAssignment(user.ID, reward, "INSI-2024-55555"), false); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	count, _ = repo.GetHoldersCount(reward.ID)
	if count != 1 {
		t.Errorf("Expected 1 holder, got %d", count)
	}

	byType, err := repo.CountUserRewardsByType(user.ID)
	if err != nil {
		t.Fatalf("CountUserRewardsByType() failed: %v", err)
	}
	if byType[models.RewardBadge] != 1 {
		t.Errorf("Expected 1 badge, got %v", byType)
	}
}
