package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func TestStatisticsRepository_UpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)

	stat := &models.MonthlyStatistic{Year: 2024, Month: 3, TotalAmount: decimal.NewFromInt(100), DonationCount: 2, GeneratedAt: time.Now().UTC()}
	if err := repo.Upsert(stat); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	stat2 := &models.MonthlyStatistic{Year: 2024, Month: 3, TotalAmount: decimal.NewFromInt(150), DonationCount: 3, GeneratedAt: time.Now().UTC()}
	if err := repo.Upsert(stat2); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	all, err := repo.List(nil, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected one snapshot, got %d", len(all))
	}
	if !all[0].TotalAmount.Equal(decimal.NewFromInt(150)) || all[0].DonationCount != 3 {
		t.Errorf("Expected snapshot to be replaced, got %+v", all[0])
	}
}

func TestStatisticsRepository_NewDonorsAndTopCampaign(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)
	veteran := createTestUser(t, db, "veterano@example.com", 0)
	newcomer := createTestUser(t, db, "nuevo@example.com", 0)
	small := createTestCampaign(t, db, "Pequena", 100)
	big := createTestCampaign(t, db, "Grande", 100)

	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	createTestDonation(t, db, &veteran.ID, &small.ID, "10", models.DonationCompleted, feb)
	createTestDonation(t, db, &veteran.ID, &small.ID, "10", models.DonationCompleted, mar)
	createTestDonation(t, db, &newcomer.ID, &big.ID, "80", models.DonationCompleted, mar)
	createTestDonation(t, db, &newcomer.ID, &big.ID, "5", models.DonationCompleted, mar)

	from, to := models.MonthRange(2024, 3, time.UTC)

	newDonors, err := repo.CountNewDonors(from, to)
	if err != nil {
		t.Fatalf("CountNewDonors() failed: %v", err)
	}
	if newDonors != 1 {
		t.Errorf("Expected 1 new donor, got %d", newDonors)
	}

	top, err := repo.TopCampaign(from, to)
	if err != nil {
		t.Fatalf("TopCampaign() failed: %v", err)
	}
	if top == nil || top.CampaignID != big.ID {
		t.Errorf("Expected campaign %d on top, got %+v", big.ID, top)
	}

	recurring, _ := repo.CountRecurringDonors(from, to)
	if recurring != 1 {
		t.Errorf("Expected 1 recurring donor, got %d", recurring)
	}

	empty, err := repo.TopCampaign(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || empty != nil {
		t.Errorf("Expected no top campaign for an empty month, got %+v (%v)", empty, err)
	}
}
