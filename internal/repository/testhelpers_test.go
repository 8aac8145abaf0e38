package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	// Every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	wrapped := &DB{db}
	if err := wrapped.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = wrapped.Close() })
	return wrapped
}

// createTestUser creates a donor with the given email.
func createTestUser(t *testing.T, db *DB, email string, points int) *models.User {
	t.Helper()

	user := &models.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Role:      models.RoleDonor,
		Active:    true,
		Points:    points,
		Tier:      models.TierForPoints(points),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestCampaign creates an active campaign.
func createTestCampaign(t *testing.T, db *DB, name string, goal int64) *models.Campaign {
	t.Helper()

	campaign := &models.Campaign{
		Name:       name,
		GoalAmount: decimal.NewFromInt(goal),
		StartDate:  time.Now().UTC().AddDate(0, -1, 0),
		State:      models.CampaignActive,
	}
	if err := db.Create(campaign).Error; err != nil {
		t.Fatalf("Failed to create test campaign: %v", err)
	}
	return campaign
}

// createTestDonation inserts a donation in the given state.
func createTestDonation(t *testing.T, db *DB, userID, campaignID *uint, amount string, state models.DonationState, at time.Time) *models.Donation {
	t.Helper()

	donation := &models.Donation{
		UserID:           userID,
		CampaignID:       campaignID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         models.DefaultCurrency,
		DonatedAt:        at,
		PaymentMethod:    models.PaymentCard,
		PaymentReference: "ref",
		State:            state,
	}
	if err := db.Create(donation).Error; err != nil {
		t.Fatalf("Failed to create test donation: %v", err)
	}
	return donation
}

func uintPtr(v uint) *uint {
	return &v
}

func intPtr(v int) *int {
	return &v
}
