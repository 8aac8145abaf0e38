package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
)

// User inserts an active donor with the given email and points.
func User(t *testing.T, db *repository.DB, email string, points int) *models.User {
	t.Helper()
	u := &models.User{
		FirstName: "Ana",
		LastName:  "Torres",
		Email:     email,
		Role:      models.RoleDonor,
		Active:    true,
		Points:    points,
		Tier:      models.TierForPoints(points),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return u
}

// Campaign inserts an active campaign with the given goal.
func Campaign(t *testing.T, db *repository.DB, name string, goal int64) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		Name:       name,
		GoalAmount: decimal.NewFromInt(goal),
		StartDate:  time.Now().AddDate(0, -1, 0),
		State:      models.CampaignActive,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("Failed to create campaign %s: %v", name, err)
	}
	return c
}

// PaymentMethod inserts an active card for the user.
func PaymentMethod(t *testing.T, db *repository.DB, userID uint) *models.PaymentMethod {
	t.Helper()
	pm := &models.PaymentMethod{
		UserID:         userID,
		Type:           models.PaymentCard,
		TokenReference: fmt.Sprintf("tok_%d_%d", userID, time.Now().UnixNano()),
		LastDigits:     "4242",
		Active:         true,
	}
	if err := db.Create(pm).Error; err != nil {
		t.Fatalf("Failed to create payment method: %v", err)
	}
	return pm
}

// Donation inserts a donation in the given state.
func Donation(t *testing.T, db *repository.DB, userID, campaignID *uint, amount string, state models.DonationState, at time.Time) *models.Donation {
	t.Helper()
	d := &models.Donation{
		UserID:           userID,
		CampaignID:       campaignID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         models.DefaultCurrency,
		DonatedAt:        at,
		PaymentMethod:    models.PaymentCard,
		PaymentReference: fmt.Sprintf("ref_%d", time.Now().UnixNano()),
		State:            state,
		AcceptedTerms:    true,
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("Failed to create donation: %v", err)
	}
	return d
}

// Reward inserts an active catalog reward. A nil stock means unlimited.
func Reward(t *testing.T, db *repository.DB, name string, points int, stock *int) *models.Reward {
	t.Helper()
	r := &models.Reward{
		Name:           name,
		PointsRequired: points,
		Type:           models.RewardBadge,
		Active:         true,
		Stock:          stock,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("Failed to create reward %s: %v", name, err)
	}
	return r
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
