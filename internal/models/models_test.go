package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTierForPoints(t *testing.T) {
	tests := []struct {
		points int
		want   DonorTier
	}{
		{0, TierBronze},
		{199, TierBronze},
		{200, TierSilver},
		{205, TierSilver},
		{499, TierSilver},
		{500, TierGold},
		{999, TierGold},
		{1000, TierPlatinum},
		{25000, TierPlatinum},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForPoints(tt.points), "points=%d", tt.points)
	}
}

func TestRewardType_CodePrefix(t *testing.T) {
	assert.Equal(t, "INSI", RewardBadge.CodePrefix())
	assert.Equal(t, "CERT", RewardCertificate.CodePrefix())
	assert.Equal(t, "EXPE", RewardExperience.CodePrefix())
	assert.Equal(t, "DESC", RewardDiscount.CodePrefix())
	assert.False(t, RewardType("Cupon").Valid())
}

func TestFrequency(t *testing.T) {
	assert.Equal(t, 1, FrequencyMonthly.Months())
	assert.Equal(t, 3, FrequencyQuarterly.Months())
	assert.Equal(t, 12, FrequencyYearly.Months())
	assert.False(t, Frequency("Semanal").Valid())
}

func TestSubscription_MonthlyEquivalent(t *testing.T) {
	s := Subscription{Amount: decimal.NewFromInt(120), Frequency: FrequencyYearly}
	assert.True(t, decimal.NewFromInt(10).Equal(s.MonthlyEquivalent()))

	s.Frequency = FrequencyQuarterly
	assert.True(t, decimal.NewFromInt(40).Equal(s.MonthlyEquivalent()))

	s.Frequency = "unknown"
	assert.True(t, s.MonthlyEquivalent().IsZero())
}

func TestCampaign_ProgressPercent(t *testing.T) {
	c := Campaign{GoalAmount: decimal.NewFromInt(1000), RaisedAmount: decimal.NewFromInt(250)}
	assert.InDelta(t, 25.0, c.ProgressPercent(), 0.001)

	c.GoalAmount = decimal.Zero
	assert.Equal(t, 0.0, c.ProgressPercent())
}

func TestPaymentMethod_DisplayName(t *testing.T) {
	assert.Equal(t, "Personal", (&PaymentMethod{Alias: "Personal", Type: PaymentCard}).DisplayName())
	assert.Equal(t, "Tarjeta terminada en 4242", (&PaymentMethod{Type: PaymentCard, LastDigits: "4242"}).DisplayName())
	assert.Equal(t, "Cuenta PayPal", (&PaymentMethod{Type: PaymentPayPal}).DisplayName())
}

func TestDonation_OwnedBy(t *testing.T) {
	uid := uint(7)
	d := Donation{UserID: &uid, State: DonationCompleted}
	assert.True(t, d.OwnedBy(7))
	assert.False(t, d.OwnedBy(8))
	assert.True(t, d.IsCompleted())
	assert.False(t, (&Donation{}).OwnedBy(7))
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(2024, 12, nil)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
