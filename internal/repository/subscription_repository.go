package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// SubscriptionFilter narrows subscription listings.
type SubscriptionFilter struct {
	State  *models.SubscriptionState
	UserID *uint
}

// SubscriptionRepository handles recurring donation schedules.
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create stores a subscription.
func (r *SubscriptionRepository) Create(s *models.Subscription) error {
	if err := r.db.Create(s).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription with its payment method and campaign.
func (r *SubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Preload("PaymentMethod").Preload("Campaign").First(&s, id).Error
	if err != nil {
		return nil, lookupErr(err, "subscription %d", id)
	}
	return &s, nil
}

// Update saves the subscription.
func (r *SubscriptionRepository) Update(s *models.Subscription) error {
	err := r.db.Omit("User", "Campaign", "PaymentMethod").Save(s).Error
	if err != nil {
		return fmt.Errorf("failed to update subscription %d: %w", s.ID, err)
	}
	return nil
}

// List returns a page of subscriptions, newest first.
func (r *SubscriptionRepository) List(f SubscriptionFilter, p Pagination) ([]models.Subscription, int64, error) {
	query := r.db.Model(&models.Subscription{})
	if f.State != nil {
		query = query.Where("estado = ?", *f.State)
	}
	if f.UserID != nil {
		query = query.Where("id_usuario = ?", *f.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	var items []models.Subscription
	err := query.Scopes(paginate(p)).
		Preload("Campaign").
		Preload("PaymentMethod").
		Order("fecha_creacion DESC, id_suscripcion DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return items, total, nil
}

// Due returns active subscriptions whose next charge date is not after now.
func (r *SubscriptionRepository) Due(now time.Time) ([]models.Subscription, error) {
	var items []models.Subscription
	err := r.db.
		Preload("PaymentMethod").
		Preload("User").
		Where("estado = ? AND proxima_donacion <= ?", models.SubscriptionActive, now).
		Order("proxima_donacion ASC, id_suscripcion ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get due subscriptions: %w", err)
	}
	return items, nil
}

// ChargingBetween returns active subscriptions whose next charge falls within [from, to).
func (r *SubscriptionRepository) ChargingBetween(from, to time.Time) ([]models.Subscription, error) {
	var items []models.Subscription
	err := r.db.
		Preload("User").
		Preload("Campaign").
		Where("estado = ? AND proxima_donacion >= ? AND proxima_donacion < ?", models.SubscriptionActive, from, to).
		Order("proxima_donacion ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming subscriptions: %w", err)
	}
	return items, nil
}

// ClaimCharge advances the next charge date of an active, due subscription.
// It returns false when another run already moved the schedule past now.
func (r *SubscriptionRepository) ClaimCharge(id uint, now, next time.Time) (bool, error) {
	res := r.db.Model(&models.Subscription{}).
		Where("id_suscripcion = ? AND estado = ? AND proxima_donacion <= ?", id, models.SubscriptionActive, now).
		Updates(map[string]any{
			"proxima_donacion":     next,
			"ultima_actualizacion": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim subscription %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseCharge restores the next charge date after a failed charge.
func (r *SubscriptionRepository) ReleaseCharge(id uint, previous time.Time) error {
	return r.db.Model(&models.Subscription{}).
		Where("id_suscripcion = ?", id).
		Update("proxima_donacion", previous).Error
}

// AddCharge increments the cumulative totals.
func (r *SubscriptionRepository) AddCharge(id uint, amount decimal.Decimal) error {
	res := r.db.Model(&models.Subscription{}).
		Where("id_suscripcion = ?", id).
		Updates(map[string]any{
			"total_donado":         gorm.Expr("total_donado + ?", amount),
			"total_donaciones":     gorm.Expr("total_donaciones + 1"),
			"ultima_actualizacion": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to add charge to subscription %d: %w", id, res.Error)
	}
	return nil
}

// ListActive returns every active subscription.
func (r *SubscriptionRepository) ListActive() ([]models.Subscription, error) {
	var items []models.Subscription
	err := r.db.Where("estado = ?", models.SubscriptionActive).Find(&items).Error
	return items, err
}

// ActiveForUser returns the user's active subscriptions.
func (r *SubscriptionRepository) ActiveForUser(userID uint) ([]models.Subscription, error) {
	var items []models.Subscription
	err := r.db.Where("id_usuario = ? AND estado = ?", userID, models.SubscriptionActive).Find(&items).Error
	return items, err
}

// CountByState returns the number of subscriptions per state.
func (r *SubscriptionRepository) CountByState() (map[models.SubscriptionState]int64, error) {
	type row struct {
		State models.SubscriptionState
		Count int64
	}

	var rows []row
	err := r.db.Model(&models.Subscription{}).
		Select("estado AS state, COUNT(*) AS count").
		Group("estado").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	out := make(map[models.SubscriptionState]int64, len(rows))
	for _, row := range rows {
		out[row.State] = row.Count
	}
	return out, nil
}

// CountCreatedBetween counts subscriptions created within [from, to).
func (r *SubscriptionRepository) CountCreatedBetween(from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("fecha_creacion >= ? AND fecha_creacion < ?", from, to).
		Count(&count).Error
	return count, err
}

// CountCancelledBetween counts subscriptions cancelled within [from, to).
func (r *SubscriptionRepository) CountCancelledBetween(from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("estado = ? AND fecha_fin >= ? AND fecha_fin < ?", models.SubscriptionCancelled, from, to).
		Count(&count).Error
	return count, err
}
