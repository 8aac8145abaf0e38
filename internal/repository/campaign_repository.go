package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// CampaignFilter narrows campaign listings.
type CampaignFilter struct {
	State     *models.CampaignState
	Emergency *bool
}

// CampaignTotals is the aggregate of completed donations of one campaign.
type CampaignTotals struct {
	Total decimal.Decimal
	Count int64
}

// CampaignRepository handles campaign-related database operations.
type CampaignRepository struct {
	db *DB
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	if err := r.db.Create(c).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by ID.
func (r *CampaignRepository) GetByID(id uint) (*models.Campaign, error) {
	var c models.Campaign
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, lookupErr(err, "campaign %d", id)
	}
	return &c, nil
}

// Update saves every field of the campaign.
func (r *CampaignRepository) Update(c *models.Campaign) error {
	if err := r.db.Save(c).Error; err != nil {
		return fmt.Errorf("failed to update campaign %d: %w", c.ID, err)
	}
	return nil
}

// List returns a page of campaigns, emergencies first, then newest start date.
func (r *CampaignRepository) List(f CampaignFilter, p Pagination) ([]models.Campaign, int64, error) {
	query := r.db.Model(&models.Campaign{})
	if f.State != nil {
		query = query.Where("estado = ?", *f.State)
	}
	if f.Emergency != nil {
		query = query.Where("es_emergencia = ?", *f.Emergency)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	var items []models.Campaign
	err := query.Scopes(paginate(p)).
		Order("es_emergencia DESC").
		Order("fecha_inicio DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return items, total, nil
}

// Search matches text against name and description.
func (r *CampaignRepository) Search(text string, p Pagination) ([]models.Campaign, int64, error) {
	like := "%" + strings.ToLower(text) + "%"
	query := r.db.Model(&models.Campaign{}).
		Where("LOWER(nombre) LIKE ? OR LOWER(descripcion) LIKE ?", like, like)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	var items []models.Campaign
	if err := query.Scopes(paginate(p)).Order("fecha_inicio DESC").Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search campaigns: %w", err)
	}
	return items, total, nil
}

// Featured returns active, not yet ended campaigns ordered by emergency then raised amount.
func (r *CampaignRepository) Featured(now time.Time, limit int) ([]models.Campaign, error) {
	var items []models.Campaign
	err := r.db.
		Where("estado = ?", models.CampaignActive).
		Where("fecha_fin IS NULL OR fecha_fin >= ?", now).
		Order("es_emergencia DESC").
		Order("monto_recaudado DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get featured campaigns: %w", err)
	}
	return items, nil
}

// CompletedTotals sums the completed donations of a campaign.
func (r *CampaignRepository) CompletedTotals(id uint) (CampaignTotals, error) {
	var totals CampaignTotals
	err := r.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("id_campana = ? AND estado = ?", id, models.DonationCompleted).
		Scan(&totals).Error
	if err != nil {
		return CampaignTotals{}, fmt.Errorf("failed to sum donations of campaign %d: %w", id, err)
	}
	return totals, nil
}

// RecalculateTotals overwrites raised amount and donation counter from the completed donations.
func (r *CampaignRepository) RecalculateTotals(id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Transaction(func(tx *DB) error {
		totals, err := (&CampaignRepository{db: tx}).CompletedTotals(id)
		if err != nil {
			return err
		}
		res := tx.Model(&models.Campaign{}).
			Where("id_campana = ?", id).
			Updates(map[string]any{
				"monto_recaudado":      totals.Total,
				"contador_donaciones":  totals.Count,
				"ultima_actualizacion": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotFound
		}
		return tx.First(&campaign, id).Error
	})
	if err != nil {
		return nil, lookupErr(err, "campaign %d", id)
	}
	return &campaign, nil
}

// CampaignSummary holds registry-wide campaign counters.
type CampaignSummary struct {
	Total             int64
	Active            int64
	ActiveEmergencies int64
	TotalRaised       decimal.Decimal
}

// Summary returns registry-wide counters.
func (r *CampaignRepository) Summary() (CampaignSummary, error) {
	var s CampaignSummary
	if err := r.db.Model(&models.Campaign{}).Count(&s.Total).Error; err != nil {
		return s, fmt.Errorf("failed to count campaigns: %w", err)
	}
	if err := r.db.Model(&models.Campaign{}).Where("estado = ?", models.CampaignActive).Count(&s.Active).Error; err != nil {
		return s, fmt.Errorf("failed to count active campaigns: %w", err)
	}
	if err := r.db.Model(&models.Campaign{}).
		Where("estado = ? AND es_emergencia = ?", models.CampaignActive, true).
		Count(&s.ActiveEmergencies).Error; err != nil {
		return s, fmt.Errorf("failed to count emergencies: %w", err)
	}
	var raised struct{ Total decimal.Decimal }
	if err := r.db.Model(&models.Campaign{}).
		Select("COALESCE(SUM(monto_recaudado), 0) AS total").
		Scan(&raised).Error; err != nil {
		return s, fmt.Errorf("failed to sum raised amounts: %w", err)
	}
	s.TotalRaised = raised.Total
	return s, nil
}

// MostSuccessful returns the campaign with the highest raised amount.
func (r *CampaignRepository) MostSuccessful() (*models.Campaign, error) {
	var c models.Campaign
	if err := r.db.Order("monto_recaudado DESC").First(&c).Error; err != nil {
		return nil, lookupErr(err, "campaign")
	}
	return &c, nil
}

// Follow records that the user follows the campaign. Following twice is a no-op.
func (r *CampaignRepository) Follow(userID, campaignID uint) error {
	f := &models.CampaignFollower{UserID: userID, CampaignID: campaignID, FollowedAt: time.Now()}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error; err != nil {
		return fmt.Errorf("failed to follow campaign %d: %w", campaignID, err)
	}
	return nil
}

// Unfollow removes the follow relation.
func (r *CampaignRepository) Unfollow(userID, campaignID uint) error {
	return r.db.
		Where("id_usuario = ? AND id_campana = ?", userID, campaignID).
		Delete(&models.CampaignFollower{}).Error
}

// IsFollowing reports whether the user follows the campaign.
func (r *CampaignRepository) IsFollowing(userID, campaignID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.CampaignFollower{}).
		Where("id_usuario = ? AND id_campana = ?", userID, campaignID).
		Count(&count).Error
	return count > 0, err
}

// Followers returns the active users following a campaign.
func (r *CampaignRepository) Followers(campaignID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Joins("JOIN usuarios_campanas ON usuarios_campanas.id_usuario = usuarios.id_usuario").
		Where("usuarios_campanas.id_campana = ? AND usuarios.activo = ?", campaignID, true).
		Order("usuarios_campanas.fecha_seguimiento ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get followers of campaign %d: %w", campaignID, err)
	}
	return users, nil
}

// FollowedBy returns the campaigns a user follows.
func (r *CampaignRepository) FollowedBy(userID uint) ([]models.Campaign, error) {
	var items []models.Campaign
	err := r.db.
		Joins("JOIN usuarios_campanas ON usuarios_campanas.id_campana = campanas.id_campana").
		Where("usuarios_campanas.id_usuario = ?", userID).
		Order("usuarios_campanas.fecha_seguimiento DESC").
		Find(&items).Error
	return items, err
}
