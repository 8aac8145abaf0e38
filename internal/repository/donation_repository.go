package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// DonationFilter narrows donation listings.
type DonationFilter struct {
	State      *models.DonationState
	UserID     *uint
	CampaignID *uint
}

// AmountByKey is a grouped sum.
type AmountByKey struct {
	Label string          `json:"clave"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"cantidad"`
}

// CampaignContribution is a user's completed total towards one campaign.
type CampaignContribution struct {
	CampaignID uint            `json:"id_campana"`
	Name       string          `json:"nombre"`
	Total      decimal.Decimal `json:"total"`
	Count      int64           `json:"donaciones"`
}

// DonationRepository handles donation ledger operations.
type DonationRepository struct {
	db *DB
}

// NewDonationRepository creates a new donation repository.
func NewDonationRepository(db *DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create stores a donation.
func (r *DonationRepository) Create(d *models.Donation) error {
	if err := r.db.Create(d).Error; err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

// GetByID retrieves a donation with its user and campaign.
func (r *DonationRepository) GetByID(id uint) (*models.Donation, error) {
	var d models.Donation
	err := r.db.Preload("User").Preload("Campaign").First(&d, id).Error
	if err != nil {
		return nil, lookupErr(err, "donation %d", id)
	}
	return &d, nil
}

// UpdateState moves a donation from one state to another and, when given,
// records the external payment reference. It returns false when the donation
// is no longer in the from state, so only one caller wins a transition.
func (r *DonationRepository) UpdateState(id uint, from, to models.DonationState, reference string) (bool, error) {
	updates := map[string]any{
		"estado":               to,
		"ultima_actualizacion": time.Now(),
	}
	if reference != "" {
		updates["referencia_pago"] = reference
	}

	res := r.db.Model(&models.Donation{}).
		Where("id_donacion = ? AND estado = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update donation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := r.db.Model(&models.Donation{}).Where("id_donacion = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up donation %d: %w", id, err)
	}
	if count == 0 {
		return false, lookupErr(errNotFound, "donation %d", id)
	}
	return false, nil
}

// List returns a page of donations, newest first.
func (r *DonationRepository) List(f DonationFilter, p Pagination) ([]models.Donation, int64, error) {
	query := r.db.Model(&models.Donation{})
	if f.State != nil {
		query = query.Where("estado = ?", *f.State)
	}
	if f.UserID != nil {
		query = query.Where("id_usuario = ?", *f.UserID)
	}
	if f.CampaignID != nil {
		query = query.Where("id_campana = ?", *f.CampaignID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count donations: %w", err)
	}

	var items []models.Donation
	err := query.Scopes(paginate(p)).
		Preload("Campaign").
		Order("fecha_donacion DESC, id_donacion DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list donations: %w", err)
	}
	return items, total, nil
}

// CountByState returns the number of donations per state.
func (r *DonationRepository) CountByState() (map[models.DonationState]int64, error) {
	var rows []AmountByKey
	err := r.db.Model(&models.Donation{}).
		Select("estado AS label, COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Group("estado").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count donations by state: %w", err)
	}

	out := make(map[models.DonationState]int64, len(rows))
	for _, row := range rows {
		out[models.DonationState(row.Label)] = row.Count
	}
	return out, nil
}

// CompletedByPaymentMethod sums completed donations per payment method within [from, to).
// Zero bounds are open.
func (r *DonationRepository) CompletedByPaymentMethod(from, to time.Time) ([]AmountByKey, error) {
	query := r.db.Model(&models.Donation{}).
		Select("metodo_pago AS label, COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("estado = ?", models.DonationCompleted)
	query = betweenDates(query, from, to)

	var rows []AmountByKey
	if err := query.Group("metodo_pago").Order("metodo_pago").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sum donations by method: %w", err)
	}
	return rows, nil
}

// CompletedBetween returns completed donations within [from, to).
func (r *DonationRepository) CompletedBetween(from, to time.Time) ([]models.Donation, error) {
	var items []models.Donation
	err := r.db.
		Where("estado = ? AND fecha_donacion >= ? AND fecha_donacion < ?", models.DonationCompleted, from, to).
		Order("fecha_donacion ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get completed donations: %w", err)
	}
	return items, nil
}

// UserCompletedBetween returns a user's completed donations within [from, to).
func (r *DonationRepository) UserCompletedBetween(userID uint, from, to time.Time) ([]models.Donation, error) {
	var items []models.Donation
	err := r.db.
		Preload("Campaign").
		Where("id_usuario = ? AND estado = ? AND fecha_donacion >= ? AND fecha_donacion < ?", userID, models.DonationCompleted, from, to).
		Order("fecha_donacion ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get donations of user %d: %w", userID, err)
	}
	return items, nil
}

// UserTotals sums a user's completed donations.
func (r *DonationRepository) UserTotals(userID uint) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := r.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("id_usuario = ? AND estado = ?", userID, models.DonationCompleted).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum donations of user %d: %w", userID, err)
	}
	return row.Total, row.Count, nil
}

// UserCampaignTotals groups a user's completed donations by campaign.
func (r *DonationRepository) UserCampaignTotals(userID uint) ([]CampaignContribution, error) {
	var rows []CampaignContribution
	err := r.db.Model(&models.Donation{}).
		Select("donaciones.id_campana AS campaign_id, campanas.nombre AS name, COALESCE(SUM(donaciones.monto), 0) AS total, COUNT(*) AS count").
		Joins("JOIN campanas ON campanas.id_campana = donaciones.id_campana").
		Where("donaciones.id_usuario = ? AND donaciones.estado = ?", userID, models.DonationCompleted).
		Group("donaciones.id_campana, campanas.nombre").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group donations of user %d: %w", userID, err)
	}
	return rows, nil
}

// CompletedTotals sums completed donations within [from, to). Zero bounds are open.
func (r *DonationRepository) CompletedTotals(from, to time.Time) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	query := r.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("estado = ?", models.DonationCompleted)
	if err := betweenDates(query, from, to).Scan(&row).Error; err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum donations: %w", err)
	}
	return row.Total, row.Count, nil
}

// CountDistinctDonors counts users with a completed donation within [from, to). Zero bounds are open.
func (r *DonationRepository) CountDistinctDonors(from, to time.Time) (int64, error) {
	var count int64
	query := r.db.Model(&models.Donation{}).
		Where("estado = ? AND id_usuario IS NOT NULL", models.DonationCompleted)
	if err := betweenDates(query, from, to).Distinct("id_usuario").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count donors: %w", err)
	}
	return count, nil
}

// DonorTotal is a user's completed sum.
type DonorTotal struct {
	UserID uint            `json:"id_usuario"`
	Total  decimal.Decimal `json:"total"`
	Count  int64           `json:"donaciones"`
}

// TopDonors returns the users with the highest completed sums within [from, to).
// Anonymous donations are excluded. Zero bounds are open.
func (r *DonationRepository) TopDonors(from, to time.Time, limit int) ([]DonorTotal, error) {
	query := r.db.Model(&models.Donation{}).
		Select("id_usuario AS user_id, COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("estado = ? AND id_usuario IS NOT NULL AND es_anonima = ?", models.DonationCompleted, false)

	var rows []DonorTotal
	err := betweenDates(query, from, to).
		Group("id_usuario").
		Order("total DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top donors: %w", err)
	}
	return rows, nil
}

func betweenDates(query *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		query = query.Where("fecha_donacion >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("fecha_donacion < ?", to)
	}
	return query
}
