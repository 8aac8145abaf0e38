package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// StatisticsRepository handles monthly snapshots and the ledger aggregations behind them.
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new statistics repository.
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Upsert creates or replaces the snapshot of a month. This keeps regeneration idempotent.
func (r *StatisticsRepository) Upsert(stat *models.MonthlyStatistic) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ano"}, {Name: "mes"}},
		UpdateAll: true,
	}).Create(stat).Error
	if err != nil {
		return fmt.Errorf("failed to save statistics %d-%02d: %w", stat.Year, stat.Month, err)
	}
	return nil
}

// GetByMonth retrieves the snapshot of a month.
func (r *StatisticsRepository) GetByMonth(year, month int) (*models.MonthlyStatistic, error) {
	var stat models.MonthlyStatistic
	if err := r.db.Where("ano = ? AND mes = ?", year, month).First(&stat).Error; err != nil {
		return nil, lookupErr(err, "statistics %d-%02d", year, month)
	}
	return &stat, nil
}

// List returns snapshots newest first, optionally for one year. A limit <= 0 returns all.
func (r *StatisticsRepository) List(year *int, limit int) ([]models.MonthlyStatistic, error) {
	query := r.db.Model(&models.MonthlyStatistic{})
	if year != nil {
		query = query.Where("ano = ?", *year)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var stats []models.MonthlyStatistic
	if err := query.Order("ano DESC, mes DESC").Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}
	return stats, nil
}

// CountNewDonors counts users whose first completed donation falls within [from, to).
func (r *StatisticsRepository) CountNewDonors(from, to time.Time) (int64, error) {
	firsts := r.db.Model(&models.Donation{}).
		Select("id_usuario, MIN(fecha_donacion) AS primera").
		Where("estado = ? AND id_usuario IS NOT NULL", models.DonationCompleted).
		Group("id_usuario")

	var count int64
	err := r.db.Table("(?) AS primeras", firsts).
		Where("primera >= ? AND primera < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count new donors: %w", err)
	}
	return count, nil
}

// CampaignTotal is a campaign's completed sum within a period.
type CampaignTotal struct {
	CampaignID uint            `json:"id_campana"`
	Total      decimal.Decimal `json:"total"`
	Count      int64           `json:"donaciones"`
}

// TopCampaign returns the campaign with the highest completed sum within [from, to), or nil.
func (r *StatisticsRepository) TopCampaign(from, to time.Time) (*CampaignTotal, error) {
	var rows []CampaignTotal
	err := r.db.Model(&models.Donation{}).
		Select("id_campana AS campaign_id, COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("estado = ? AND id_campana IS NOT NULL", models.DonationCompleted).
		Where("fecha_donacion >= ? AND fecha_donacion < ?", from, to).
		Group("id_campana").
		Order("total DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top campaign: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CampaignDonorCount counts distinct users who completed a donation to the campaign within [from, to).
func (r *StatisticsRepository) CampaignDonorCount(campaignID uint, from, to time.Time) (int64, error) {
	var count int64
	query := r.db.Model(&models.Donation{}).
		Where("id_campana = ? AND estado = ? AND id_usuario IS NOT NULL", campaignID, models.DonationCompleted)
	if err := betweenDates(query, from, to).Distinct("id_usuario").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count donors of campaign %d: %w", campaignID, err)
	}
	return count, nil
}

// CampaignTotals sums the completed donations of a campaign within [from, to). Zero bounds are open.
func (r *StatisticsRepository) CampaignTotals(campaignID uint, from, to time.Time) (CampaignTotal, error) {
	row := CampaignTotal{CampaignID: campaignID}
	query := r.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(monto), 0) AS total, COUNT(*) AS count").
		Where("id_campana = ? AND estado = ?", campaignID, models.DonationCompleted)
	if err := betweenDates(query, from, to).Scan(&row).Error; err != nil {
		return row, fmt.Errorf("failed to sum campaign %d: %w", campaignID, err)
	}
	return row, nil
}

// CountRecurringDonors counts users with more than one completed donation within [from, to).
func (r *StatisticsRepository) CountRecurringDonors(from, to time.Time) (int64, error) {
	grouped := r.db.Model(&models.Donation{}).
		Select("id_usuario").
		Where("estado = ? AND id_usuario IS NOT NULL", models.DonationCompleted)
	grouped = betweenDates(grouped, from, to).Group("id_usuario").Having("COUNT(*) > 1")

	var count int64
	if err := r.db.Table("(?) AS recurrentes", grouped).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recurring donors: %w", err)
	}
	return count, nil
}
