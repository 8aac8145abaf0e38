// Package statistics rolls the donation ledger up into monthly snapshots and dashboards.
package statistics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const (
	dashboardMonths   = 12
	activeDonorMonths = 3
	topDonorsLimit    = 5
)

// Repository interface for snapshot persistence and period aggregations.
type Repository interface {
	Upsert(stat *models.MonthlyStatistic) error
	GetByMonth(year, month int) (*models.MonthlyStatistic, error)
	List(year *int, limit int) ([]models.MonthlyStatistic, error)
	CountNewDonors(from, to time.Time) (int64, error)
	TopCampaign(from, to time.Time) (*repository.CampaignTotal, error)
	CampaignDonorCount(campaignID uint, from, to time.Time) (int64, error)
	CampaignTotals(campaignID uint, from, to time.Time) (repository.CampaignTotal, error)
	CountRecurringDonors(from, to time.Time) (int64, error)
}

// Ledger interface for donation aggregations.
type Ledger interface {
	CompletedTotals(from, to time.Time) (decimal.Decimal, int64, error)
	CountDistinctDonors(from, to time.Time) (int64, error)
	TopDonors(from, to time.Time, limit int) ([]repository.DonorTotal, error)
	CompletedByPaymentMethod(from, to time.Time) ([]repository.AmountByKey, error)
}

// SubscriptionCounter counts subscription lifecycle events.
type SubscriptionCounter interface {
	CountCreatedBetween(from, to time.Time) (int64, error)
	CountCancelledBetween(from, to time.Time) (int64, error)
}

// UserRepository interface for donor lookups.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	CountByTier() (map[models.DonorTier]int64, error)
}

// CampaignRepository interface for campaign lookups.
type CampaignRepository interface {
	GetByID(id uint) (*models.Campaign, error)
	Featured(now time.Time, limit int) ([]models.Campaign, error)
}

// SubscriptionStats provides the subscription engine figures.
type SubscriptionStats interface {
	Stats(ctx context.Context) (*subscriptions.Stats, error)
}

// Settings reads configuration values.
type Settings interface {
	GetNumber(ctx context.Context, key string, def float64) float64
}

// TopDonor is a ranked donor.
type TopDonor struct {
	UserID uint            `json:"id_usuario"`
	Name   string          `json:"nombre"`
	Tier   string          `json:"nivel_donante,omitempty"`
	Total  decimal.Decimal `json:"total"`
	Count  int64           `json:"donaciones"`
	Rank   int             `json:"posicion"`
}

// Dashboard is the administrative overview.
type Dashboard struct {
	Monthly         []models.MonthlyStatistic `json:"estadisticas_mensuales"`
	HistoricalTotal decimal.Decimal           `json:"total_historico"`
	HistoricalCount int64                     `json:"donaciones_historicas"`
	ActiveDonors    int64                     `json:"donantes_activos"`
	TopDonors       []TopDonor                `json:"mejores_donantes"`
}

// Public holds the figures shown on the public site.
type Public struct {
	TotalRaised      decimal.Decimal  `json:"total_recaudado"`
	DonationCount    int64            `json:"total_donaciones"`
	UniqueDonors     int64            `json:"donantes_unicos"`
	FeaturedCampaign *models.Campaign `json:"campana_destacada,omitempty"`
	MonthRaised      decimal.Decimal  `json:"recaudado_mes"`
	MonthlyGoal      decimal.Decimal  `json:"meta_mensual"`
	GoalPercent      float64          `json:"porcentaje_meta"`
}

// CampaignStats holds the figures of one campaign within a period.
type CampaignStats struct {
	Campaign        *models.Campaign `json:"campana"`
	Total           decimal.Decimal  `json:"total"`
	Count           int64            `json:"donaciones"`
	Donors          int64            `json:"donantes"`
	AverageAmount   decimal.Decimal  `json:"monto_promedio"`
	ProgressPercent float64          `json:"porcentaje_progreso"`
}

// DonorStats holds donor figures within a period.
type DonorStats struct {
	Total     int64                      `json:"total_donantes"`
	New       int64                      `json:"nuevos_donantes"`
	Recurring int64                      `json:"donantes_recurrentes"`
	ByTier    map[models.DonorTier]int64 `json:"por_nivel"`
	TopDonor  *TopDonor                  `json:"mejor_donante,omitempty"`
}

// Service computes statistics over the ledger.
type Service struct {
	repo          Repository
	ledger        Ledger
	subs          SubscriptionCounter
	users         UserRepository
	campaigns     CampaignRepository
	subscriptions SubscriptionStats
	settings      Settings
	loc           *time.Location
	log           *logger.Logger
}

// NewService creates a new statistics service with concrete repository types.
func NewService(
	repo *repository.StatisticsRepository,
	ledger *repository.DonationRepository,
	subs *repository.SubscriptionRepository,
	users *repository.UserRepository,
	campaigns *repository.CampaignRepository,
	subscriptionStats SubscriptionStats,
	settings Settings,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(repo, ledger, subs, users, campaigns, subscriptionStats, settings, log)
}

// NewServiceWithInterfaces creates a new statistics service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repo Repository,
	ledger Ledger,
	subs SubscriptionCounter,
	users UserRepository,
	campaigns CampaignRepository,
	subscriptionStats SubscriptionStats,
	settings Settings,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:          repo,
		ledger:        ledger,
		subs:          subs,
		users:         users,
		campaigns:     campaigns,
		subscriptions: subscriptionStats,
		settings:      settings,
		loc:           time.UTC,
		log:           log,
	}
}

// WithLocation sets the time zone month boundaries are computed in.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// GenerateMonthly computes and stores the snapshot of a month. Running it again replaces the snapshot.
func (s *Service) GenerateMonthly(ctx context.Context, year, month int) (*models.MonthlyStatistic, error) {
	if month < 1 || month > 12 {
		return nil, apperr.BadRequest("invalid month %d", month)
	}
	if year < 2000 || year > 9999 {
		return nil, apperr.BadRequest("invalid year %d", year)
	}

	s.log.Info().Int("year", year).Int("month", month).Msg("Generating monthly statistics")

	stat, err := s.compute(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(stat); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("year", year).
		Int("month", month).
		Str("total", stat.TotalAmount.StringFixed(2)).
		Int("donations", stat.DonationCount).
		Int("unique_donors", stat.UniqueDonors).
		Msg("Monthly statistics generated")

	return stat, nil
}

// GeneratePreviousMonth stores the snapshot of the month before now.
func (s *Service) GeneratePreviousMonth(ctx context.Context, now time.Time) (*models.MonthlyStatistic, error) {
	local := now.In(s.loc)
	prev := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, -1, 0)
	return s.GenerateMonthly(ctx, prev.Year(), int(prev.Month()))
}

// CurrentMonth computes the running figures of the month containing now without storing them.
func (s *Service) CurrentMonth(ctx context.Context, now time.Time) (*models.MonthlyStatistic, error) {
	local := now.In(s.loc)
	return s.compute(ctx, local.Year(), int(local.Month()))
}

func (s *Service) compute(_ context.Context, year, month int) (*models.MonthlyStatistic, error) {
	from, to := models.MonthRange(year, month, s.loc)

	total, count, err := s.ledger.CompletedTotals(from, to)
	if err != nil {
		return nil, err
	}
	donors, err := s.ledger.CountDistinctDonors(from, to)
	if err != nil {
		return nil, err
	}
	newDonors, err := s.repo.CountNewDonors(from, to)
	if err != nil {
		return nil, err
	}
	created, err := s.subs.CountCreatedBetween(from, to)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.subs.CountCancelledBetween(from, to)
	if err != nil {
		return nil, err
	}
	top, err := s.repo.TopCampaign(from, to)
	if err != nil {
		return nil, err
	}
	byMethod, err := s.ledger.CompletedByPaymentMethod(from, to)
	if err != nil {
		return nil, err
	}
	methods, err := json.Marshal(byMethod)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment method totals: %w", err)
	}

	stat := &models.MonthlyStatistic{
		Year:                   year,
		Month:                  month,
		TotalAmount:            total,
		DonationCount:          int(count),
		UniqueDonors:           int(donors),
		NewDonors:              int(newDonors),
		NewSubscriptions:       int(created),
		CancelledSubscriptions: int(cancelled),
		AverageAmount:          average(total, count),
		ByPaymentMethod:        methods,
		GeneratedAt:            time.Now().UTC(),
	}
	if top != nil {
		id := top.CampaignID
		stat.TopCampaignID = &id
	}
	return stat, nil
}

// ListMonthly returns stored snapshots newest first, optionally for one year.
func (s *Service) ListMonthly(_ context.Context, year *int) ([]models.MonthlyStatistic, error) {
	return s.repo.List(year, 0)
}

// GetMonthly returns the stored snapshot of a month.
func (s *Service) GetMonthly(_ context.Context, year, month int) (*models.MonthlyStatistic, error) {
	return s.repo.GetByMonth(year, month)
}

// Dashboard returns the last twelve snapshots, historical totals, recently active donors and the top donors.
func (s *Service) Dashboard(_ context.Context, now time.Time) (*Dashboard, error) {
	monthly, err := s.repo.List(nil, dashboardMonths)
	if err != nil {
		return nil, err
	}
	total, count, err := s.ledger.CompletedTotals(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	active, err := s.ledger.CountDistinctDonors(now.AddDate(0, -activeDonorMonths, 0), time.Time{})
	if err != nil {
		return nil, err
	}
	top, err := s.topDonors(time.Time{}, time.Time{}, topDonorsLimit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Monthly:         monthly,
		HistoricalTotal: total,
		HistoricalCount: count,
		ActiveDonors:    active,
		TopDonors:       top,
	}, nil
}

// Public returns the public totals and the progress towards the monthly goal.
func (s *Service) Public(ctx context.Context, now time.Time) (*Public, error) {
	total, count, err := s.ledger.CompletedTotals(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	donors, err := s.ledger.CountDistinctDonors(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	local := now.In(s.loc)
	from, to := models.MonthRange(local.Year(), int(local.Month()), s.loc)
	monthTotal, _, err := s.ledger.CompletedTotals(from, to)
	if err != nil {
		return nil, err
	}

	out := &Public{
		TotalRaised:   total,
		DonationCount: count,
		UniqueDonors:  donors,
		MonthRaised:   monthTotal,
		MonthlyGoal:   decimal.NewFromFloat(s.settings.GetNumber(ctx, models.ConfigKeyMonthlyGoal, 0)).Round(2),
	}
	if out.MonthlyGoal.IsPositive() {
		out.GoalPercent = monthTotal.Div(out.MonthlyGoal).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	featured, err := s.campaigns.Featured(now, 1)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load featured campaign")
	} else if len(featured) > 0 {
		out.FeaturedCampaign = &featured[0]
	}
	return out, nil
}

// Campaign returns the figures of one campaign within [from, to). Zero bounds are open.
func (s *Service) Campaign(_ context.Context, id uint, from, to time.Time) (*CampaignStats, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, apperr.BadRequest("fecha_inicio must be before fecha_fin")
	}
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.CampaignTotals(id, from, to)
	if err != nil {
		return nil, err
	}
	donors, err := s.repo.CampaignDonorCount(id, from, to)
	if err != nil {
		return nil, err
	}

	return &CampaignStats{
		Campaign:        c,
		Total:           totals.Total,
		Count:           totals.Count,
		Donors:          donors,
		AverageAmount:   average(totals.Total, totals.Count),
		ProgressPercent: c.ProgressPercent(),
	}, nil
}

// Donors returns donor figures within [from, to). Zero bounds are open.
func (s *Service) Donors(_ context.Context, from, to time.Time) (*DonorStats, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, apperr.BadRequest("fecha_inicio must be before fecha_fin")
	}
	total, err := s.ledger.CountDistinctDonors(from, to)
	if err != nil {
		return nil, err
	}
	fresh, err := s.repo.CountNewDonors(from, to)
	if err != nil {
		return nil, err
	}
	recurring, err := s.repo.CountRecurringDonors(from, to)
	if err != nil {
		return nil, err
	}
	byTier, err := s.users.CountByTier()
	if err != nil {
		return nil, err
	}
	top, err := s.topDonors(from, to, 1)
	if err != nil {
		return nil, err
	}

	stats := &DonorStats{Total: total, New: fresh, Recurring: recurring, ByTier: byTier}
	if len(top) > 0 {
		stats.TopDonor = &top[0]
	}
	return stats, nil
}

// Subscriptions returns the subscription engine figures.
func (s *Service) Subscriptions(ctx context.Context) (*subscriptions.Stats, error) {
	return s.subscriptions.Stats(ctx)
}

func (s *Service) topDonors(from, to time.Time, limit int) ([]TopDonor, error) {
	rows, err := s.ledger.TopDonors(from, to, limit)
	if err != nil {
		return nil, err
	}

	out := make([]TopDonor, 0, len(rows))
	for i, row := range rows {
		entry := TopDonor{UserID: row.UserID, Total: row.Total, Count: row.Count, Rank: i + 1}
		user, err := s.users.GetByID(row.UserID)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", row.UserID).Msg("Failed to load donor")
		} else {
			entry.Name = user.FullName()
			entry.Tier = string(user.Tier)
		}
		out = append(out, entry)
	}
	return out, nil
}

func average(total decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(count)).Round(2)
}
