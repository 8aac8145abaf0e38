// Package subscriptions implements recurring donations and the daily billing run.
package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/donations"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Charge outcomes reported in metrics.
const (
	ChargeCharged = "charged"
	ChargeSkipped = "skipped"
	ChargeFailed  = "failed"
)

// Repository interface for subscription persistence.
type Repository interface {
	Create(s *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	Update(s *models.Subscription) error
	List(f repository.SubscriptionFilter, p repository.Pagination) ([]models.Subscription, int64, error)
	Due(now time.Time) ([]models.Subscription, error)
	ChargingBetween(from, to time.Time) ([]models.Subscription, error)
	ClaimCharge(id uint, now, next time.Time) (bool, error)
	ReleaseCharge(id uint, previous time.Time) error
	AddCharge(id uint, amount decimal.Decimal) error
	ListActive() ([]models.Subscription, error)
	CountByState() (map[models.SubscriptionState]int64, error)
}

// PaymentMethods validates the payment method a subscription charges.
type PaymentMethods interface {
	GetActiveOwned(ctx context.Context, userID, id uint) (*models.PaymentMethod, error)
}

// CampaignLookup resolves the campaign a subscription is attributed to.
type CampaignLookup interface {
	GetByID(id uint) (*models.Campaign, error)
}

// Ledger records the donations a subscription spawns.
type Ledger interface {
	CreateCompleted(ctx context.Context, in donations.CreateInput) (*models.Donation, error)
}

// Mailer sends upcoming charge reminders.
type Mailer interface {
	SubscriptionReminder(ctx context.Context, user *models.User, sub *models.Subscription, campaign string) bool
}

// CreateInput holds a new subscription. StartDate defaults to now.
type CreateInput struct {
	CampaignID      *uint            `json:"id_campana"`
	Amount          decimal.Decimal  `json:"monto"`
	Frequency       models.Frequency `json:"frecuencia" binding:"required,oneof=Mensual Trimestral Anual"`
	PaymentMethodID uint             `json:"id_metodo_pago" binding:"required"`
	StartDate       *time.Time       `json:"fecha_inicio"`
}

// UpdateInput holds the editable fields. Nil fields are left untouched.
// State accepts Pausada or Activa.
type UpdateInput struct {
	Amount          *decimal.Decimal          `json:"monto"`
	Frequency       *models.Frequency         `json:"frecuencia" binding:"omitempty,oneof=Mensual Trimestral Anual"`
	PaymentMethodID *uint                     `json:"id_metodo_pago"`
	State           *models.SubscriptionState `json:"estado" binding:"omitempty,oneof=Activa Pausada"`
}

// BillingReport is the outcome of one billing run.
type BillingReport struct {
	RunAt     time.Time `json:"fecha_ejecucion"`
	Processed int       `json:"procesadas"`
	Charged   int       `json:"cobradas"`
	Skipped   int       `json:"omitidas"`
	Failed    int       `json:"fallidas"`
}

// Stats holds subscription-wide figures.
type Stats struct {
	Total                  int64                              `json:"total_suscripciones"`
	Active                 int64                              `json:"suscripciones_activas"`
	ByState                map[models.SubscriptionState]int64 `json:"por_estado"`
	ByFrequency            map[models.Frequency]int64         `json:"por_frecuencia"`
	EstimatedMonthlyIncome decimal.Decimal                    `json:"ingreso_mensual_estimado"`
}

// Service handles subscriptions.
type Service struct {
	repo      Repository
	methods   PaymentMethods
	campaigns CampaignLookup
	ledger    Ledger
	mailer    Mailer
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates a new subscription service.
func NewService(
	repo *repository.SubscriptionRepository,
	methods PaymentMethods,
	campaigns *repository.CampaignRepository,
	ledger Ledger,
	mailer Mailer,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(repo, methods, campaigns, ledger, mailer, log)
}

// NewServiceWithInterfaces creates a new subscription service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repo Repository,
	methods PaymentMethods,
	campaigns CampaignLookup,
	ledger Ledger,
	mailer Mailer,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		methods:   methods,
		campaigns: campaigns,
		ledger:    ledger,
		mailer:    mailer,
		now:       time.Now,
		log:       log,
	}
}

// NextChargeDate adds one billing interval to from. When the target month is
// shorter than from's day, the result is clamped to its last day, so Jan 31
// plus one month is the last day of February.
func NextChargeDate(from time.Time, f models.Frequency) time.Time {
	return addMonths(from, f.Months())
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Create registers an active subscription and charges the first donation
// immediately.
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput) (*models.Subscription, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.BadRequest("monto must be greater than zero")
	}
	if !in.Frequency.Valid() {
		return nil, apperr.BadRequest("unknown frecuencia %q", in.Frequency)
	}
	pm, err := s.methods.GetActiveOwned(ctx, userID, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCampaign(in.CampaignID); err != nil {
		return nil, err
	}

	now := s.now()
	start := now
	if in.StartDate != nil && !in.StartDate.IsZero() {
		start = *in.StartDate
	}

	sub := &models.Subscription{
		UserID:          userID,
		CampaignID:      in.CampaignID,
		Amount:          in.Amount.Round(2),
		Frequency:       in.Frequency,
		StartDate:       start,
		NextChargeDate:  NextChargeDate(start, in.Frequency),
		State:           models.SubscriptionActive,
		PaymentMethodID: pm.ID,
		TotalDonated:    decimal.Zero,
	}
	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}

	if _, err := s.charge(ctx, sub, pm, now); err != nil {
		sub.State = models.SubscriptionCancelled
		sub.EndDate = &now
		sub.CancellationReason = "first charge failed"
		if uerr := s.repo.Update(sub); uerr != nil {
			s.log.Error().Err(uerr).Uint("subscription_id", sub.ID).Msg("Failed to cancel subscription after first charge")
		}
		return nil, fmt.Errorf("failed to charge subscription %d: %w", sub.ID, err)
	}

	s.log.Info().
		Uint("subscription_id", sub.ID).
		Uint("user_id", userID).
		Str("amount", sub.Amount.StringFixed(2)).
		Str("frequency", string(sub.Frequency)).
		Time("next_charge", sub.NextChargeDate).
		Msg("Subscription created")

	return s.repo.GetByID(sub.ID)
}

func (s *Service) checkCampaign(id *uint) error {
	if id == nil {
		return nil
	}
	c, err := s.campaigns.GetByID(*id)
	if repository.IsNotFound(err) {
		return apperr.BadRequest("campaign %d does not exist", *id)
	}
	if err != nil {
		return err
	}
	if c.State != models.CampaignActive {
		return apperr.BadRequest("campaign %d is not accepting donations", c.ID)
	}
	return nil
}

// charge spawns one completed donation for the subscription and adds it to
// the cumulative totals.
func (s *Service) charge(ctx context.Context, sub *models.Subscription, pm *models.PaymentMethod, now time.Time) (*models.Donation, error) {
	d, err := s.ledger.CreateCompleted(ctx, donations.CreateInput{
		UserID:           &sub.UserID,
		CampaignID:       sub.CampaignID,
		SubscriptionID:   &sub.ID,
		Amount:           sub.Amount,
		PaymentMethod:    pm.Type,
		PaymentReference: fmt.Sprintf("suscripcion_%d_%d", sub.ID, now.UnixMilli()),
		AcceptedTerms:    true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddCharge(sub.ID, sub.Amount); err != nil {
		s.log.Error().Err(err).
			Uint("subscription_id", sub.ID).
			Uint("donation_id", d.ID).
			Msg("Failed to add charge to subscription totals")
	}
	return d, nil
}

// Update changes amount, frequency, payment method or pause state. A new
// frequency restarts the schedule from today.
func (s *Service) Update(ctx context.Context, userID, id uint, in UpdateInput) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, apperr.Forbidden("subscription %d does not belong to the user", id)
	}
	if sub.State != models.SubscriptionActive && sub.State != models.SubscriptionPaused {
		return nil, apperr.BadRequest("subscription %d is %s", id, sub.State)
	}

	today := startOfDay(s.now())

	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, apperr.BadRequest("monto must be greater than zero")
		}
		sub.Amount = in.Amount.Round(2)
	}
	if in.Frequency != nil && *in.Frequency != sub.Frequency {
		if !in.Frequency.Valid() {
			return nil, apperr.BadRequest("unknown frecuencia %q", *in.Frequency)
		}
		sub.Frequency = *in.Frequency
		sub.NextChargeDate = NextChargeDate(today, sub.Frequency)
	}
	if in.PaymentMethodID != nil && *in.PaymentMethodID != sub.PaymentMethodID {
		pm, err := s.methods.GetActiveOwned(ctx, userID, *in.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		sub.PaymentMethodID = pm.ID
		sub.PaymentMethod = pm
	}
	if in.State != nil && *in.State != sub.State {
		switch *in.State {
		case models.SubscriptionPaused:
		case models.SubscriptionActive:
			if sub.NextChargeDate.Before(today) {
				sub.NextChargeDate = NextChargeDate(today, sub.Frequency)
			}
		default:
			return nil, apperr.BadRequest("estado must be Activa or Pausada")
		}
		sub.State = *in.State
	}

	if err := s.repo.Update(sub); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("subscription_id", id).
		Str("state", string(sub.State)).
		Time("next_charge", sub.NextChargeDate).
		Msg("Subscription updated")

	return s.repo.GetByID(id)
}

// Cancel stops the subscription. Donations already charged are kept.
func (s *Service) Cancel(_ context.Context, userID, id uint, reason string) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, apperr.Forbidden("subscription %d does not belong to the user", id)
	}
	if sub.State == models.SubscriptionCancelled || sub.State == models.SubscriptionFinished {
		return nil, apperr.BadRequest("subscription %d is already %s", id, sub.State)
	}

	now := s.now()
	sub.State = models.SubscriptionCancelled
	sub.EndDate = &now
	if reason = strings.TrimSpace(reason); reason != "" {
		sub.CancellationReason = reason
	}
	if err := s.repo.Update(sub); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("subscription_id", id).
		Str("reason", sub.CancellationReason).
		Msg("Subscription cancelled")

	return sub, nil
}

// ProcessDueCharges charges every active subscription whose next charge date
// is not after now. The next date is measured from today, so missed cycles
// are not charged retroactively. Each subscription is isolated: a failure is
// logged and the run continues.
func (s *Service) ProcessDueCharges(ctx context.Context, now time.Time) (*BillingReport, error) {
	due, err := s.repo.Due(now)
	if err != nil {
		return nil, err
	}

	report := &BillingReport{RunAt: now}
	for i := range due {
		if err := ctx.Err(); err != nil {
			s.log.Warn().Err(err).Int("remaining", len(due)-i).Msg("Billing run interrupted")
			break
		}

		report.Processed++
		outcome := s.chargeDue(ctx, &due[i], now)
		prommetrics.RecordSubscriptionCharge(outcome)
		switch outcome {
		case ChargeCharged:
			report.Charged++
		case ChargeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	if counts, err := s.repo.CountByState(); err == nil {
		prommetrics.SetActiveSubscriptions(int(counts[models.SubscriptionActive]))
	}

	s.log.Info().
		Int("processed", report.Processed).
		Int("charged", report.Charged).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Billing run finished")

	return report, nil
}

func (s *Service) chargeDue(ctx context.Context, sub *models.Subscription, now time.Time) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Uint("subscription_id", sub.ID).
				Interface("panic", r).
				Msg("Subscription charge panicked")
			outcome = ChargeFailed
		}
	}()

	pm := sub.PaymentMethod
	if pm == nil || !pm.Active || pm.UserID != sub.UserID {
		s.log.Warn().
			Uint("subscription_id", sub.ID).
			Uint("payment_method_id", sub.PaymentMethodID).
			Msg("Payment method missing or inactive, skipping charge")
		return ChargeSkipped
	}

	previous := sub.NextChargeDate
	next := NextChargeDate(startOfDay(now), sub.Frequency)
	claimed, err := s.repo.ClaimCharge(sub.ID, now, next)
	if err != nil {
		s.log.Error().Err(err).Uint("subscription_id", sub.ID).Msg("Failed to claim subscription charge")
		return ChargeFailed
	}
	if !claimed {
		s.log.Debug().Uint("subscription_id", sub.ID).Msg("Subscription already charged")
		return ChargeSkipped
	}

	d, err := s.charge(ctx, sub, pm, now)
	if err != nil {
		s.log.Error().Err(err).Uint("subscription_id", sub.ID).Msg("Failed to charge subscription")
		if rerr := s.repo.ReleaseCharge(sub.ID, previous); rerr != nil {
			s.log.Error().Err(rerr).Uint("subscription_id", sub.ID).Msg("Failed to restore next charge date")
		}
		return ChargeFailed
	}

	s.log.Info().
		Uint("subscription_id", sub.ID).
		Uint("donation_id", d.ID).
		Str("amount", sub.Amount.StringFixed(2)).
		Time("next_charge", next).
		Msg("Subscription charged")
	return ChargeCharged
}

// SendReminders emails the owners of active subscriptions charged exactly
// daysAhead days after now. It returns the number of emails sent.
func (s *Service) SendReminders(ctx context.Context, now time.Time, daysAhead int) (int, error) {
	if daysAhead < 0 {
		return 0, apperr.BadRequest("daysAhead must not be negative")
	}
	day := startOfDay(now).AddDate(0, 0, daysAhead)
	upcoming, err := s.repo.ChargingBetween(day, day.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range upcoming {
		sub := &upcoming[i]
		if sub.User == nil || !sub.User.Active {
			continue
		}
		campaign := ""
		if sub.Campaign != nil {
			campaign = sub.Campaign.Name
		}
		if s.mailer.SubscriptionReminder(ctx, sub.User, sub, campaign) {
			sent++
		}
	}

	s.log.Info().
		Int("upcoming", len(upcoming)).
		Int("sent", sent).
		Str("date", day.Format(time.DateOnly)).
		Msg("Subscription reminders sent")

	return sent, nil
}

// Stats returns counts by state and frequency and the estimated monthly
// income of the active subscriptions.
func (s *Service) Stats(_ context.Context) (*Stats, error) {
	byState, err := s.repo.CountByState()
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	stats := &Stats{
		ByState:                byState,
		ByFrequency:            make(map[models.Frequency]int64),
		EstimatedMonthlyIncome: decimal.Zero,
	}
	for _, n := range byState {
		stats.Total += n
	}
	stats.Active = byState[models.SubscriptionActive]
	for i := range active {
		stats.ByFrequency[active[i].Frequency]++
		stats.EstimatedMonthlyIncome = stats.EstimatedMonthlyIncome.Add(active[i].MonthlyEquivalent())
	}
	stats.EstimatedMonthlyIncome = stats.EstimatedMonthlyIncome.Round(2)
	return stats, nil
}

// Get returns a subscription visible to the requester.
func (s *Service) Get(_ context.Context, userID uint, isAdmin bool, id uint) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && sub.UserID != userID {
		return nil, apperr.Forbidden("subscription %d does not belong to the user", id)
	}
	return sub, nil
}

// List returns a page of subscriptions, optionally filtered by state.
func (s *Service) List(_ context.Context, state *models.SubscriptionState, p repository.Pagination) ([]models.Subscription, int64, error) {
	return s.repo.List(repository.SubscriptionFilter{State: state}, p)
}

// ListForUser returns a page of the user's subscriptions.
func (s *Service) ListForUser(_ context.Context, userID uint, p repository.Pagination) ([]models.Subscription, int64, error) {
	return s.repo.List(repository.SubscriptionFilter{UserID: &userID}, p)
}
