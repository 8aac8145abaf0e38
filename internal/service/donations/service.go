// Package donations implements the donation ledger and the completion fan-out.
package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/payment"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Completion sources reported in metrics.
const (
	SourceManual       = "manual"
	SourceGateway      = "gateway"
	SourceSubscription = "subscription"
)

// Completion steps, in the order they run.
const (
	StepReceipt  = "receipt"
	StepInvoice  = "invoice"
	StepCampaign = "campaign_totals"
	StepPoints   = "points"
	StepNotify   = "notification"
)

const dashboardDays = 30

// Repository interface for ledger persistence.
type Repository interface {
	Create(d *models.Donation) error
	GetByID(id uint) (*models.Donation, error)
	UpdateState(id uint, from, to models.DonationState, reference string) (bool, error)
	List(f repository.DonationFilter, p repository.Pagination) ([]models.Donation, int64, error)
	CountByState() (map[models.DonationState]int64, error)
	CompletedByPaymentMethod(from, to time.Time) ([]repository.AmountByKey, error)
	CompletedBetween(from, to time.Time) ([]models.Donation, error)
	CompletedTotals(from, to time.Time) (decimal.Decimal, int64, error)
}

// CampaignLookup resolves the campaign a donation is attributed to.
type CampaignLookup interface {
	GetByID(id uint) (*models.Campaign, error)
}

// ReceiptIssuer generates the receipt of a completed donation.
type ReceiptIssuer interface {
	Generate(ctx context.Context, donationID uint) (*models.Receipt, error)
}

// InvoiceIssuer generates the automatic invoice of a completed donation.
type InvoiceIssuer interface {
	GenerateAutomatic(ctx context.Context, donationID uint) (*models.Invoice, error)
}

// CampaignTotals recomputes a campaign's raised amount.
type CampaignTotals interface {
	RecalculateTotals(ctx context.Context, id uint) (*models.Campaign, error)
}

// PointsAwarder credits points to a donor.
type PointsAwarder interface {
	AwardPoints(ctx context.Context, userID uint, points int) (*models.User, error)
}

// Mailer sends the donation confirmation.
type Mailer interface {
	DonationConfirmation(ctx context.Context, to, name string, donation *models.Donation, campaign string) bool
}

// Notifier stores in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind models.NotificationType, title, message string, data map[string]any) error
}

// Settings reads configuration values.
type Settings interface {
	GetNumber(ctx context.Context, key string, def float64) float64
}

// Gateway is the online payment processor.
type Gateway interface {
	CreateCheckout(ctx context.Context, donation *models.Donation, customer payment.Customer) (*payment.Checkout, error)
	VerifySignature(n *payment.Notification) bool
}

// Completion holds the collaborators called when a donation completes.
type Completion struct {
	Receipts  ReceiptIssuer
	Invoices  InvoiceIssuer
	Campaigns CampaignTotals
	Points    PointsAwarder
	Mailer    Mailer
	Notifier  Notifier
}

// CreateInput holds a donation intent. UserID, SubscriptionID and DonorIP are
// set by the caller, never bound from the request body.
type CreateInput struct {
	UserID           *uint              `json:"-"`
	SubscriptionID   *uint              `json:"-"`
	DonorIP          string             `json:"-"`
	CampaignID       *uint              `json:"id_campana"`
	Amount           decimal.Decimal    `json:"monto"`
	Currency         string             `json:"moneda" binding:"omitempty,len=3"`
	PaymentMethod    models.PaymentType `json:"metodo_pago" binding:"required,oneof=Tarjeta PLUX PayPal"`
	PaymentReference string             `json:"referencia_pago" binding:"max=255"`
	Anonymous        bool               `json:"es_anonima"`
	InvoiceRequested bool               `json:"requiere_factura"`
	ReceiptEmail     string             `json:"correo_comprobante" binding:"omitempty,email,max=100"`
	AcceptedTerms    bool               `json:"acepto_terminos"`
	AcceptedNews     bool               `json:"acepto_noticias"`
	Notes            string             `json:"notas"`
}

// DailyTotal is the completed sum of one calendar day.
type DailyTotal struct {
	Date  string          `json:"fecha"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"cantidad"`
}

// Dashboard holds the ledger overview shown to administrators.
type Dashboard struct {
	ByState         map[models.DonationState]int64 `json:"por_estado"`
	ByPaymentMethod []repository.AmountByKey       `json:"por_metodo_pago"`
	TotalCompleted  decimal.Decimal                `json:"total_completado"`
	CompletedCount  int64                          `json:"donaciones_completadas"`
	LastDays        []DailyTotal                   `json:"ultimos_30_dias"`
}

// Service handles the donation ledger.
type Service struct {
	donations     Repository
	campaigns     CampaignLookup
	completion    Completion
	settings      Settings
	gateway       Gateway
	defaultPoints float64
	now           func() time.Time
	log           *logger.Logger
}

// NewService creates a new donation service.
func NewService(
	donations *repository.DonationRepository,
	campaigns *repository.CampaignRepository,
	completion Completion,
	settings Settings,
	gateway *payment.Gateway,
	defaultPoints float64,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(donations, campaigns, completion, settings, gateway, defaultPoints, log)
}

// NewServiceWithInterfaces creates a new donation service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	donations Repository,
	campaigns CampaignLookup,
	completion Completion,
	settings Settings,
	gateway Gateway,
	defaultPoints float64,
	log *logger.Logger,
) *Service {
	return &Service{
		donations:     donations,
		campaigns:     campaigns,
		completion:    completion,
		settings:      settings,
		gateway:       gateway,
		defaultPoints: defaultPoints,
		now:           time.Now,
		log:           log,
	}
}

// Create persists a pending donation. The points it will award are frozen now.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Donation, error) {
	d, err := s.build(ctx, in, models.DonationPending, true)
	if err != nil {
		return nil, err
	}
	if err := s.donations.Create(d); err != nil {
		return nil, err
	}

	prommetrics.RecordDonationCreated(string(d.PaymentMethod))
	s.log.Info().
		Uint("donation_id", d.ID).
		Str("amount", d.Amount.StringFixed(2)).
		Str("method", string(d.PaymentMethod)).
		Int("points", d.PointsAwarded).
		Msg("Donation created")

	return d, nil
}

// CreateCompleted persists a donation that is already paid and runs the
// completion fan-out. Subscriptions charge through it, so the campaign only
// has to exist: a subscription keeps charging after its campaign closes.
func (s *Service) CreateCompleted(ctx context.Context, in CreateInput) (*models.Donation, error) {
	d, err := s.build(ctx, in, models.DonationCompleted, false)
	if err != nil {
		return nil, err
	}
	if err := s.donations.Create(d); err != nil {
		return nil, err
	}
	prommetrics.RecordDonationCreated(string(d.PaymentMethod))
	prommetrics.RecordDonationCompleted(SourceSubscription, d.Amount.InexactFloat64())

	loaded, err := s.donations.GetByID(d.ID)
	if err != nil {
		s.log.Warn().Err(err).Uint("donation_id", d.ID).Msg("Failed to reload donation before completion")
		loaded = d
	}
	s.complete(ctx, loaded)
	return loaded, nil
}

func (s *Service) build(ctx context.Context, in CreateInput, state models.DonationState, requireActive bool) (*models.Donation, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.BadRequest("monto must be greater than zero")
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.BadRequest("unknown metodo_pago %q", in.PaymentMethod)
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	if in.CampaignID != nil {
		c, err := s.campaigns.GetByID(*in.CampaignID)
		if repository.IsNotFound(err) {
			return nil, apperr.BadRequest("campaign %d does not exist", *in.CampaignID)
		}
		if err != nil {
			return nil, err
		}
		if requireActive && c.State != models.CampaignActive {
			return nil, apperr.BadRequest("campaign %d is not accepting donations", c.ID)
		}
	}

	return &models.Donation{
		UserID:           in.UserID,
		CampaignID:       in.CampaignID,
		SubscriptionID:   in.SubscriptionID,
		Amount:           in.Amount.Round(2),
		Currency:         currency,
		DonatedAt:        s.now(),
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		State:            state,
		Anonymous:        in.Anonymous,
		InvoiceRequested: in.InvoiceRequested,
		ReceiptEmail:     strings.TrimSpace(in.ReceiptEmail),
		AcceptedTerms:    in.AcceptedTerms,
		AcceptedNews:     in.AcceptedNews,
		PointsAwarded:    s.Points(ctx, in.Amount),
		DonorIP:          in.DonorIP,
		Notes:            in.Notes,
	}, nil
}

// Points returns floor(amount * points per dollar) with the current configuration.
func (s *Service) Points(ctx context.Context, amount decimal.Decimal) int {
	ratio := s.settings.GetNumber(ctx, models.ConfigKeyPointsPerDollar, s.defaultPoints)
	points := amount.Mul(decimal.NewFromFloat(ratio)).Floor().IntPart()
	if points < 0 {
		return 0
	}
	return int(points)
}

// UpdateState moves a donation to another state. Only pending donations
// change freely; a completed donation may only be refunded.
func (s *Service) UpdateState(ctx context.Context, id uint, state models.DonationState, reference string) (*models.Donation, error) {
	return s.transition(ctx, id, state, reference, SourceManual)
}

func (s *Service) transition(ctx context.Context, id uint, state models.DonationState, reference, source string) (*models.Donation, error) {
	if !state.Valid() {
		return nil, apperr.BadRequest("unknown donation state %q", state)
	}

	d, err := s.donations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if d.State == state {
		return d, nil
	}

	previous := d.State
	switch {
	case previous == models.DonationPending:
	case previous == models.DonationCompleted && state == models.DonationRefunded:
	default:
		return nil, apperr.BadRequest("donation %d cannot change from %s to %s", id, previous, state)
	}

	reference = strings.TrimSpace(reference)
	applied, err := s.donations.UpdateState(id, previous, state, reference)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another request moved the donation first; its caller runs the side effects.
		current, err := s.donations.GetByID(id)
		if err != nil {
			return nil, err
		}
		s.log.Info().
			Uint("donation_id", id).
			Str("expected", string(previous)).
			Str("current", string(current.State)).
			Str("source", source).
			Msg("Donation state already changed")
		if current.State == state {
			return current, nil
		}
		return nil, apperr.Conflict("donation %d changed to %s concurrently", id, current.State)
	}
	d.State = state
	if reference != "" {
		d.PaymentReference = reference
	}

	s.log.Info().
		Uint("donation_id", id).
		Str("from", string(previous)).
		Str("to", string(state)).
		Str("source", source).
		Msg("Donation state changed")

	switch state {
	case models.DonationCompleted:
		prommetrics.RecordDonationCompleted(source, d.Amount.InexactFloat64())
		s.complete(ctx, d)
	case models.DonationRefunded:
		if previous == models.DonationCompleted {
			s.runStep(ctx, d, StepCampaign, s.recalculateCampaign)
		}
	}
	return d, nil
}

type step struct {
	name string
	run  func(context.Context, *models.Donation) error
}

func (s *Service) steps() []step {
	return []step{
		{StepReceipt, s.issueReceipt},
		{StepInvoice, s.issueInvoice},
		{StepCampaign, s.recalculateCampaign},
		{StepPoints, s.awardPoints},
		{StepNotify, s.notifyDonor},
	}
}

// complete runs every completion step. A failing step is logged and counted,
// and never undoes the state change or stops the following steps.
func (s *Service) complete(ctx context.Context, d *models.Donation) []string {
	var failed []string
	for _, st := range s.steps() {
		if !s.runStep(ctx, d, st.name, st.run) {
			failed = append(failed, st.name)
		}
	}
	if len(failed) > 0 {
		s.log.Warn().
			Uint("donation_id", d.ID).
			Strs("failed_steps", failed).
			Msg("Donation completed with pending side effects")
	}
	return failed
}

func (s *Service) runStep(ctx context.Context, d *models.Donation, name string, run func(context.Context, *models.Donation) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			prommetrics.RecordSideEffectFailure(name)
			s.log.Error().
				Uint("donation_id", d.ID).
				Str("step", name).
				Interface("panic", r).
				Msg("Donation completion step panicked")
			ok = false
		}
	}()

	if err := run(ctx, d); err != nil {
		prommetrics.RecordSideEffectFailure(name)
		s.log.Error().
			Err(err).
			Uint("donation_id", d.ID).
			Str("step", name).
			Msg("Donation completion step failed")
		return false
	}
	return true
}

func (s *Service) issueReceipt(ctx context.Context, d *models.Donation) error {
	_, err := s.completion.Receipts.Generate(ctx, d.ID)
	return err
}

func (s *Service) issueInvoice(ctx context.Context, d *models.Donation) error {
	if !d.InvoiceRequested || d.UserID == nil {
		return nil
	}
	_, err := s.completion.Invoices.GenerateAutomatic(ctx, d.ID)
	return err
}

func (s *Service) recalculateCampaign(ctx context.Context, d *models.Donation) error {
	if d.CampaignID == nil {
		return nil
	}
	_, err := s.completion.Campaigns.RecalculateTotals(ctx, *d.CampaignID)
	return err
}

func (s *Service) awardPoints(ctx context.Context, d *models.Donation) error {
	if d.UserID == nil || d.PointsAwarded == 0 {
		return nil
	}
	_, err := s.completion.Points.AwardPoints(ctx, *d.UserID, d.PointsAwarded)
	return err
}

func (s *Service) notifyDonor(ctx context.Context, d *models.Donation) error {
	campaign := ""
	if d.Campaign != nil {
		campaign = d.Campaign.Name
	}

	to, name := d.ReceiptEmail, ""
	if d.User != nil {
		name = d.User.FullName()
		if to == "" {
			to = d.User.Email
		}
	}

	var errs []error
	if to != "" && !s.completion.Mailer.DonationConfirmation(ctx, to, name, d, campaign) {
		errs = append(errs, errors.New("donation confirmation email was not sent"))
	}

	if d.UserID != nil {
		message := fmt.Sprintf("Recibimos tu donación de $%s %s. ¡Gracias!", d.Amount.StringFixed(2), d.Currency)
		if campaign != "" {
			message = fmt.Sprintf("Recibimos tu donación de $%s %s para %s. ¡Gracias!", d.Amount.StringFixed(2), d.Currency, campaign)
		}
		data := map[string]any{
			"id_donacion":      d.ID,
			"puntos_otorgados": d.PointsAwarded,
		}
		if err := s.completion.Notifier.Notify(ctx, *d.UserID, models.NotificationDonation, "Donación confirmada", message, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a donation visible to the requester.
func (s *Service) Get(_ context.Context, userID uint, isAdmin bool, id uint) (*models.Donation, error) {
	d, err := s.donations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !d.OwnedBy(userID) {
		return nil, apperr.Forbidden("donation %d does not belong to the user", id)
	}
	return d, nil
}

// List returns a page of donations, optionally filtered by state.
func (s *Service) List(_ context.Context, state *models.DonationState, p repository.Pagination) ([]models.Donation, int64, error) {
	if state != nil && !state.Valid() {
		return nil, 0, apperr.BadRequest("unknown donation state %q", *state)
	}
	return s.donations.List(repository.DonationFilter{State: state}, p)
}

// ListForUser returns a page of the user's donations.
func (s *Service) ListForUser(_ context.Context, userID uint, p repository.Pagination) ([]models.Donation, int64, error) {
	return s.donations.List(repository.DonationFilter{UserID: &userID}, p)
}

// Dashboard returns counts by state, completed sums by payment method and the
// completed sum of each of the last 30 days.
func (s *Service) Dashboard(_ context.Context) (*Dashboard, error) {
	byState, err := s.donations.CountByState()
	if err != nil {
		return nil, err
	}
	byMethod, err := s.donations.CompletedByPaymentMethod(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	total, count, err := s.donations.CompletedTotals(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from := today.AddDate(0, 0, -(dashboardDays - 1))
	recent, err := s.donations.CompletedBetween(from, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	days := make([]DailyTotal, dashboardDays)
	index := make(map[string]int, dashboardDays)
	for i := range days {
		key := from.AddDate(0, 0, i).Format(time.DateOnly)
		days[i] = DailyTotal{Date: key, Total: decimal.Zero}
		index[key] = i
	}
	for _, d := range recent {
		i, ok := index[d.DonatedAt.In(now.Location()).Format(time.DateOnly)]
		if !ok {
			continue
		}
		days[i].Total = days[i].Total.Add(d.Amount)
		days[i].Count++
	}

	return &Dashboard{
		ByState:         byState,
		ByPaymentMethod: byMethod,
		TotalCompleted:  total,
		CompletedCount:  count,
		LastDays:        days,
	}, nil
}

// Checkout opens a payment gateway session for a pending donation. Anonymous
// requesters pass userID 0 and may only pay donations without an owner.
func (s *Service) Checkout(ctx context.Context, userID uint, id uint) (*payment.Checkout, error) {
	d, err := s.donations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if d.UserID != nil && !d.OwnedBy(userID) {
		return nil, apperr.Forbidden("donation %d does not belong to the user", id)
	}

	customer := payment.Customer{Email: d.ReceiptEmail}
	if d.User != nil {
		customer.FirstName = d.User.FirstName
		customer.LastName = d.User.LastName
		customer.Phone = d.User.Phone
		if customer.Email == "" {
			customer.Email = d.User.Email
		}
	}
	return s.gateway.CreateCheckout(ctx, d, customer)
}

// HandleNotification applies a payment gateway notification to its donation.
// Notifications that do not change the state, or that arrive after the
// donation left the pending state, are acknowledged without changes.
func (s *Service) HandleNotification(ctx context.Context, n *payment.Notification) (*models.Donation, error) {
	if !s.gateway.VerifySignature(n) {
		return nil, apperr.Unauthorized("invalid notification signature")
	}
	id, err := payment.ParseOrderID(n.OrderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err, "unknown order")
	}

	state, ok := payment.MapStatus(n.TransactionStatus, n.FraudStatus)
	if !ok {
		s.log.Debug().
			Str("order_id", n.OrderID).
			Str("status", n.TransactionStatus).
			Msg("Payment notification does not change the donation")
		return s.donations.GetByID(id)
	}

	d, err := s.transition(ctx, id, state, n.TransactionID, SourceGateway)
	if apperr.Is(err, apperr.KindBadRequest) {
		s.log.Warn().
			Err(err).
			Str("order_id", n.OrderID).
			Str("status", n.TransactionStatus).
			Msg("Ignoring payment notification")
		return s.donations.GetByID(id)
	}
	return d, err
}
