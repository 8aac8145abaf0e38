// Package receipts issues proof-of-donation documents for completed donations.
package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/documents"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/storage"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const (
	codeAttempts = 5
	keyPrefix    = "comprobantes/"
)

// Repository interface for receipt persistence.
type Repository interface {
	Create(rc *models.Receipt) error
	Update(rc *models.Receipt) error
	GetByID(id uint) (*models.Receipt, error)
	GetByCode(code string) (*models.Receipt, error)
	GetByDonation(donationID uint) (*models.Receipt, error)
	CountIssuedBetween(from, to time.Time) (int64, error)
	MarkSent(id uint, to string, at time.Time) error
}

// DonationRepository interface for the donations receipts are issued for.
type DonationRepository interface {
	GetByID(id uint) (*models.Donation, error)
}

// Renderer renders receipt PDFs.
type Renderer interface {
	RenderReceipt(data documents.Receipt) ([]byte, error)
}

// Mailer delivers receipts.
type Mailer interface {
	ReceiptDelivery(ctx context.Context, to string, receipt *models.Receipt, pdf []byte) bool
}

// Settings reads configuration values.
type Settings interface {
	GetString(ctx context.Context, key, def string) string
}

// Verification is the public answer to a receipt authenticity check.
type Verification struct {
	Verified bool     `json:"verificado"`
	Receipt  *Summary `json:"comprobante,omitempty"`
}

// Summary is the public view of a receipt.
type Summary struct {
	Code     string          `json:"codigo"`
	IssuedAt time.Time       `json:"fecha"`
	Amount   decimal.Decimal `json:"monto"`
	Currency string          `json:"moneda"`
	Campaign string          `json:"campana,omitempty"`
}

// Service issues and serves receipts.
type Service struct {
	receipts  Repository
	donations DonationRepository
	renderer  Renderer
	store     storage.Storage
	mailer    Mailer
	settings  Settings
	baseURL   string
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates a new receipt service.
func NewService(
	receipts *repository.ReceiptRepository,
	donations *repository.DonationRepository,
	renderer *documents.Renderer,
	store storage.Storage,
	mailer Mailer,
	settings Settings,
	baseURL string,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(receipts, donations, renderer, store, mailer, settings, baseURL, log)
}

// NewServiceWithInterfaces creates a new receipt service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	receipts Repository,
	donations DonationRepository,
	renderer Renderer,
	store storage.Storage,
	mailer Mailer,
	settings Settings,
	baseURL string,
	log *logger.Logger,
) *Service {
	return &Service{
		receipts:  receipts,
		donations: donations,
		renderer:  renderer,
		store:     store,
		mailer:    mailer,
		settings:  settings,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
		log:       log,
	}
}

// Generate issues the receipt of a completed donation. A donation that
// already has a receipt gets the existing one back.
func (s *Service) Generate(ctx context.Context, donationID uint) (*models.Receipt, error) {
	existing, err := s.receipts.GetByDonation(donationID)
	switch {
	case err == nil:
		if existing.PDFURL == "" {
			return s.publish(ctx, existing)
		}
		return existing, nil
	case !repository.IsNotFound(err):
		return nil, err
	}

	donation, err := s.donations.GetByID(donationID)
	if err != nil {
		return nil, err
	}
	if !donation.IsCompleted() {
		return nil, apperr.BadRequest("donation %d is %s, receipts are issued for completed donations", donationID, donation.State)
	}

	rc, err := s.reserve(donation)
	if err != nil {
		return nil, err
	}
	rc.Donation = donation

	s.log.Info().Uint("donation_id", donationID).Str("code", rc.Code).Msg("Receipt issued")

	rc, err = s.publish(ctx, rc)
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, rc, "")
	return rc, nil
}

// reserve inserts the receipt row under the next free COMP-{year}-{n} code.
func (s *Service) reserve(donation *models.Donation) (*models.Receipt, error) {
	now := s.now()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(1, 0, 0)
	issued, err := s.receipts.CountIssuedBetween(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count receipts: %w", err)
	}

	for attempt := range codeAttempts {
		rc := &models.Receipt{
			DonationID: donation.ID,
			Code:       fmt.Sprintf("COMP-%d-%05d", now.Year(), issued+1+int64(attempt)),
			IssuedAt:   now,
		}
		err := s.receipts.Create(rc)
		if err == nil {
			return rc, nil
		}
		if !repository.IsDuplicate(err) {
			return nil, err
		}
		if other, lookupErr := s.receipts.GetByDonation(donation.ID); lookupErr == nil {
			return other, nil
		}
	}
	return nil, fmt.Errorf("failed to allocate a receipt code for donation %d after %d attempts", donation.ID, codeAttempts)
}

// publish renders the PDF, stores it and records its URL.
func (s *Service) publish(ctx context.Context, rc *models.Receipt) (*models.Receipt, error) {
	if rc.Donation == nil {
		d, err := s.donations.GetByID(rc.DonationID)
		if err != nil {
			return nil, err
		}
		rc.Donation = d
	}

	pdf, err := s.render(ctx, rc)
	if err != nil {
		return nil, err
	}
	link, err := s.store.Save(ctx, key(rc.Code), bytes.NewReader(pdf), documents.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt %s: %w", rc.Code, err)
	}

	rc.PDFURL = link
	if err := s.receipts.Update(rc); err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Service) render(ctx context.Context, rc *models.Receipt) ([]byte, error) {
	d := rc.Donation
	data := documents.Receipt{
		Organization: s.settings.GetString(ctx, models.ConfigKeyOrganizationName, ""),
		Code:         rc.Code,
		IssuedAt:     rc.IssuedAt,
		Anonymous:    d.Anonymous,
		Amount:       d.Amount,
		Currency:     d.Currency,
		PaymentRef:   d.PaymentReference,
		DonatedAt:    d.DonatedAt,
		VerifyURL:    s.verifyURL(rc.Code),
	}
	if d.User != nil {
		data.DonorName = d.User.FullName()
		data.DonorEmail = d.User.Email
	}
	if d.Campaign != nil {
		data.Campaign = d.Campaign.Name
	}
	return s.renderer.RenderReceipt(data)
}

func (s *Service) verifyURL(code string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/comprobantes/verificar?codigo=" + url.QueryEscape(code)
}

// deliver emails the receipt. An empty override sends to the donation's
// receipt email, else to its owner.
func (s *Service) deliver(ctx context.Context, rc *models.Receipt, override string) bool {
	to := recipient(rc.Donation, override)
	if to == "" {
		s.log.Debug().Str("code", rc.Code).Msg("Receipt has no recipient, skipping email")
		return false
	}

	pdf, err := s.load(ctx, rc.Code)
	if err != nil {
		s.log.Error().Err(err).Str("code", rc.Code).Msg("Failed to load receipt document")
		return false
	}
	if !s.mailer.ReceiptDelivery(ctx, to, rc, pdf) {
		return false
	}

	at := s.now()
	if err := s.receipts.MarkSent(rc.ID, to, at); err != nil {
		s.log.Warn().Err(err).Str("code", rc.Code).Msg("Failed to record receipt delivery")
		return true
	}
	rc.EmailSent = true
	rc.SentAt = &at
	rc.SentTo = to
	return true
}

func recipient(d *models.Donation, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if d == nil {
		return ""
	}
	if d.ReceiptEmail != "" {
		return d.ReceiptEmail
	}
	if d.User != nil {
		return d.User.Email
	}
	return ""
}

func (s *Service) load(ctx context.Context, code string) ([]byte, error) {
	rd, err := s.store.Open(ctx, key(code))
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func key(code string) string {
	return keyPrefix + code + ".pdf"
}

// Get returns a receipt visible to the requester.
func (s *Service) Get(_ context.Context, userID uint, isAdmin bool, id uint) (*models.Receipt, error) {
	rc, err := s.receipts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(rc, userID, isAdmin); err != nil {
		return nil, err
	}
	return rc, nil
}

// GetByCode returns a receipt by code, visible to the requester.
func (s *Service) GetByCode(_ context.Context, userID uint, isAdmin bool, code string) (*models.Receipt, error) {
	rc, err := s.receipts.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if err := authorize(rc, userID, isAdmin); err != nil {
		return nil, err
	}
	return rc, nil
}

func authorize(rc *models.Receipt, userID uint, isAdmin bool) error {
	if isAdmin || (rc.Donation != nil && rc.Donation.OwnedBy(userID)) {
		return nil
	}
	return apperr.Forbidden("receipt %d does not belong to the user", rc.ID)
}

// Verify reports whether a code belongs to an issued receipt. Unknown codes are
// not an error.
func (s *Service) Verify(_ context.Context, code string) (*Verification, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.BadRequest("codigo is required")
	}

	rc, err := s.receipts.GetByCode(code)
	if repository.IsNotFound(err) {
		return &Verification{Verified: false}, nil
	}
	if err != nil {
		return nil, err
	}

	summary := &Summary{Code: rc.Code, IssuedAt: rc.IssuedAt}
	if d := rc.Donation; d != nil {
		summary.Amount = d.Amount
		summary.Currency = d.Currency
		if d.Campaign != nil {
			summary.Campaign = d.Campaign.Name
		}
	}
	return &Verification{Verified: true, Receipt: summary}, nil
}

// Resend emails the receipt again, optionally to another address.
func (s *Service) Resend(ctx context.Context, userID uint, isAdmin bool, id uint, email string) (*models.Receipt, error) {
	rc, err := s.Get(ctx, userID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	if recipient(rc.Donation, email) == "" {
		return nil, apperr.BadRequest("no recipient email for receipt %s", rc.Code)
	}
	if !s.deliver(ctx, rc, email) {
		return nil, errors.New("failed to send receipt email")
	}
	return rc, nil
}

// PDF returns the stored document of a receipt visible to the requester.
func (s *Service) PDF(ctx context.Context, userID uint, isAdmin bool, id uint) ([]byte, string, error) {
	rc, err := s.Get(ctx, userID, isAdmin, id)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.load(ctx, rc.Code)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNotFound, err, "receipt document not found")
	}
	return pdf, rc.Code + ".pdf", nil
}
