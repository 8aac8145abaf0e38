// Package invoices issues fiscal invoices for completed donations.
package invoices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
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
	numberAttempts = 5
	keyPrefix      = "facturas/"
)

// Repository interface for invoice and fiscal data persistence.
type Repository interface {
	Create(inv *models.Invoice) error
	Update(inv *models.Invoice) error
	GetByID(id uint) (*models.Invoice, error)
	GetByDonation(donationID uint) (*models.Invoice, error)
	ListForUser(userID uint, p repository.Pagination) ([]models.Invoice, int64, error)
	Search(text string, p repository.Pagination) ([]models.Invoice, int64, error)
	CountIssuedBetween(from, to time.Time) (int64, error)
	MarkSent(id uint, at time.Time) error
	SetState(id uint, state models.InvoiceState) error
	SaveFiscalData(fd *models.FiscalData) error
	GetFiscalData(id uint) (*models.FiscalData, error)
	ListFiscalData(userID uint) ([]models.FiscalData, error)
	LatestFiscalData(userID uint) (*models.FiscalData, error)
}

// DonationRepository interface for the donations invoices are issued for.
type DonationRepository interface {
	GetByID(id uint) (*models.Donation, error)
}

// Renderer renders invoice PDFs.
type Renderer interface {
	RenderInvoice(data documents.Invoice) ([]byte, error)
}

// Mailer delivers invoices.
type Mailer interface {
	InvoiceDelivery(ctx context.Context, to string, invoice *models.Invoice, pdf []byte) bool
}

// Settings reads configuration values.
type Settings interface {
	GetString(ctx context.Context, key, def string) string
}

// FiscalDataInput holds the tax identity of a user.
type FiscalDataInput struct {
	TaxID         string `json:"rfc" binding:"required,max=20"`
	LegalName     string `json:"razon_social" binding:"required,max=255"`
	FiscalAddress string `json:"direccion_fiscal" binding:"max=255"`
	BillingEmail  string `json:"correo_facturacion" binding:"omitempty,email,max=100"`
	RequiresCFDI  bool   `json:"requiere_cfdi"`
}

// Service issues and serves invoices.
type Service struct {
	invoices  Repository
	donations DonationRepository
	renderer  Renderer
	store     storage.Storage
	mailer    Mailer
	settings  Settings
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates a new invoice service.
func NewService(
	invoices *repository.InvoiceRepository,
	donations *repository.DonationRepository,
	renderer *documents.Renderer,
	store storage.Storage,
	mailer Mailer,
	settings Settings,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(invoices, donations, renderer, store, mailer, settings, log)
}

// NewServiceWithInterfaces creates a new invoice service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	invoices Repository,
	donations DonationRepository,
	renderer Renderer,
	store storage.Storage,
	mailer Mailer,
	settings Settings,
	log *logger.Logger,
) *Service {
	return &Service{
		invoices:  invoices,
		donations: donations,
		renderer:  renderer,
		store:     store,
		mailer:    mailer,
		settings:  settings,
		now:       time.Now,
		log:       log,
	}
}

// SaveFiscalData creates the user's fiscal data, or updates it when the same
// tax id is already registered.
func (s *Service) SaveFiscalData(_ context.Context, userID uint, in FiscalDataInput) (*models.FiscalData, error) {
	taxID := strings.ToUpper(strings.TrimSpace(in.TaxID))
	legal := strings.TrimSpace(in.LegalName)
	if taxID == "" || legal == "" {
		return nil, apperr.BadRequest("rfc and razon_social are required")
	}

	fd := &models.FiscalData{
		UserID:        userID,
		TaxID:         taxID,
		LegalName:     legal,
		FiscalAddress: in.FiscalAddress,
		BillingEmail:  strings.TrimSpace(in.BillingEmail),
		RequiresCFDI:  in.RequiresCFDI,
	}
	if err := s.invoices.SaveFiscalData(fd); err != nil {
		return nil, err
	}
	return fd, nil
}

// ListFiscalData returns the user's fiscal data, most recent first.
func (s *Service) ListFiscalData(_ context.Context, userID uint) ([]models.FiscalData, error) {
	return s.invoices.ListFiscalData(userID)
}

// LatestFiscalData returns the user's most recently updated fiscal data.
func (s *Service) LatestFiscalData(_ context.Context, userID uint) (*models.FiscalData, error) {
	return s.invoices.LatestFiscalData(userID)
}

// Request issues an invoice the donor asked for.
func (s *Service) Request(ctx context.Context, userID, donationID, fiscalDataID uint) (*models.Invoice, error) {
	donation, err := s.donations.GetByID(donationID)
	if err != nil {
		return nil, err
	}
	if !donation.OwnedBy(userID) {
		return nil, apperr.Forbidden("donation %d does not belong to the user", donationID)
	}
	if !donation.IsCompleted() {
		return nil, apperr.BadRequest("donation %d is %s, invoices are issued for completed donations", donationID, donation.State)
	}

	fd, err := s.invoices.GetFiscalData(fiscalDataID)
	if err != nil {
		return nil, err
	}
	if fd.UserID != userID {
		return nil, apperr.Forbidden("fiscal data %d does not belong to the user", fiscalDataID)
	}

	if _, err := s.invoices.GetByDonation(donationID); err == nil {
		return nil, apperr.Conflict("donation %d already has an invoice", donationID)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	return s.issue(ctx, donation, fd)
}

// GenerateAutomatic issues the invoice of a completed donation with the
// owner's latest fiscal data. It returns (nil, nil) when the donation has no
// owner or the owner registered no fiscal data.
func (s *Service) GenerateAutomatic(ctx context.Context, donationID uint) (*models.Invoice, error) {
	existing, err := s.invoices.GetByDonation(donationID)
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
		return nil, apperr.BadRequest("donation %d is %s, invoices are issued for completed donations", donationID, donation.State)
	}
	if donation.UserID == nil {
		return nil, nil
	}

	fd, err := s.invoices.LatestFiscalData(*donation.UserID)
	if repository.IsNotFound(err) {
		s.log.Debug().Uint("donation_id", donationID).Msg("Owner has no fiscal data, skipping invoice")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, donation, fd)
}

func (s *Service) issue(ctx context.Context, donation *models.Donation, fd *models.FiscalData) (*models.Invoice, error) {
	inv, err := s.reserve(donation, fd)
	if err != nil {
		return nil, err
	}
	inv.Donation = donation
	inv.FiscalData = fd

	s.log.Info().
		Uint("donation_id", donation.ID).
		Str("number", inv.Number).
		Str("rfc", fd.TaxID).
		Msg("Invoice issued")

	inv, err = s.publish(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, inv, "")
	return inv, nil
}

// reserve inserts the invoice row under the next free FAC-{year}-{n} number.
func (s *Service) reserve(donation *models.Donation, fd *models.FiscalData) (*models.Invoice, error) {
	now := s.now()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	issued, err := s.invoices.CountIssuedBetween(from, from.AddDate(1, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}

	for attempt := range numberAttempts {
		inv := &models.Invoice{
			DonationID:   donation.ID,
			FiscalDataID: fd.ID,
			Number:       fmt.Sprintf("FAC-%d-%05d", now.Year(), issued+1+int64(attempt)),
			IssuedAt:     now,
			Subtotal:     donation.Amount,
			Taxes:        decimal.Zero,
			Total:        donation.Amount,
			SentToTax:    fd.RequiresCFDI,
			State:        models.InvoiceIssued,
		}
		err := s.invoices.Create(inv)
		if err == nil {
			return inv, nil
		}
		if !repository.IsDuplicate(err) {
			return nil, err
		}
		if _, lookupErr := s.invoices.GetByDonation(donation.ID); lookupErr == nil {
			return nil, apperr.Conflict("donation %d already has an invoice", donation.ID)
		}
	}
	return nil, fmt.Errorf("failed to allocate an invoice number for donation %d after %d attempts", donation.ID, numberAttempts)
}

func (s *Service) publish(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if inv.Donation == nil {
		d, err := s.donations.GetByID(inv.DonationID)
		if err != nil {
			return nil, err
		}
		inv.Donation = d
	}
	if inv.FiscalData == nil {
		fd, err := s.invoices.GetFiscalData(inv.FiscalDataID)
		if err != nil {
			return nil, err
		}
		inv.FiscalData = fd
	}

	data := documents.Invoice{
		Organization:  s.settings.GetString(ctx, models.ConfigKeyOrganizationName, ""),
		Number:        inv.Number,
		IssuedAt:      inv.IssuedAt,
		TaxID:         inv.FiscalData.TaxID,
		LegalName:     inv.FiscalData.LegalName,
		FiscalAddress: inv.FiscalData.FiscalAddress,
		Subtotal:      inv.Subtotal,
		Taxes:         inv.Taxes,
		Total:         inv.Total,
		Currency:      inv.Donation.Currency,
		DonationID:    inv.DonationID,
	}
	if c := inv.Donation.Campaign; c != nil {
		data.Concept = fmt.Sprintf("Donación #%d - %s", inv.DonationID, c.Name)
	}

	pdf, err := s.renderer.RenderInvoice(data)
	if err != nil {
		return nil, err
	}
	link, err := s.store.Save(ctx, key(inv.Number), bytes.NewReader(pdf), documents.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store invoice %s: %w", inv.Number, err)
	}

	inv.PDFURL = link
	if err := s.invoices.Update(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) deliver(ctx context.Context, inv *models.Invoice, override string) bool {
	to := recipient(inv, override)
	if to == "" {
		s.log.Debug().Str("number", inv.Number).Msg("Invoice has no recipient, skipping email")
		return false
	}

	pdf, err := s.load(ctx, inv.Number)
	if err != nil {
		s.log.Error().Err(err).Str("number", inv.Number).Msg("Failed to load invoice document")
		return false
	}
	if !s.mailer.InvoiceDelivery(ctx, to, inv, pdf) {
		return false
	}

	at := s.now()
	if err := s.invoices.MarkSent(inv.ID, at); err != nil {
		s.log.Warn().Err(err).Str("number", inv.Number).Msg("Failed to record invoice delivery")
		return true
	}
	inv.EmailSent = true
	inv.SentAt = &at
	return true
}

func recipient(inv *models.Invoice, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if inv.FiscalData != nil && inv.FiscalData.BillingEmail != "" {
		return inv.FiscalData.BillingEmail
	}
	if inv.Donation != nil && inv.Donation.User != nil {
		return inv.Donation.User.Email
	}
	return ""
}

func (s *Service) load(ctx context.Context, number string) ([]byte, error) {
	rd, err := s.store.Open(ctx, key(number))
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func key(number string) string {
	return keyPrefix + number + ".pdf"
}

// Get returns an invoice visible to the requester.
func (s *Service) Get(_ context.Context, userID uint, isAdmin bool, id uint) (*models.Invoice, error) {
	inv, err := s.invoices.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && (inv.Donation == nil || !inv.Donation.OwnedBy(userID)) {
		return nil, apperr.Forbidden("invoice %d does not belong to the user", id)
	}
	return inv, nil
}

// ListForUser returns a page of the user's invoices.
func (s *Service) ListForUser(_ context.Context, userID uint, p repository.Pagination) ([]models.Invoice, int64, error) {
	return s.invoices.ListForUser(userID, p)
}

// Search matches invoices by number or tax id.
func (s *Service) Search(_ context.Context, text string, p repository.Pagination) ([]models.Invoice, int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, apperr.BadRequest("search text is required")
	}
	return s.invoices.Search(text, p)
}

// Resend emails the invoice again, optionally to another address.
func (s *Service) Resend(ctx context.Context, userID uint, isAdmin bool, id uint, email string) (*models.Invoice, error) {
	inv, err := s.Get(ctx, userID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	if inv.State == models.InvoiceCancelled {
		return nil, apperr.BadRequest("invoice %s is cancelled", inv.Number)
	}
	if recipient(inv, email) == "" {
		return nil, apperr.BadRequest("no recipient email for invoice %s", inv.Number)
	}
	if !s.deliver(ctx, inv, email) {
		return nil, errors.New("failed to send invoice email")
	}
	return inv, nil
}

// Cancel marks an issued invoice as cancelled.
func (s *Service) Cancel(_ context.Context, id uint) (*models.Invoice, error) {
	inv, err := s.invoices.GetByID(id)
	if err != nil {
		return nil, err
	}
	if inv.State == models.InvoiceCancelled {
		return nil, apperr.BadRequest("invoice %s is already cancelled", inv.Number)
	}
	if err := s.invoices.SetState(id, models.InvoiceCancelled); err != nil {
		return nil, err
	}
	inv.State = models.InvoiceCancelled

	s.log.Info().Uint("invoice_id", id).Str("number", inv.Number).Msg("Invoice cancelled")
	return inv, nil
}

// PDF returns the stored document of an invoice visible to the requester.
func (s *Service) PDF(ctx context.Context, userID uint, isAdmin bool, id uint) ([]byte, string, error) {
	inv, err := s.Get(ctx, userID, isAdmin, id)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.load(ctx, inv.Number)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNotFound, err, "invoice document not found")
	}
	return pdf, inv.Number + ".pdf", nil
}
