package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// InvoiceRepository handles invoices and the fiscal data they are issued with.
type InvoiceRepository struct {
	db *DB
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create stores an invoice.
func (r *InvoiceRepository) Create(inv *models.Invoice) error {
	if err := r.db.Omit("Donation", "FiscalData").Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Update saves the invoice.
func (r *InvoiceRepository) Update(inv *models.Invoice) error {
	if err := r.db.Omit("Donation", "FiscalData").Save(inv).Error; err != nil {
		return fmt.Errorf("failed to update invoice %d: %w", inv.ID, err)
	}
	return nil
}

// GetByID retrieves an invoice with donation and fiscal data.
func (r *InvoiceRepository) GetByID(id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Preload("Donation").Preload("Donation.Campaign").Preload("Donation.User").Preload("FiscalData").
		First(&inv, id).Error
	if err != nil {
		return nil, lookupErr(err, "invoice %d", id)
	}
	return &inv, nil
}

// GetByDonation retrieves the invoice of a donation.
func (r *InvoiceRepository) GetByDonation(donationID uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.Where("id_donacion = ?", donationID).First(&inv).Error; err != nil {
		return nil, lookupErr(err, "invoice of donation %d", donationID)
	}
	return &inv, nil
}

// ListForUser returns the invoices of a user's donations.
func (r *InvoiceRepository) ListForUser(userID uint, p Pagination) ([]models.Invoice, int64, error) {
	query := r.db.Model(&models.Invoice{}).
		Joins("JOIN donaciones ON donaciones.id_donacion = facturas.id_donacion").
		Where("donaciones.id_usuario = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	var items []models.Invoice
	err := query.Scopes(paginate(p)).
		Preload("FiscalData").
		Order("facturas.fecha_emision DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices of user %d: %w", userID, err)
	}
	return items, total, nil
}

// Search matches the invoice number or the fiscal tax id.
func (r *InvoiceRepository) Search(text string, p Pagination) ([]models.Invoice, int64, error) {
	like := "%" + strings.ToUpper(text) + "%"
	query := r.db.Model(&models.Invoice{}).
		Joins("JOIN datos_fiscales ON datos_fiscales.id_datos_fiscales = facturas.id_datos_fiscales").
		Where("UPPER(facturas.numero_factura) LIKE ? OR UPPER(datos_fiscales.rfc) LIKE ?", like, like)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	var items []models.Invoice
	err := query.Scopes(paginate(p)).
		Preload("FiscalData").
		Order("facturas.fecha_emision DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search invoices: %w", err)
	}
	return items, total, nil
}

// CountIssuedBetween counts invoices issued within [from, to).
func (r *InvoiceRepository) CountIssuedBetween(from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("fecha_emision >= ? AND fecha_emision < ?", from, to).
		Count(&count).Error
	return count, err
}

// MarkSent records a successful email delivery.
func (r *InvoiceRepository) MarkSent(id uint, at time.Time) error {
	return r.db.Model(&models.Invoice{}).
		Where("id_factura = ?", id).
		Updates(map[string]any{"enviada_email": true, "fecha_envio": at}).Error
}

// SetState changes the invoice state.
func (r *InvoiceRepository) SetState(id uint, state models.InvoiceState) error {
	res := r.db.Model(&models.Invoice{}).Where("id_factura = ?", id).Update("estado", state)
	if res.Error != nil {
		return fmt.Errorf("failed to update invoice %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupErr(errNotFound, "invoice %d", id)
	}
	return nil
}

// SaveFiscalData creates the record, or updates it when the user already registered the same tax id.
func (r *InvoiceRepository) SaveFiscalData(fd *models.FiscalData) error {
	var existing models.FiscalData
	err := r.db.Where("id_usuario = ? AND rfc = ?", fd.UserID, fd.TaxID).First(&existing).Error
	if IsNotFound(err) {
		if err := r.db.Omit("User").Create(fd).Error; err != nil {
			return fmt.Errorf("failed to create fiscal data: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get fiscal data: %w", err)
	}

	fd.ID = existing.ID
	fd.RegisteredAt = existing.RegisteredAt
	if err := r.db.Omit("User").Save(fd).Error; err != nil {
		return fmt.Errorf("failed to update fiscal data %d: %w", fd.ID, err)
	}
	return nil
}

// GetFiscalData retrieves fiscal data by ID.
func (r *InvoiceRepository) GetFiscalData(id uint) (*models.FiscalData, error) {
	var fd models.FiscalData
	if err := r.db.First(&fd, id).Error; err != nil {
		return nil, lookupErr(err, "fiscal data %d", id)
	}
	return &fd, nil
}

// ListFiscalData returns the user's fiscal data, most recently updated first.
func (r *InvoiceRepository) ListFiscalData(userID uint) ([]models.FiscalData, error) {
	var items []models.FiscalData
	err := r.db.Where("id_usuario = ?", userID).
		Order("ultima_actualizacion DESC, id_datos_fiscales DESC").
		Find(&items).Error
	return items, err
}

// LatestFiscalData returns the user's most recently updated fiscal data.
func (r *InvoiceRepository) LatestFiscalData(userID uint) (*models.FiscalData, error) {
	var fd models.FiscalData
	err := r.db.Where("id_usuario = ?", userID).
		Order("ultima_actualizacion DESC, id_datos_fiscales DESC").
		First(&fd).Error
	if err != nil {
		return nil, lookupErr(err, "fiscal data of user %d", userID)
	}
	return &fd, nil
}
