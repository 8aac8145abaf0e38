package repository

import (
	"fmt"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// ReceiptRepository handles issued receipts.
type ReceiptRepository struct {
	db *DB
}

// NewReceiptRepository creates a new receipt repository.
func NewReceiptRepository(db *DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create stores a receipt.
func (r *ReceiptRepository) Create(rc *models.Receipt) error {
	if err := r.db.Omit("Donation").Create(rc).Error; err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

// Update saves the receipt.
func (r *ReceiptRepository) Update(rc *models.Receipt) error {
	if err := r.db.Omit("Donation").Save(rc).Error; err != nil {
		return fmt.Errorf("failed to update receipt %d: %w", rc.ID, err)
	}
	return nil
}

// GetByID retrieves a receipt with its donation and campaign.
func (r *ReceiptRepository) GetByID(id uint) (*models.Receipt, error) {
	var rc models.Receipt
	err := r.db.Preload("Donation").Preload("Donation.Campaign").Preload("Donation.User").First(&rc, id).Error
	if err != nil {
		return nil, lookupErr(err, "receipt %d", id)
	}
	return &rc, nil
}

// GetByCode retrieves a receipt by its unique code.
func (r *ReceiptRepository) GetByCode(code string) (*models.Receipt, error) {
	var rc models.Receipt
	err := r.db.Preload("Donation").Preload("Donation.Campaign").Preload("Donation.User").
		Where("codigo_unico = ?", code).
		First(&rc).Error
	if err != nil {
		return nil, lookupErr(err, "receipt %s", code)
	}
	return &rc, nil
}

// GetByDonation retrieves the receipt of a donation.
func (r *ReceiptRepository) GetByDonation(donationID uint) (*models.Receipt, error) {
	var rc models.Receipt
	if err := r.db.Where("id_donacion = ?", donationID).First(&rc).Error; err != nil {
		return nil, lookupErr(err, "receipt of donation %d", donationID)
	}
	return &rc, nil
}

// CountIssuedBetween counts receipts issued within [from, to).
func (r *ReceiptRepository) CountIssuedBetween(from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Receipt{}).
		Where("fecha_emision >= ? AND fecha_emision < ?", from, to).
		Count(&count).Error
	return count, err
}

// MarkSent records a successful email delivery.
func (r *ReceiptRepository) MarkSent(id uint, to string, at time.Time) error {
	return r.db.Model(&models.Receipt{}).
		Where("id_comprobante = ?", id).
		Updates(map[string]any{"enviado_email": true, "fecha_envio": at, "correo_envio": to}).Error
}
