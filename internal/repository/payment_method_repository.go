package repository

import (
	"fmt"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// PaymentMethodRepository handles stored payment method references.
type PaymentMethodRepository struct {
	db *DB
}

// NewPaymentMethodRepository creates a new payment method repository.
func NewPaymentMethodRepository(db *DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

// Create stores a new payment method.
func (r *PaymentMethodRepository) Create(pm *models.PaymentMethod) error {
	if err := r.db.Create(pm).Error; err != nil {
		return fmt.Errorf("failed to create payment method: %w", err)
	}
	return nil
}

// GetByID retrieves a payment method by ID.
func (r *PaymentMethodRepository) GetByID(id uint) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	if err := r.db.First(&pm, id).Error; err != nil {
		return nil, lookupErr(err, "payment method %d", id)
	}
	return &pm, nil
}

// ListForUser returns the user's payment methods, newest first.
func (r *PaymentMethodRepository) ListForUser(userID uint, onlyActive bool) ([]models.PaymentMethod, error) {
	query := r.db.Where("id_usuario = ?", userID)
	if onlyActive {
		query = query.Where("activo = ?", true)
	}

	var items []models.PaymentMethod
	if err := query.Order("fecha_registro DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment methods of user %d: %w", userID, err)
	}
	return items, nil
}

// Update saves the payment method.
func (r *PaymentMethodRepository) Update(pm *models.PaymentMethod) error {
	if err := r.db.Save(pm).Error; err != nil {
		return fmt.Errorf("failed to update payment method %d: %w", pm.ID, err)
	}
	return nil
}

// Deactivate clears the active flag.
func (r *PaymentMethodRepository) Deactivate(id uint) error {
	return r.db.Model(&models.PaymentMethod{}).Where("id_metodo_pago = ?", id).Update("activo", false).Error
}
