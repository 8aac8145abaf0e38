// Package paymentmethods manages the tokenized payment instruments of each user.
package paymentmethods

import (
	"context"
	"strings"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Repository interface for payment method persistence.
type Repository interface {
	Create(pm *models.PaymentMethod) error
	GetByID(id uint) (*models.PaymentMethod, error)
	ListForUser(userID uint, onlyActive bool) ([]models.PaymentMethod, error)
	Update(pm *models.PaymentMethod) error
	Deactivate(id uint) error
}

// CreateInput holds a new payment method. Only the processor token is stored.
type CreateInput struct {
	Type           models.PaymentType `json:"tipo" binding:"required,oneof=Tarjeta PLUX PayPal"`
	TokenReference string             `json:"token_referencia" binding:"required,max=255"`
	Alias          string             `json:"alias" binding:"max=100"`
	LastDigits     string             `json:"ultimo_digitos" binding:"omitempty,len=4,numeric"`
	Bank           string             `json:"banco" binding:"max=100"`
	AccountType    string             `json:"tipo_cuenta" binding:"max=50"`
}

// UpdateInput holds the editable display fields.
type UpdateInput struct {
	Alias *string `json:"alias" binding:"omitempty,max=100"`
}

// Service handles payment method operations.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new payment method service.
func NewService(repo *repository.PaymentMethodRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, log)
}

// NewServiceWithInterfaces creates a new payment method service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Create stores an active payment method for the user.
func (s *Service) Create(_ context.Context, userID uint, in CreateInput) (*models.PaymentMethod, error) {
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("invalid payment type %q", in.Type)
	}
	if strings.TrimSpace(in.TokenReference) == "" {
		return nil, apperr.BadRequest("token_referencia is required")
	}

	pm := &models.PaymentMethod{
		UserID:         userID,
		Type:           in.Type,
		TokenReference: in.TokenReference,
		Alias:          in.Alias,
		LastDigits:     in.LastDigits,
		Bank:           in.Bank,
		AccountType:    in.AccountType,
		Active:         true,
	}
	if err := s.repo.Create(pm); err != nil {
		return nil, err
	}

	s.log.Info().Uint("user_id", userID).Uint("payment_method_id", pm.ID).Str("type", string(pm.Type)).Msg("Payment method registered")
	return pm, nil
}

// ListForUser returns the user's payment methods.
func (s *Service) ListForUser(_ context.Context, userID uint, onlyActive bool) ([]models.PaymentMethod, error) {
	return s.repo.ListForUser(userID, onlyActive)
}

// Get returns a payment method owned by the user.
func (s *Service) Get(_ context.Context, userID, id uint) (*models.PaymentMethod, error) {
	pm, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if pm.UserID != userID {
		return nil, apperr.Forbidden("payment method %d does not belong to the user", id)
	}
	return pm, nil
}

// Update changes the alias of an owned payment method.
func (s *Service) Update(ctx context.Context, userID, id uint, in UpdateInput) (*models.PaymentMethod, error) {
	pm, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Alias != nil {
		pm.Alias = strings.TrimSpace(*in.Alias)
	}
	if err := s.repo.Update(pm); err != nil {
		return nil, err
	}
	return pm, nil
}

// Deactivate disables an owned payment method. Subscriptions charging it are
// skipped by billing from then on.
func (s *Service) Deactivate(ctx context.Context, userID, id uint) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(id); err != nil {
		return err
	}
	s.log.Info().Uint("user_id", userID).Uint("payment_method_id", id).Msg("Payment method deactivated")
	return nil
}

// GetActiveOwned returns the payment method when it exists, belongs to the
// user and is active. Any other case is a BadRequest.
func (s *Service) GetActiveOwned(_ context.Context, userID, id uint) (*models.PaymentMethod, error) {
	pm, err := s.repo.GetByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.BadRequest("payment method %d does not exist", id)
		}
		return nil, err
	}
	if pm.UserID != userID {
		return nil, apperr.BadRequest("payment method %d does not belong to the user", id)
	}
	if !pm.Active {
		return nil, apperr.BadRequest("payment method %d is not active", id)
	}
	return pm, nil
}
