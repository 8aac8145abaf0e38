// Package rewards implements the points engine and the reward catalog.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const codeAttempts = 5

// RewardRepository interface for catalog and assignment operations.
type RewardRepository interface {
	Create(reward *models.Reward) error
	GetByID(id uint) (*models.Reward, error)
	GetByName(name string) (*models.Reward, error)
	List(f repository.RewardFilter, p repository.Pagination) ([]models.Reward, int64, error)
	Update(reward *models.Reward) error
	Delete(id uint) error
	AvailableForUser(userID uint, points int) ([]models.Reward, error)
	Assign(ur *models.UserReward, finiteStock bool) error
	HasUserReward(userID, rewardID uint) (bool, error)
	CodeExists(code string) (bool, error)
	GetUserReward(userID, rewardID uint) (*models.UserReward, error)
	UpdateUserRewardState(ur *models.UserReward) error
	GetHoldersCount(rewardID uint) (int64, error)
}

// UserRepository interface for point balances.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	AddPoints(id uint, points int) (*models.User, error)
}

// Mailer sends the reward assignment email.
type Mailer interface {
	RewardAssigned(ctx context.Context, user *models.User, reward *models.Reward, code string) bool
}

// Notifier stores in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind models.NotificationType, title, message string, data map[string]any) error
}

// CreateInput holds a new catalog entry. A nil stock means unlimited inventory.
type CreateInput struct {
	Name           string            `json:"nombre" binding:"required,max=100"`
	Description    string            `json:"descripcion"`
	PointsRequired int               `json:"puntos_requeridos" binding:"gte=0"`
	Type           models.RewardType `json:"tipo" binding:"required,oneof=Insignia Certificado Experiencia Descuento"`
	ImageURL       string            `json:"imagen_url" binding:"omitempty,max=255"`
	Active         *bool             `json:"activa"`
	Stock          *int              `json:"cantidad_disponible" binding:"omitempty,gte=0"`
}

// UpdateInput holds the editable catalog fields. Nil fields are left untouched.
type UpdateInput struct {
	Name           *string            `json:"nombre" binding:"omitempty,min=1,max=100"`
	Description    *string            `json:"descripcion"`
	PointsRequired *int               `json:"puntos_requeridos" binding:"omitempty,gte=0"`
	Type           *models.RewardType `json:"tipo" binding:"omitempty,oneof=Insignia Certificado Experiencia Descuento"`
	ImageURL       *string            `json:"imagen_url" binding:"omitempty,max=255"`
	Active         *bool              `json:"activa"`
	Stock          *int               `json:"cantidad_disponible" binding:"omitempty,gte=0"`
	UnlimitedStock bool               `json:"inventario_ilimitado"`
}

// AssignInput holds an assignment request. Code is generated when empty.
type AssignInput struct {
	UserID   uint   `json:"id_usuario" binding:"required"`
	RewardID uint   `json:"id_recompensa" binding:"required"`
	Code     string `json:"codigo_unico" binding:"omitempty,max=50"`
	Notes    string `json:"notas"`
}

// Service handles points and rewards.
type Service struct {
	rewards  RewardRepository
	users    UserRepository
	mailer   Mailer
	notifier Notifier
	now      func() time.Time
	digits   func() int
	log      *logger.Logger
}

// NewService creates a new rewards service.
func NewService(
	rewards *repository.RewardRepository,
	users *repository.UserRepository,
	mailer Mailer,
	notifier Notifier,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(rewards, users, mailer, notifier, log)
}

// NewServiceWithInterfaces creates a new rewards service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	rewards RewardRepository,
	users UserRepository,
	mailer Mailer,
	notifier Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		rewards:  rewards,
		users:    users,
		mailer:   mailer,
		notifier: notifier,
		now:      time.Now,
		digits:   func() int { return rand.IntN(100000) },
		log:      log,
	}
}

// AwardPoints adds points to the user's lifetime total and recomputes the tier
// from the stored total.
func (s *Service) AwardPoints(_ context.Context, userID uint, points int) (*models.User, error) {
	if points < 0 {
		return nil, apperr.BadRequest("points must not be negative")
	}
	if points == 0 {
		return s.users.GetByID(userID)
	}

	user, err := s.users.AddPoints(userID, points)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Uint("user_id", userID).
		Int("points", points).
		Int("total", user.Points).
		Str("tier", string(user.Tier)).
		Msg("Points awarded")
	return user, nil
}

// Create adds a reward to the catalog. Names are unique.
func (s *Service) Create(_ context.Context, in CreateInput) (*models.Reward, error) {
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("invalid reward type %q", in.Type)
	}
	if in.PointsRequired < 0 {
		return nil, apperr.BadRequest("puntos_requeridos must not be negative")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return nil, apperr.BadRequest("cantidad_disponible must not be negative")
	}

	name := strings.TrimSpace(in.Name)
	if _, err := s.rewards.GetByName(name); err == nil {
		return nil, apperr.Conflict("reward %q already exists", name)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}
	reward := &models.Reward{
		Name:           name,
		Description:    in.Description,
		PointsRequired: in.PointsRequired,
		Type:           in.Type,
		ImageURL:       in.ImageURL,
		Active:         active,
		Stock:          in.Stock,
	}
	if err := s.rewards.Create(reward); err != nil {
		return nil, err
	}

	s.log.Info().Uint("reward_id", reward.ID).Str("name", reward.Name).Int("points", reward.PointsRequired).Msg("Reward created")
	return reward, nil
}

// Get returns a catalog reward.
func (s *Service) Get(_ context.Context, id uint) (*models.Reward, error) {
	return s.rewards.GetByID(id)
}

// List returns a page of the catalog ordered by point cost.
func (s *Service) List(_ context.Context, f repository.RewardFilter, p repository.Pagination) ([]models.Reward, int64, error) {
	if f.Type != nil && !f.Type.Valid() {
		return nil, 0, apperr.BadRequest("invalid reward type %q", *f.Type)
	}
	return s.rewards.List(f, p)
}

// Update applies the non-nil fields. Existing assignments keep their point snapshot.
func (s *Service) Update(_ context.Context, id uint, in UpdateInput) (*models.Reward, error) {
	reward, err := s.rewards.GetByID(id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		reward.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		reward.Description = *in.Description
	}
	if in.PointsRequired != nil {
		if *in.PointsRequired < 0 {
			return nil, apperr.BadRequest("puntos_requeridos must not be negative")
		}
		reward.PointsRequired = *in.PointsRequired
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, apperr.BadRequest("invalid reward type %q", *in.Type)
		}
		reward.Type = *in.Type
	}
	if in.ImageURL != nil {
		reward.ImageURL = *in.ImageURL
	}
	if in.Active != nil {
		reward.Active = *in.Active
	}
	switch {
	case in.UnlimitedStock:
		reward.Stock = nil
	case in.Stock != nil:
		if *in.Stock < 0 {
			return nil, apperr.BadRequest("cantidad_disponible must not be negative")
		}
		reward.Stock = in.Stock
	}

	if err := s.rewards.Update(reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// Delete removes a catalog reward that nobody holds.
func (s *Service) Delete(_ context.Context, id uint) error {
	if _, err := s.rewards.GetByID(id); err != nil {
		return err
	}
	holders, err := s.rewards.GetHoldersCount(id)
	if err != nil {
		return fmt.Errorf("failed to count holders of reward %d: %w", id, err)
	}
	if holders > 0 {
		return apperr.Conflict("reward %d has %d assignments and cannot be deleted", id, holders)
	}
	if err := s.rewards.Delete(id); err != nil {
		return err
	}
	s.log.Info().Uint("reward_id", id).Msg("Reward deleted")
	return nil
}

// AvailableForUser returns active rewards the user can afford and does not hold.
func (s *Service) AvailableForUser(_ context.Context, userID uint) ([]models.Reward, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return s.rewards.AvailableForUser(userID, user.Points)
}

// Assign gives a reward to a user. Points are checked, never debited.
func (s *Service) Assign(ctx context.Context, in AssignInput) (*models.UserReward, error) {
	user, err := s.users.GetByID(in.UserID)
	if err != nil {
		return nil, err
	}
	reward, err := s.rewards.GetByID(in.RewardID)
	if err != nil {
		return nil, err
	}

	ur, err := s.assign(user, reward, in)
	if err != nil {
		status := "error"
		if apperr.KindOf(err) != apperr.KindInternal {
			status = "rejected"
		}
		prommetrics.RecordRewardAssigned(string(reward.Type), status)
		return nil, err
	}
	prommetrics.RecordRewardAssigned(string(reward.Type), "success")

	s.log.Info().
		Uint("user_id", user.ID).
		Uint("reward_id", reward.ID).
		Str("code", ur.Code).
		Int("points_used", ur.PointsUsed).
		Msg("Reward assigned")

	s.mailer.RewardAssigned(ctx, user, reward, ur.Code)
	data := map[string]any{"id_recompensa": reward.ID, "codigo_unico": ur.Code}
	title := "Nueva recompensa"
	message := fmt.Sprintf("Obtuviste la recompensa %s", reward.Name)
	if err := s.notifier.Notify(ctx, user.ID, models.NotificationSystem, title, message, data); err != nil {
		s.log.Warn().Err(err).Uint("user_id", user.ID).Msg("Failed to store reward notification")
	}

	ur.Reward = reward
	return ur, nil
}

func (s *Service) assign(user *models.User, reward *models.Reward, in AssignInput) (*models.UserReward, error) {
	if !reward.Active {
		return nil, apperr.BadRequest("reward %d is not active", reward.ID)
	}
	held, err := s.rewards.HasUserReward(user.ID, reward.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reward %d of user %d: %w", reward.ID, user.ID, err)
	}
	if held {
		return nil, apperr.BadRequest("user already holds reward %d", reward.ID)
	}
	if user.Points < reward.PointsRequired {
		return nil, apperr.BadRequest("insufficient points: %d required, %d available", reward.PointsRequired, user.Points)
	}
	if reward.HasFiniteStock() && *reward.Stock <= 0 {
		return nil, apperr.BadRequest("reward %d is out of stock", reward.ID)
	}

	code, err := s.redemptionCode(reward.Type, in.Code)
	if err != nil {
		return nil, err
	}

	ur := &models.UserReward{
		UserID:     user.ID,
		RewardID:   reward.ID,
		Code:       code,
		AwardedAt:  s.now(),
		PointsUsed: reward.PointsRequired,
		State:      models.UserRewardPending,
		Notes:      in.Notes,
	}
	switch err := s.rewards.Assign(ur, reward.HasFiniteStock()); {
	case errors.Is(err, repository.ErrOutOfStock):
		return nil, apperr.BadRequest("reward %d is out of stock", reward.ID)
	case errors.Is(err, repository.ErrAlreadyAssigned):
		return nil, apperr.BadRequest("user already holds reward %d", reward.ID)
	case err != nil:
		return nil, err
	}
	return ur, nil
}

// redemptionCode validates a supplied code or generates {PREFIX}-{year}-{5 digits}.
func (s *Service) redemptionCode(t models.RewardType, supplied string) (string, error) {
	if supplied = strings.TrimSpace(supplied); supplied != "" {
		exists, err := s.rewards.CodeExists(supplied)
		if err != nil {
			return "", err
		}
		if exists {
			return "", apperr.Conflict("code %q is already in use", supplied)
		}
		return supplied, nil
	}

	year := s.now().Year()
	for range codeAttempts {
		code := fmt.Sprintf("%s-%d-%05d", t.CodePrefix(), year, s.digits())
		exists, err := s.rewards.CodeExists(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a free redemption code after %d attempts", codeAttempts)
}

// Redeem marks the user's reward as redeemed.
func (s *Service) Redeem(ctx context.Context, userID, rewardID uint) (*models.UserReward, error) {
	ur, err := s.rewards.GetUserReward(userID, rewardID)
	if err != nil {
		return nil, err
	}
	switch ur.State {
	case models.UserRewardRedeemed:
		return nil, apperr.BadRequest("reward %d was already redeemed", rewardID)
	case models.UserRewardExpired:
		return nil, apperr.BadRequest("reward %d has expired", rewardID)
	}
	return s.setState(ctx, ur, models.UserRewardRedeemed, nil)
}

// UpdateState sets any assignment state. Delivered and redeemed states stamp the delivery time.
func (s *Service) UpdateState(ctx context.Context, userID, rewardID uint, state models.UserRewardState, notes *string) (*models.UserReward, error) {
	if !state.Valid() {
		return nil, apperr.BadRequest("invalid reward state %q", state)
	}
	ur, err := s.rewards.GetUserReward(userID, rewardID)
	if err != nil {
		return nil, err
	}
	return s.setState(ctx, ur, state, notes)
}

func (s *Service) setState(_ context.Context, ur *models.UserReward, state models.UserRewardState, notes *string) (*models.UserReward, error) {
	ur.State = state
	if state == models.UserRewardDelivered || state == models.UserRewardRedeemed {
		at := s.now()
		ur.DeliveredAt = &at
	}
	if notes != nil {
		ur.Notes = *notes
	}
	if err := s.rewards.UpdateUserRewardState(ur); err != nil {
		return nil, err
	}
	s.log.Info().Uint("user_id", ur.UserID).Uint("reward_id", ur.RewardID).Str("state", string(state)).Msg("Reward state updated")
	return ur, nil
}

// AutoAssign assigns every reward currently available to the user, skipping
// individual failures.
func (s *Service) AutoAssign(ctx context.Context, userID uint) ([]models.UserReward, error) {
	available, err := s.AvailableForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	assigned := make([]models.UserReward, 0, len(available))
	for _, reward := range available {
		ur, err := s.Assign(ctx, AssignInput{UserID: userID, RewardID: reward.ID})
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", userID).Uint("reward_id", reward.ID).Msg("Automatic reward assignment skipped")
			continue
		}
		assigned = append(assigned, *ur)
	}
	return assigned, nil
}
