// Package users manages donor profiles, notifications and per-user history.
package users

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/auth"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// UserRepository interface for account persistence.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	Update(user *models.User) error
	UpdatePassword(id uint, hash string) error
	SetActive(id uint, active bool) error
	List(p repository.Pagination, active *bool) ([]models.User, int64, error)
	Search(text string, p repository.Pagination) ([]models.User, int64, error)
}

// NotificationRepository interface for in-app notifications.
type NotificationRepository interface {
	Create(n *models.Notification) error
	ListForUser(userID uint, read *bool, p repository.Pagination) ([]models.Notification, int64, error)
	MarkRead(userID, id uint, at time.Time) error
	MarkAllRead(userID uint, at time.Time) (int64, error)
	CountUnread(userID uint) (int64, error)
}

// DonationRepository interface for the donation history of a user.
type DonationRepository interface {
	List(f repository.DonationFilter, p repository.Pagination) ([]models.Donation, int64, error)
	UserTotals(userID uint) (decimal.Decimal, int64, error)
	UserCampaignTotals(userID uint) ([]repository.CampaignContribution, error)
	UserCompletedBetween(userID uint, from, to time.Time) ([]models.Donation, error)
}

// SubscriptionRepository interface for the subscriptions of a user.
type SubscriptionRepository interface {
	List(f repository.SubscriptionFilter, p repository.Pagination) ([]models.Subscription, int64, error)
	ActiveForUser(userID uint) ([]models.Subscription, error)
}

// RewardRepository interface for the rewards held by a user.
type RewardRepository interface {
	GetUserRewards(userID uint) ([]models.UserReward, error)
	CountUserRewardsByType(userID uint) (map[models.RewardType]int64, error)
}

// Mailer sends the monthly summary.
type Mailer interface {
	MonthlySummary(ctx context.Context, user *models.User, period string, donations []models.Donation) bool
}

// ProfileInput holds the editable profile fields. Nil fields are left untouched.
type ProfileInput struct {
	FirstName  *string    `json:"nombres" binding:"omitempty,min=1,max=100"`
	LastName   *string    `json:"apellidos" binding:"omitempty,min=1,max=100"`
	NationalID *string    `json:"cedula" binding:"omitempty,max=20"`
	Phone      *string    `json:"telefono" binding:"omitempty,max=20"`
	Address    *string    `json:"direccion" binding:"omitempty,max=255"`
	City       *string    `json:"ciudad" binding:"omitempty,max=100"`
	Province   *string    `json:"provincia" binding:"omitempty,max=100"`
	BirthDate  *time.Time `json:"fecha_nacimiento"`
}

// NotificationInput holds an admin-created notification.
type NotificationInput struct {
	UserID  uint                    `json:"id_usuario" binding:"required"`
	Type    models.NotificationType `json:"tipo" binding:"required,oneof=Donacion Suscripcion Campana Sistema"`
	Title   string                  `json:"titulo" binding:"required,max=255"`
	Message string                  `json:"mensaje" binding:"required"`
	Data    map[string]any          `json:"datos"`
}

// NextTier describes the points missing for the next donor tier.
type NextTier struct {
	Tier          models.DonorTier `json:"nivel"`
	PointsMissing int              `json:"puntos_faltantes"`
}

// Stats is the per-user dashboard.
type Stats struct {
	TotalDonated        decimal.Decimal                   `json:"total_donado"`
	DonationCount       int64                             `json:"total_donaciones"`
	Points              int                               `json:"puntos_acumulados"`
	Tier                models.DonorTier                  `json:"nivel_donante"`
	NextTier            *NextTier                         `json:"siguiente_nivel,omitempty"`
	ByCampaign          []repository.CampaignContribution `json:"por_campana"`
	ActiveSubscriptions int                               `json:"suscripciones_activas"`
	MonthlyRecurring    decimal.Decimal                   `json:"monto_mensual_recurrente"`
	RewardsByType       map[models.RewardType]int64       `json:"recompensas_por_tipo"`
	UnreadNotifications int64                             `json:"notificaciones_sin_leer"`
}

// Service handles user profiles and notifications.
type Service struct {
	users         UserRepository
	notifications NotificationRepository
	donations     DonationRepository
	subscriptions SubscriptionRepository
	rewards       RewardRepository
	mailer        Mailer
	hashCost      int
	now           func() time.Time
	log           *logger.Logger
}

// NewService creates a new user service.
func NewService(
	users *repository.UserRepository,
	notifications *repository.NotificationRepository,
	donations *repository.DonationRepository,
	subscriptions *repository.SubscriptionRepository,
	rewards *repository.RewardRepository,
	mailer Mailer,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(users, notifications, donations, subscriptions, rewards, mailer, log)
}

// NewServiceWithInterfaces creates a new user service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	users UserRepository,
	notifications NotificationRepository,
	donations DonationRepository,
	subscriptions SubscriptionRepository,
	rewards RewardRepository,
	mailer Mailer,
	log *logger.Logger,
) *Service {
	return &Service{
		users:         users,
		notifications: notifications,
		donations:     donations,
		subscriptions: subscriptions,
		rewards:       rewards,
		mailer:        mailer,
		hashCost:      10,
		now:           time.Now,
		log:           log,
	}
}

// WithHashCost overrides the bcrypt cost. Used by tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// Get returns a user.
func (s *Service) Get(_ context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(id)
}

// List returns a page of users.
func (s *Service) List(_ context.Context, p repository.Pagination, active *bool) ([]models.User, int64, error) {
	return s.users.List(p, active)
}

// Search matches users by name, email or national id.
func (s *Service) Search(_ context.Context, text string, p repository.Pagination) ([]models.User, int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, apperr.BadRequest("search text is required")
	}
	return s.users.Search(text, p)
}

// UpdateProfile applies the non-nil profile fields.
func (s *Service) UpdateProfile(_ context.Context, userID uint, in ProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&user.FirstName, in.FirstName)
	set(&user.LastName, in.LastName)
	set(&user.NationalID, in.NationalID)
	set(&user.Phone, in.Phone)
	set(&user.Address, in.Address)
	set(&user.City, in.City)
	set(&user.Province, in.Province)
	if in.BirthDate != nil {
		user.BirthDate = in.BirthDate
	}
	if user.FirstName == "" || user.LastName == "" {
		return nil, apperr.BadRequest("nombres and apellidos cannot be empty")
	}

	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	s.log.Info().Uint("user_id", userID).Msg("Profile updated")
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(_ context.Context, userID uint, current, next string) error {
	if len(next) < 6 {
		return apperr.BadRequest("password must have at least 6 characters")
	}
	if current == next {
		return apperr.BadRequest("new password must differ from the current one")
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, current) {
		return apperr.BadRequest("current password is incorrect")
	}

	hash, err := auth.HashPassword(next, s.hashCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(userID, hash); err != nil {
		return err
	}
	s.log.Info().Uint("user_id", userID).Msg("Password changed")
	return nil
}

// Deactivate disables an account. Users may only deactivate themselves unless isAdmin.
func (s *Service) Deactivate(_ context.Context, actorID uint, isAdmin bool, targetID uint) error {
	if actorID != targetID && !isAdmin {
		return apperr.Forbidden("cannot deactivate another user")
	}
	if err := s.users.SetActive(targetID, false); err != nil {
		return err
	}
	s.log.Info().Uint("user_id", targetID).Uint("actor_id", actorID).Msg("User deactivated")
	return nil
}

// Notify stores an in-app notification for a user.
func (s *Service) Notify(_ context.Context, userID uint, kind models.NotificationType, title, message string, data map[string]any) error {
	n, err := newNotification(userID, kind, title, message, data)
	if err != nil {
		return err
	}
	return s.notifications.Create(n)
}

// CreateNotification stores an admin-authored notification.
func (s *Service) CreateNotification(_ context.Context, in NotificationInput) (*models.Notification, error) {
	if _, err := s.users.GetByID(in.UserID); err != nil {
		return nil, err
	}
	n, err := newNotification(in.UserID, in.Type, in.Title, in.Message, in.Data)
	if err != nil {
		return nil, err
	}
	if err := s.notifications.Create(n); err != nil {
		return nil, err
	}
	return n, nil
}

func newNotification(userID uint, kind models.NotificationType, title, message string, data map[string]any) (*models.Notification, error) {
	n := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode notification data: %w", err)
		}
		n.Data = datatypes.JSON(raw)
	}
	return n, nil
}

// ListNotifications returns a page of the user's notifications.
func (s *Service) ListNotifications(_ context.Context, userID uint, read *bool, p repository.Pagination) ([]models.Notification, int64, error) {
	return s.notifications.ListForUser(userID, read, p)
}

// MarkNotificationRead marks one notification as read.
func (s *Service) MarkNotificationRead(_ context.Context, userID, id uint) error {
	return s.notifications.MarkRead(userID, id, s.now())
}

// MarkAllNotificationsRead marks every notification of the user as read.
func (s *Service) MarkAllNotificationsRead(_ context.Context, userID uint) (int64, error) {
	return s.notifications.MarkAllRead(userID, s.now())
}

// Donations returns the user's donation history.
func (s *Service) Donations(_ context.Context, userID uint, p repository.Pagination) ([]models.Donation, int64, error) {
	return s.donations.List(repository.DonationFilter{UserID: &userID}, p)
}

// Subscriptions returns the user's subscriptions.
func (s *Service) Subscriptions(_ context.Context, userID uint, p repository.Pagination) ([]models.Subscription, int64, error) {
	return s.subscriptions.List(repository.SubscriptionFilter{UserID: &userID}, p)
}

// Rewards returns the rewards held by the user.
func (s *Service) Rewards(_ context.Context, userID uint) ([]models.UserReward, error) {
	return s.rewards.GetUserRewards(userID)
}

// Stats builds the user's dashboard.
func (s *Service) Stats(_ context.Context, userID uint) (*Stats, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	total, count, err := s.donations.UserTotals(userID)
	if err != nil {
		return nil, err
	}
	byCampaign, err := s.donations.UserCampaignTotals(userID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subscriptions.ActiveForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions of user %d: %w", userID, err)
	}
	byType, err := s.rewards.CountUserRewardsByType(userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifications.CountUnread(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications of user %d: %w", userID, err)
	}

	monthly := decimal.Zero
	for i := range subs {
		monthly = monthly.Add(subs[i].MonthlyEquivalent())
	}

	return &Stats{
		TotalDonated:        total,
		DonationCount:       count,
		Points:              user.Points,
		Tier:                user.Tier,
		NextTier:            nextTier(user.Points),
		ByCampaign:          byCampaign,
		ActiveSubscriptions: len(subs),
		MonthlyRecurring:    monthly.Round(2),
		RewardsByType:       byType,
		UnreadNotifications: unread,
	}, nil
}

func nextTier(points int) *NextTier {
	thresholds := []struct {
		tier models.DonorTier
		min  int
	}{
		{models.TierSilver, models.SilverThreshold},
		{models.TierGold, models.GoldThreshold},
		{models.TierPlatinum, models.PlatinumThreshold},
	}
	for _, t := range thresholds {
		if points < t.min {
			return &NextTier{Tier: t.tier, PointsMissing: t.min - points}
		}
	}
	return nil
}

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// PeriodName returns the Spanish "mes año" label of a month.
func PeriodName(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", monthNames[month-1], year)
}

// SendMonthlySummary mails the user's completed donations of the current month.
// It returns false when the user has no donations this month or the mail failed.
func (s *Service) SendMonthlySummary(ctx context.Context, userID uint) (bool, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return false, err
	}

	now := s.now()
	from, to := models.MonthRange(now.Year(), int(now.Month()), now.Location())
	donations, err := s.donations.UserCompletedBetween(userID, from, to)
	if err != nil {
		return false, err
	}
	if len(donations) == 0 {
		s.log.Debug().Uint("user_id", userID).Msg("No donations this month, skipping summary")
		return false, nil
	}

	sent := s.mailer.MonthlySummary(ctx, user, PeriodName(now.Year(), now.Month()), donations)
	return sent, nil
}
