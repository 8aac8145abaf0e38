// Package campaigns manages the fundraising campaign registry.
package campaigns

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// FeaturedLimit is the number of campaigns returned by Featured.
const FeaturedLimit = 4

// Repository interface for campaign persistence.
type Repository interface {
	Create(c *models.Campaign) error
	GetByID(id uint) (*models.Campaign, error)
	Update(c *models.Campaign) error
	List(f repository.CampaignFilter, p repository.Pagination) ([]models.Campaign, int64, error)
	Search(text string, p repository.Pagination) ([]models.Campaign, int64, error)
	Featured(now time.Time, limit int) ([]models.Campaign, error)
	RecalculateTotals(id uint) (*models.Campaign, error)
	Summary() (repository.CampaignSummary, error)
	MostSuccessful() (*models.Campaign, error)
	Follow(userID, campaignID uint) error
	Unfollow(userID, campaignID uint) error
	IsFollowing(userID, campaignID uint) (bool, error)
	Followers(campaignID uint) ([]models.User, error)
	FollowedBy(userID uint) ([]models.Campaign, error)
}

// Mailer sends campaign update emails.
type Mailer interface {
	CampaignUpdate(ctx context.Context, user *models.User, campaign *models.Campaign, title, message string) bool
}

// Notifier stores in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind models.NotificationType, title, message string, data map[string]any) error
}

// CreateInput holds the fields of a new campaign.
type CreateInput struct {
	Name              string          `json:"nombre" binding:"required,max=255"`
	Description       string          `json:"descripcion"`
	ImageURL          string          `json:"imagen_url" binding:"omitempty,max=255"`
	GoalAmount        decimal.Decimal `json:"meta_monto"`
	Emergency         bool            `json:"es_emergencia"`
	StartDate         *time.Time      `json:"fecha_inicio"`
	EndDate           *time.Time      `json:"fecha_fin"`
	ImpactDescription string          `json:"impacto_descripcion"`
}

// UpdateInput holds the editable campaign fields. Nil fields are left untouched.
type UpdateInput struct {
	Name              *string          `json:"nombre" binding:"omitempty,min=1,max=255"`
	Description       *string          `json:"descripcion"`
	ImageURL          *string          `json:"imagen_url" binding:"omitempty,max=255"`
	GoalAmount        *decimal.Decimal `json:"meta_monto"`
	Emergency         *bool            `json:"es_emergencia"`
	StartDate         *time.Time       `json:"fecha_inicio"`
	EndDate           *time.Time       `json:"fecha_fin"`
	ImpactDescription *string          `json:"impacto_descripcion"`
}

// Stats holds registry-wide campaign figures.
type Stats struct {
	Total             int64            `json:"total_campanas"`
	Active            int64            `json:"campanas_activas"`
	ActiveEmergencies int64            `json:"emergencias_activas"`
	TotalRaised       decimal.Decimal  `json:"total_recaudado"`
	MostSuccessful    *models.Campaign `json:"campana_mas_exitosa,omitempty"`
}

// Service handles campaign operations.
type Service struct {
	repo     Repository
	mailer   Mailer
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new campaign service.
func NewService(repo *repository.CampaignRepository, mailer Mailer, notifier Notifier, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, mailer, notifier, log)
}

// NewServiceWithInterfaces creates a new campaign service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, mailer Mailer, notifier Notifier, log *logger.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, notifier: notifier, now: time.Now, log: log}
}

// Create registers an active campaign with zero raised amount.
func (s *Service) Create(_ context.Context, in CreateInput) (*models.Campaign, error) {
	if !in.GoalAmount.IsPositive() {
		return nil, apperr.BadRequest("meta_monto must be greater than zero")
	}

	start := s.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if in.EndDate != nil && in.EndDate.Before(start) {
		return nil, apperr.BadRequest("fecha_fin must not be before fecha_inicio")
	}

	c := &models.Campaign{
		Name:              strings.TrimSpace(in.Name),
		Description:       in.Description,
		ImageURL:          in.ImageURL,
		GoalAmount:        in.GoalAmount,
		RaisedAmount:      decimal.Zero,
		Emergency:         in.Emergency,
		StartDate:         start,
		EndDate:           in.EndDate,
		State:             models.CampaignActive,
		ImpactDescription: in.ImpactDescription,
	}
	if err := s.repo.Create(c); err != nil {
		return nil, err
	}

	s.log.Info().Uint("campaign_id", c.ID).Str("name", c.Name).Bool("emergency", c.Emergency).Msg("Campaign created")
	return c, nil
}

// Get returns a campaign.
func (s *Service) Get(_ context.Context, id uint) (*models.Campaign, error) {
	return s.repo.GetByID(id)
}

// List returns a page of campaigns, emergencies first.
func (s *Service) List(_ context.Context, f repository.CampaignFilter, p repository.Pagination) ([]models.Campaign, int64, error) {
	if f.State != nil && !f.State.Valid() {
		return nil, 0, apperr.BadRequest("invalid campaign state %q", *f.State)
	}
	return s.repo.List(f, p)
}

// Search matches campaigns by name or description.
func (s *Service) Search(_ context.Context, text string, p repository.Pagination) ([]models.Campaign, int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, apperr.BadRequest("search text is required")
	}
	return s.repo.Search(text, p)
}

// Featured returns active campaigns that have not ended, emergencies first.
func (s *Service) Featured(_ context.Context) ([]models.Campaign, error) {
	return s.repo.Featured(s.now(), FeaturedLimit)
}

// Update applies the non-nil fields. Raised amount and counter are never set here.
func (s *Service) Update(_ context.Context, id uint, in UpdateInput) (*models.Campaign, error) {
	c, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.ImageURL != nil {
		c.ImageURL = *in.ImageURL
	}
	if in.GoalAmount != nil {
		if !in.GoalAmount.IsPositive() {
			return nil, apperr.BadRequest("meta_monto must be greater than zero")
		}
		c.GoalAmount = *in.GoalAmount
	}
	if in.Emergency != nil {
		c.Emergency = *in.Emergency
	}
	if in.StartDate != nil {
		c.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		c.EndDate = in.EndDate
	}
	if in.ImpactDescription != nil {
		c.ImpactDescription = *in.ImpactDescription
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return nil, apperr.BadRequest("fecha_fin must not be before fecha_inicio")
	}

	if err := s.repo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ChangeState moves a campaign to a new state. Only Activa campaigns may
// transition unless force is set.
func (s *Service) ChangeState(_ context.Context, id uint, state models.CampaignState, force bool) (*models.Campaign, error) {
	if !state.Valid() {
		return nil, apperr.BadRequest("invalid campaign state %q", state)
	}

	c, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.State == state {
		return c, nil
	}
	if c.State != models.CampaignActive && !force {
		return nil, apperr.BadRequest("campaign %d is %s and cannot change state", id, c.State)
	}

	previous := c.State
	c.State = state
	if state != models.CampaignActive && c.EndDate == nil {
		end := s.now()
		c.EndDate = &end
	}
	if err := s.repo.Update(c); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("campaign_id", id).
		Str("from", string(previous)).
		Str("to", string(state)).
		Bool("force", force).
		Msg("Campaign state changed")
	return c, nil
}

// RecalculateTotals overwrites raised amount and counter from the completed donations.
func (s *Service) RecalculateTotals(_ context.Context, id uint) (*models.Campaign, error) {
	c, err := s.repo.RecalculateTotals(id)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Uint("campaign_id", id).
		Str("raised", c.RaisedAmount.StringFixed(2)).
		Int("donations", c.DonationCount).
		Msg("Campaign totals recalculated")
	return c, nil
}

// Stats returns registry-wide figures.
func (s *Service) Stats(_ context.Context) (*Stats, error) {
	summary, err := s.repo.Summary()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:             summary.Total,
		Active:            summary.Active,
		ActiveEmergencies: summary.ActiveEmergencies,
		TotalRaised:       summary.TotalRaised,
	}
	if summary.Total > 0 {
		best, err := s.repo.MostSuccessful()
		if err != nil {
			return nil, err
		}
		stats.MostSuccessful = best
	}
	return stats, nil
}

// Follow subscribes the user to campaign updates.
func (s *Service) Follow(_ context.Context, userID, campaignID uint) error {
	if _, err := s.repo.GetByID(campaignID); err != nil {
		return err
	}
	return s.repo.Follow(userID, campaignID)
}

// Unfollow removes the user from campaign updates.
func (s *Service) Unfollow(_ context.Context, userID, campaignID uint) error {
	return s.repo.Unfollow(userID, campaignID)
}

// IsFollowing reports whether the user follows the campaign.
func (s *Service) IsFollowing(_ context.Context, userID, campaignID uint) (bool, error) {
	return s.repo.IsFollowing(userID, campaignID)
}

// FollowedBy returns the campaigns a user follows.
func (s *Service) FollowedBy(_ context.Context, userID uint) ([]models.Campaign, error) {
	return s.repo.FollowedBy(userID)
}

// NotifyFollowers emails an update to every active follower and stores an
// in-app notification for each. It returns the number of emails sent.
func (s *Service) NotifyFollowers(ctx context.Context, campaignID uint, title, message string) (int, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return 0, apperr.BadRequest("titulo and mensaje are required")
	}

	c, err := s.repo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	followers, err := s.repo.Followers(campaignID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range followers {
		u := &followers[i]
		if s.mailer.CampaignUpdate(ctx, u, c, title, message) {
			sent++
		}
		data := map[string]any{"id_campana": c.ID}
		if err := s.notifier.Notify(ctx, u.ID, models.NotificationCampaign, title, message, data); err != nil {
			s.log.Warn().Err(err).Uint("user_id", u.ID).Uint("campaign_id", c.ID).Msg("Failed to store campaign notification")
		}
	}

	s.log.Info().
		Uint("campaign_id", c.ID).
		Int("followers", len(followers)).
		Int("sent", sent).
		Str("title", title).
		Msg("Campaign update dispatched")
	return sent, nil
}
