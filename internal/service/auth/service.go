// Package auth handles registration, login, token issuance and password resets.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/cache"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const resetKeyPrefix = "reset:"

// UserRepository interface for account persistence.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	ExistsByEmail(email string) (bool, error)
	UpdateLastLogin(id uint, at time.Time) error
	UpdatePassword(id uint, hash string) error
}

// Mailer sends the account emails.
type Mailer interface {
	Welcome(ctx context.Context, user *models.User) bool
	PasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) bool
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	FirstName  string     `json:"nombres" binding:"required,max=100"`
	LastName   string     `json:"apellidos" binding:"required,max=100"`
	Email      string     `json:"correo" binding:"required,email,max=100"`
	Password   string     `json:"password" binding:"required,min=6"`
	NationalID string     `json:"cedula" binding:"max=20"`
	Phone      string     `json:"telefono" binding:"max=20"`
	Address    string     `json:"direccion" binding:"max=255"`
	City       string     `json:"ciudad" binding:"max=100"`
	Province   string     `json:"provincia" binding:"max=100"`
	BirthDate  *time.Time `json:"fecha_nacimiento"`
}

// Result is returned by Register and Login.
type Result struct {
	Tokens *TokenPair   `json:"tokens"`
	User   *models.User `json:"usuario"`
}

// Service handles authentication.
type Service struct {
	users    UserRepository
	cache    cache.Cache
	mailer   Mailer
	cfg      config.AuthConfig
	hashCost int
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new auth service.
func NewService(users *repository.UserRepository, c cache.Cache, mailer Mailer, cfg config.AuthConfig, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(users, c, mailer, cfg, log)
}

// NewServiceWithInterfaces creates a new auth service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(users UserRepository, c cache.Cache, mailer Mailer, cfg config.AuthConfig, log *logger.Logger) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	return &Service{
		users:    users,
		cache:    c,
		mailer:   mailer,
		cfg:      cfg,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		log:      log,
	}
}

// WithHashCost overrides the bcrypt cost. Used by tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a donor account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, apperr.BadRequest("correo and password are required")
	}

	exists, err := s.users.ExistsByEmail(email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.BadRequest("email %s is already registered", email)
	}

	hash, err := HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	role := models.RoleDonor
	if s.cfg.AdminEmailSuffix != "" && strings.HasSuffix(email, strings.ToLower(s.cfg.AdminEmailSuffix)) {
		role = models.RoleAdmin
	}

	user := &models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		NationalID:   in.NationalID,
		Phone:        in.Phone,
		Address:      in.Address,
		City:         in.City,
		Province:     in.Province,
		BirthDate:    in.BirthDate,
		Role:         role,
		Active:       true,
		Points:       0,
		Tier:         models.TierBronze,
	}
	if err := s.users.Create(user); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperr.BadRequest("email %s is already registered", email)
		}
		return nil, err
	}

	s.log.Info().Uint("user_id", user.ID).Str("rol", role).Msg("User registered")
	s.mailer.Welcome(ctx, user)

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &Result{Tokens: tokens, User: user}, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(_ context.Context, email, password string) (*Result, error) {
	user, err := s.users.GetByEmail(strings.TrimSpace(email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperr.Unauthorized("account is deactivated")
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.log.Warn().Uint("user_id", user.ID).Msg("Failed login attempt")
		return nil, apperr.Unauthorized("invalid credentials")
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(user.ID, now); err != nil {
		s.log.Warn().Err(err).Uint("user_id", user.ID).Msg("Failed to update last login")
	}
	user.LastLoginAt = &now

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &Result{Tokens: tokens, User: user}, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *Service) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(claims.UserID())
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.Unauthorized("invalid token")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperr.Unauthorized("account is deactivated")
	}
	return s.issue(user)
}

// Me returns the account behind a token.
func (s *Service) Me(_ context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(userID)
}

// RequestPasswordReset mails a reset link to an active account. Unknown emails are not reported.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(strings.TrimSpace(email))
	if err != nil {
		if repository.IsNotFound(err) {
			s.log.Debug().Msg("Password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	token := uuid.NewString()
	if err := s.cache.Set(ctx, resetKeyPrefix+token, strconv.FormatUint(uint64(user.ID), 10), s.cfg.ResetTokenTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.mailer.PasswordReset(ctx, user, token, s.cfg.ResetTokenTTL)
	s.log.Info().Uint("user_id", user.ID).Msg("Password reset requested")
	return nil
}

// ResetPassword sets a new password using a reset token. The token is consumed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 6 {
		return apperr.BadRequest("password must have at least 6 characters")
	}

	raw, err := s.cache.Get(ctx, resetKeyPrefix+token)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return apperr.BadRequest("invalid or expired reset token")
		}
		return fmt.Errorf("failed to read reset token: %w", err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return apperr.BadRequest("invalid or expired reset token")
	}

	hash, err := HashPassword(newPassword, s.hashCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(uint(id), hash); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, resetKeyPrefix+token); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete reset token")
	}

	s.log.Info().Uint64("user_id", id).Msg("Password reset")
	return nil
}
