// Package auth provides the REST API handlers for registration, login and password recovery.
package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	authsvc "github.com/aimd54/sistema-donaciones/internal/service/auth"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for authentication operations.
type Service interface {
	Register(ctx context.Context, in authsvc.RegisterInput) (*authsvc.Result, error)
	Login(ctx context.Context, email, password string) (*authsvc.Result, error)
	Refresh(ctx context.Context, refreshToken string) (*authsvc.TokenPair, error)
	Me(ctx context.Context, userID uint) (*models.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// LoginRequest holds login credentials.
type LoginRequest struct {
	Email    string `json:"correo" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest holds a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ResetRequest asks for a password reset link.
type ResetRequest struct {
	Email string `json:"correo" binding:"required,email"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// Handler handles authentication requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new authentication handler.
func NewHandler(service *authsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new authentication handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register creates a donor account.
// POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var in authsvc.RegisterInput
	if !httpx.Bind(c, &in) {
		return
	}

	result, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Login exchanges credentials for a token pair.
// POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var in LoginRequest
	if !httpx.Bind(c, &in) {
		return
	}

	result, err := h.service.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refresh issues a new token pair.
// POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var in RefreshRequest
	if !httpx.Bind(c, &in) {
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Me returns the authenticated account.
// GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	p, _ := middleware.Current(c)
	user, err := h.service.Me(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RequestPasswordReset mails a reset link. The response never reveals whether the email exists.
// POST /auth/reset-password-request.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var in ResetRequest
	if !httpx.Bind(c, &in) {
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), in.Email); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset link has been sent"})
}

// ResetPassword sets a new password.
// POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var in ResetPasswordRequest
	if !httpx.Bind(c, &in) {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), in.Token, in.Password); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
