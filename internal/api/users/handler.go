// Package users provides the REST API handlers for donor profiles, history and notifications.
package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	usersvc "github.com/aimd54/sistema-donaciones/internal/service/users"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for user registry operations.
type Service interface {
	Get(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, p repository.Pagination, active *bool) ([]models.User, int64, error)
	Search(ctx context.Context, text string, p repository.Pagination) ([]models.User, int64, error)
	UpdateProfile(ctx context.Context, userID uint, in usersvc.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID uint, current, next string) error
	Deactivate(ctx context.Context, actorID uint, isAdmin bool, targetID uint) error
	CreateNotification(ctx context.Context, in usersvc.NotificationInput) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID uint, read *bool, p repository.Pagination) ([]models.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, userID, id uint) error
	MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error)
	Donations(ctx context.Context, userID uint, p repository.Pagination) ([]models.Donation, int64, error)
	Subscriptions(ctx context.Context, userID uint, p repository.Pagination) ([]models.Subscription, int64, error)
	Rewards(ctx context.Context, userID uint) ([]models.UserReward, error)
	Stats(ctx context.Context, userID uint) (*usersvc.Stats, error)
	SendMonthlySummary(ctx context.Context, userID uint) (bool, error)
}

// ChangePasswordRequest holds the current and the new password.
type ChangePasswordRequest struct {
	Current string `json:"password_actual" binding:"required"`
	New     string `json:"password_nuevo" binding:"required,min=6"`
}

// Handler handles user requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new user handler.
func NewHandler(service *usersvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new user handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Profile returns the caller's account.
// GET /usuarios/perfil.
func (h *Handler) Profile(c *gin.Context) {
	p, _ := middleware.Current(c)
	user, err := h.service.Get(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile edits the caller's profile.
// PUT /usuarios/perfil.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var in usersvc.ProfileInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	user, err := h.service.UpdateProfile(c.Request.Context(), p.UserID, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ChangePassword replaces the caller's password.
// POST /usuarios/cambiar-password.
func (h *Handler) ChangePassword(c *gin.Context) {
	var in ChangePasswordRequest
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.ChangePassword(c.Request.Context(), p.UserID, in.Current, in.New); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// DeactivateSelf deactivates the caller's account.
// POST /usuarios/desactivar.
func (h *Handler) DeactivateSelf(c *gin.Context) {
	p, _ := middleware.Current(c)
	if err := h.service.Deactivate(c.Request.Context(), p.UserID, p.Admin, p.UserID); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deactivated"})
}

// Deactivate deactivates any account.
// POST /usuarios/:id/desactivar.
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.Deactivate(c.Request.Context(), p.UserID, p.Admin, id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deactivated"})
}

// List returns a page of users.
// GET /usuarios?activo=true&page=1&limit=10.
func (h *Handler) List(c *gin.Context) {
	active, ok := httpx.OptionalBool(c, "activo")
	if !ok {
		return
	}
	page := httpx.Pagination(c)
	items, total, err := h.service.List(c.Request.Context(), page, active)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Get returns one user.
// GET /usuarios/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Search finds users by name, email or national id.
// GET /usuarios/buscar?q=ana.
func (h *Handler) Search(c *gin.Context) {
	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		httpx.ErrorResponse(c, http.StatusBadRequest, "q parameter is required")
		return
	}
	page := httpx.Pagination(c)
	items, total, err := h.service.Search(c.Request.Context(), text, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// SendSummary mails a user the summary of the current month.
// POST /usuarios/:id/enviar-resumen.
func (h *Handler) SendSummary(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	sent, err := h.service.SendMonthlySummary(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enviado": sent})
}

// Notifications returns the caller's notifications.
// GET /usuarios/notificaciones?leidas=false.
func (h *Handler) Notifications(c *gin.Context) {
	read, ok := httpx.OptionalBool(c, "leidas")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	page := httpx.Pagination(c)
	items, total, err := h.service.ListNotifications(c.Request.Context(), p.UserID, read, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// MarkNotificationRead marks one notification as read.
// PUT /usuarios/notificaciones/:id/leer.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.MarkNotificationRead(c.Request.Context(), p.UserID, id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllNotificationsRead marks every notification of the caller as read.
// PUT /usuarios/notificaciones/leer-todas.
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	p, _ := middleware.Current(c)
	n, err := h.service.MarkAllNotificationsRead(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actualizadas": n})
}

// CreateNotification stores a notification for any user.
// POST /usuarios/notificaciones.
func (h *Handler) CreateNotification(c *gin.Context) {
	var in usersvc.NotificationInput
	if !httpx.Bind(c, &in) {
		return
	}
	n, err := h.service.CreateNotification(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// Donations returns the caller's donation history.
// GET /usuarios/donaciones.
func (h *Handler) Donations(c *gin.Context) {
	p, _ := middleware.Current(c)
	page := httpx.Pagination(c)
	items, total, err := h.service.Donations(c.Request.Context(), p.UserID, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Subscriptions returns the caller's subscriptions.
// GET /usuarios/suscripciones.
func (h *Handler) Subscriptions(c *gin.Context) {
	p, _ := middleware.Current(c)
	page := httpx.Pagination(c)
	items, total, err := h.service.Subscriptions(c.Request.Context(), p.UserID, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Rewards returns the caller's reward assignments.
// GET /usuarios/recompensas.
func (h *Handler) Rewards(c *gin.Context) {
	p, _ := middleware.Current(c)
	items, err := h.service.Rewards(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// Stats returns the caller's donor dashboard.
// GET /usuarios/estadisticas and GET /estadisticas/perfil.
func (h *Handler) Stats(c *gin.Context) {
	p, _ := middleware.Current(c)
	stats, err := h.service.Stats(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
