// Package subscriptions provides the REST API handlers for recurring donations.
package subscriptions

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	subsvc "github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for subscription operations.
type Service interface {
	Create(ctx context.Context, userID uint, in subsvc.CreateInput) (*models.Subscription, error)
	Update(ctx context.Context, userID, id uint, in subsvc.UpdateInput) (*models.Subscription, error)
	Cancel(ctx context.Context, userID, id uint, reason string) (*models.Subscription, error)
	Stats(ctx context.Context) (*subsvc.Stats, error)
	Get(ctx context.Context, userID uint, isAdmin bool, id uint) (*models.Subscription, error)
	List(ctx context.Context, state *models.SubscriptionState, p repository.Pagination) ([]models.Subscription, int64, error)
	ListForUser(ctx context.Context, userID uint, p repository.Pagination) ([]models.Subscription, int64, error)
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"motivo" binding:"max=500"`
}

// Handler handles subscription requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new subscription handler.
func NewHandler(service *subsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new subscription handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns a page of subscriptions.
// GET /suscripciones?estado=Activa.
func (h *Handler) List(c *gin.Context) {
	var state *models.SubscriptionState
	if raw := c.Query("estado"); raw != "" {
		s := models.SubscriptionState(raw)
		state = &s
	}
	page := httpx.Pagination(c)
	items, total, err := h.service.List(c.Request.Context(), state, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Mine returns the caller's subscriptions.
// GET /suscripciones/mis-suscripciones.
func (h *Handler) Mine(c *gin.Context) {
	p, _ := middleware.Current(c)
	page := httpx.Pagination(c)
	items, total, err := h.service.ListForUser(c.Request.Context(), p.UserID, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Get returns a subscription to its owner or an administrator.
// GET /suscripciones/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	sub, err := h.service.Get(c.Request.Context(), p.UserID, p.Admin, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Create starts a subscription and charges its first donation.
// POST /suscripciones.
func (h *Handler) Create(c *gin.Context) {
	var in subsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	sub, err := h.service.Create(c.Request.Context(), p.UserID, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Update edits amount, frequency, payment method or pause state.
// PUT /suscripciones/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in subsvc.UpdateInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	sub, err := h.service.Update(c.Request.Context(), p.UserID, id, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Cancel ends a subscription. The body is optional.
// DELETE /suscripciones/:id.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in CancelRequest
	if c.Request.ContentLength > 0 && !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	sub, err := h.service.Cancel(c.Request.Context(), p.UserID, id, in.Reason)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Stats returns subscription-wide figures.
// GET /suscripciones/estadisticas.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
