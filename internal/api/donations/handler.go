// Package donations provides the REST API handlers for the donation ledger and the payment gateway webhook.
package donations

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/payment"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	donationsvc "github.com/aimd54/sistema-donaciones/internal/service/donations"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for ledger operations.
type Service interface {
	Create(ctx context.Context, in donationsvc.CreateInput) (*models.Donation, error)
	UpdateState(ctx context.Context, id uint, state models.DonationState, reference string) (*models.Donation, error)
	Get(ctx context.Context, userID uint, isAdmin bool, id uint) (*models.Donation, error)
	List(ctx context.Context, state *models.DonationState, p repository.Pagination) ([]models.Donation, int64, error)
	ListForUser(ctx context.Context, userID uint, p repository.Pagination) ([]models.Donation, int64, error)
	Dashboard(ctx context.Context) (*donationsvc.Dashboard, error)
	Checkout(ctx context.Context, userID uint, id uint) (*payment.Checkout, error)
	HandleNotification(ctx context.Context, n *payment.Notification) (*models.Donation, error)
}

// StateRequest moves a donation to another state.
type StateRequest struct {
	State     models.DonationState `json:"estado" binding:"required,oneof=Pendiente Completada Fallida Reembolsada"`
	Reference string               `json:"referencia_pago" binding:"max=255"`
}

// Handler handles donation requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new donation handler.
func NewHandler(service *donationsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new donation handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Create records a pending donation. Authenticated callers become its owner.
// POST /donaciones.
func (h *Handler) Create(c *gin.Context) {
	var in donationsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	if p, ok := middleware.Current(c); ok {
		id := p.UserID
		in.UserID = &id
	}
	in.DonorIP = c.ClientIP()

	d, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}

	h.log.Info().
		Uint("donation_id", d.ID).
		Str("amount", d.Amount.StringFixed(2)).
		Str("method", string(d.PaymentMethod)).
		Msg("Donation received")

	c.JSON(http.StatusCreated, d)
}

// List returns a page of donations.
// GET /donaciones?estado=Completada.
func (h *Handler) List(c *gin.Context) {
	var state *models.DonationState
	if raw := c.Query("estado"); raw != "" {
		s := models.DonationState(raw)
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

// Mine returns the caller's donations.
// GET /donaciones/mis-donaciones.
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

// Get returns a donation to its owner or an administrator.
// GET /donaciones/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	d, err := h.service.Get(c.Request.Context(), p.UserID, p.Admin, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// UpdateState applies a manual state change.
// POST /donaciones/:id/estado.
func (h *Handler) UpdateState(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in StateRequest
	if !httpx.Bind(c, &in) {
		return
	}
	d, err := h.service.UpdateState(c.Request.Context(), id, in.State, in.Reference)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Dashboard returns the ledger overview.
// GET /donaciones/estadisticas/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	dash, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// Checkout opens a payment session for a pending donation.
// POST /donaciones/:id/checkout.
func (h *Handler) Checkout(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var userID uint
	if p, ok := middleware.Current(c); ok {
		userID = p.UserID
	}
	checkout, err := h.service.Checkout(c.Request.Context(), userID, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

// Notification receives the payment gateway webhook.
// POST /pagos/notificaciones.
func (h *Handler) Notification(c *gin.Context) {
	var n payment.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		httpx.ErrorResponse(c, http.StatusBadRequest, "Invalid notification body")
		return
	}

	d, err := h.service.HandleNotification(c.Request.Context(), &n)
	if err != nil {
		h.log.Warn().Err(err).Str("order_id", n.OrderID).Str("status", n.TransactionStatus).Msg("Rejected payment notification")
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id_donacion": d.ID, "estado": d.State})
}
