// Package paymentmethods provides the REST API handlers for stored payment methods.
package paymentmethods

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	pmsvc "github.com/aimd54/sistema-donaciones/internal/service/paymentmethods"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for payment method operations.
type Service interface {
	Create(ctx context.Context, userID uint, in pmsvc.CreateInput) (*models.PaymentMethod, error)
	ListForUser(ctx context.Context, userID uint, onlyActive bool) ([]models.PaymentMethod, error)
	Get(ctx context.Context, userID, id uint) (*models.PaymentMethod, error)
	Update(ctx context.Context, userID, id uint, in pmsvc.UpdateInput) (*models.PaymentMethod, error)
	Deactivate(ctx context.Context, userID, id uint) error
}

// Handler handles payment method requests. Every route acts on the caller's own methods.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new payment method handler.
func NewHandler(service *pmsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new payment method handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns the caller's payment methods.
// GET /metodos-pago?activos=true.
func (h *Handler) List(c *gin.Context) {
	onlyActive, ok := httpx.OptionalBool(c, "activos")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	items, err := h.service.ListForUser(c.Request.Context(), p.UserID, onlyActive != nil && *onlyActive)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// Get returns one of the caller's payment methods.
// GET /metodos-pago/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	pm, err := h.service.Get(c.Request.Context(), p.UserID, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

// Create stores a tokenized payment method.
// POST /metodos-pago.
func (h *Handler) Create(c *gin.Context) {
	var in pmsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	pm, err := h.service.Create(c.Request.Context(), p.UserID, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, pm)
}

// Update edits the display fields of a payment method.
// PUT /metodos-pago/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in pmsvc.UpdateInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	pm, err := h.service.Update(c.Request.Context(), p.UserID, id, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

// Deactivate disables a payment method.
// DELETE /metodos-pago/:id.
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.Deactivate(c.Request.Context(), p.UserID, id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment method deactivated"})
}
