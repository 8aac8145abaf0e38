// Package receipts provides the REST API handlers for donation receipts.
package receipts

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	receiptsvc "github.com/aimd54/sistema-donaciones/internal/service/receipts"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for receipt operations.
type Service interface {
	Generate(ctx context.Context, donationID uint) (*models.Receipt, error)
	Get(ctx context.Context, userID uint, isAdmin bool, id uint) (*models.Receipt, error)
	GetByCode(ctx context.Context, userID uint, isAdmin bool, code string) (*models.Receipt, error)
	Verify(ctx context.Context, code string) (*receiptsvc.Verification, error)
	Resend(ctx context.Context, userID uint, isAdmin bool, id uint, email string) (*models.Receipt, error)
	PDF(ctx context.Context, userID uint, isAdmin bool, id uint) ([]byte, string, error)
}

// ResendRequest optionally redirects the email to another address.
type ResendRequest struct {
	Email string `json:"correo" binding:"omitempty,email,max=100"`
}

// Handler handles receipt requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new receipt handler.
func NewHandler(service *receiptsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new receipt handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Get returns a receipt.
// GET /comprobantes/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	rc, err := h.service.Get(c.Request.Context(), p.UserID, p.Admin, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// GetByCode returns a receipt by its code.
// GET /comprobantes/codigo/:codigo.
func (h *Handler) GetByCode(c *gin.Context) {
	p, _ := middleware.Current(c)
	rc, err := h.service.GetByCode(c.Request.Context(), p.UserID, p.Admin, c.Param("codigo"))
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// PDF streams the receipt document.
// GET /comprobantes/:id/pdf.
func (h *Handler) PDF(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	pdf, name, err := h.service.PDF(c.Request.Context(), p.UserID, p.Admin, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Resend emails the receipt again.
// POST /comprobantes/:id/reenviar.
func (h *Handler) Resend(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in ResendRequest
	if c.Request.ContentLength > 0 && !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	rc, err := h.service.Resend(c.Request.Context(), p.UserID, p.Admin, id, in.Email)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// Verify checks a receipt code. It is public.
// GET /comprobantes/verificar?codigo=COMP-2024-00001.
func (h *Handler) Verify(c *gin.Context) {
	code := strings.TrimSpace(c.Query("codigo"))
	if code == "" {
		httpx.ErrorResponse(c, http.StatusBadRequest, "codigo parameter is required")
		return
	}
	v, err := h.service.Verify(c.Request.Context(), code)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Generate issues the receipt of a completed donation.
// POST /comprobantes/generar/:idDonacion.
func (h *Handler) Generate(c *gin.Context) {
	id, ok := httpx.ParseID(c, "idDonacion")
	if !ok {
		return
	}
	rc, err := h.service.Generate(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rc)
}
