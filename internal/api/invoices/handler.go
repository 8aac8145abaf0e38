// Package invoices provides the REST API handlers for invoices and fiscal data.
package invoices

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	invoicesvc "github.com/aimd54/sistema-donaciones/internal/service/invoices"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for invoice operations.
type Service interface {
	SaveFiscalData(ctx context.Context, userID uint, in invoicesvc.FiscalDataInput) (*models.FiscalData, error)
	ListFiscalData(ctx context.Context, userID uint) ([]models.FiscalData, error)
	Request(ctx context.Context, userID, donationID, fiscalDataID uint) (*models.Invoice, error)
	GenerateAutomatic(ctx context.Context, donationID uint) (*models.Invoice, error)
	Get(ctx context.Context, userID uint, isAdmin bool, id uint) (*models.Invoice, error)
	ListForUser(ctx context.Context, userID uint, p repository.Pagination) ([]models.Invoice, int64, error)
	Search(ctx context.Context, text string, p repository.Pagination) ([]models.Invoice, int64, error)
	Resend(ctx context.Context, userID uint, isAdmin bool, id uint, email string) (*models.Invoice, error)
	Cancel(ctx context.Context, id uint) (*models.Invoice, error)
	PDF(ctx context.Context, userID uint, isAdmin bool, id uint) ([]byte, string, error)
}

// RequestInvoice asks for the invoice of one of the caller's donations.
type RequestInvoice struct {
	DonationID   uint `json:"id_donacion" binding:"required"`
	FiscalDataID uint `json:"id_datos_fiscales" binding:"required"`
}

// GenerateRequest issues the automatic invoice of a donation.
type GenerateRequest struct {
	DonationID uint `json:"id_donacion" binding:"required"`
}

// ResendRequest optionally redirects the email to another address.
type ResendRequest struct {
	Email string `json:"correo" binding:"omitempty,email,max=100"`
}

// Handler handles invoice requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new invoice handler.
func NewHandler(service *invoicesvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new invoice handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Get returns an invoice.
// GET /facturas/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	inv, err := h.service.Get(c.Request.Context(), p.UserID, p.Admin, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// Mine returns the caller's invoices.
// GET /facturas/mis-facturas.
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

// Search finds invoices by tax id or number.
// GET /facturas/buscar?q=XAXX010101000.
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

// PDF streams the invoice document.
// GET /facturas/:id/pdf.
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

// Resend emails the invoice again.
// POST /facturas/:id/reenviar.
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
	inv, err := h.service.Resend(c.Request.Context(), p.UserID, p.Admin, id, in.Email)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// ListFiscalData returns the caller's fiscal identities.
// GET /facturas/datos-fiscales.
func (h *Handler) ListFiscalData(c *gin.Context) {
	p, _ := middleware.Current(c)
	items, err := h.service.ListFiscalData(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// SaveFiscalData creates or updates a fiscal identity.
// POST /facturas/datos-fiscales.
func (h *Handler) SaveFiscalData(c *gin.Context) {
	var in invoicesvc.FiscalDataInput
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	fd, err := h.service.SaveFiscalData(c.Request.Context(), p.UserID, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, fd)
}

// Request issues an invoice for one of the caller's donations.
// POST /facturas/solicitar.
func (h *Handler) Request(c *gin.Context) {
	var in RequestInvoice
	if !httpx.Bind(c, &in) {
		return
	}
	p, _ := middleware.Current(c)
	inv, err := h.service.Request(c.Request.Context(), p.UserID, in.DonationID, in.FiscalDataID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// Generate issues the automatic invoice of a donation.
// POST /facturas/generar.
func (h *Handler) Generate(c *gin.Context) {
	var in GenerateRequest
	if !httpx.Bind(c, &in) {
		return
	}
	inv, err := h.service.GenerateAutomatic(c.Request.Context(), in.DonationID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	if inv == nil {
		httpx.ErrorResponse(c, http.StatusBadRequest, "the donor has no fiscal data")
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// Cancel voids an invoice.
// POST /facturas/:id/cancelar.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
