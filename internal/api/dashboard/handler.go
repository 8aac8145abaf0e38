// Package dashboard provides the REST API handlers for donation statistics.
// It exposes the admin dashboard, monthly snapshots, per-campaign and donor
// breakdowns, and the public figures shown on the landing page.
package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/service/statistics"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// StatisticsService interface for statistics operations.
type StatisticsService interface {
	GenerateMonthly(ctx context.Context, year, month int) (*models.MonthlyStatistic, error)
	CurrentMonth(ctx context.Context, now time.Time) (*models.MonthlyStatistic, error)
	ListMonthly(ctx context.Context, year *int) ([]models.MonthlyStatistic, error)
	GetMonthly(ctx context.Context, year, month int) (*models.MonthlyStatistic, error)
	Dashboard(ctx context.Context, now time.Time) (*statistics.Dashboard, error)
	Public(ctx context.Context, now time.Time) (*statistics.Public, error)
	Campaign(ctx context.Context, id uint, from, to time.Time) (*statistics.CampaignStats, error)
	Donors(ctx context.Context, from, to time.Time) (*statistics.DonorStats, error)
	Subscriptions(ctx context.Context) (*subscriptions.Stats, error)
}

// GenerateRequest selects the month to snapshot.
type GenerateRequest struct {
	Year  int `json:"anio" binding:"required"`
	Month int `json:"mes" binding:"required"`
}

// Handler handles statistics API requests.
type Handler struct {
	service StatisticsService
	log     *logger.Logger
	now     func() time.Time
}

// NewHandler creates a new statistics handler.
func NewHandler(service *statistics.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new statistics handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service StatisticsService, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log, now: time.Now}
}

// GetDashboard returns the admin overview.
// GET /estadisticas/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	dash, err := h.service.Dashboard(c.Request.Context(), h.now())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// GetCurrentMonth returns live figures for the running month without storing them.
// GET /estadisticas/mes-actual.
func (h *Handler) GetCurrentMonth(c *gin.Context) {
	stat, err := h.service.CurrentMonth(c.Request.Context(), h.now())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

// ListMonthly returns stored snapshots, newest first.
// GET /estadisticas/mensuales?anio=2024.
func (h *Handler) ListMonthly(c *gin.Context) {
	year, ok := httpx.OptionalInt(c, "anio")
	if !ok {
		return
	}
	items, err := h.service.ListMonthly(c.Request.Context(), year)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":         items,
		"total":        len(items),
		"generated_at": time.Now().UTC(),
	})
}

// GetMonthly returns one stored snapshot.
// GET /estadisticas/mensuales/:anio/:mes.
func (h *Handler) GetMonthly(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("anio"))
	if err != nil {
		httpx.ErrorResponse(c, http.StatusBadRequest, "invalid anio: "+c.Param("anio"))
		return
	}
	month, err := strconv.Atoi(c.Param("mes"))
	if err != nil {
		httpx.ErrorResponse(c, http.StatusBadRequest, "invalid mes: "+c.Param("mes"))
		return
	}

	stat, err := h.service.GetMonthly(c.Request.Context(), year, month)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

// GenerateMonthly computes and stores the snapshot of a month.
// POST /estadisticas/mensuales/generar.
func (h *Handler) GenerateMonthly(c *gin.Context) {
	var in GenerateRequest
	if !httpx.Bind(c, &in) {
		return
	}
	stat, err := h.service.GenerateMonthly(c.Request.Context(), in.Year, in.Month)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}

	h.log.Info().
		Int("year", in.Year).
		Int("month", in.Month).
		Str("total", stat.TotalAmount.StringFixed(2)).
		Msg("Generated monthly statistics")

	c.JSON(http.StatusOK, stat)
}

// GetCampaign returns the figures of one campaign.
// GET /estadisticas/campanas/:id?fecha_inicio=2024-01-01&fecha_fin=2024-03-31.
func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	from, to, ok := httpx.DateRange(c)
	if !ok {
		return
	}
	stats, err := h.service.Campaign(c.Request.Context(), id, from, to)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDonors returns donor figures for a date range.
// GET /estadisticas/donantes?fecha_inicio=2024-01-01.
func (h *Handler) GetDonors(c *gin.Context) {
	from, to, ok := httpx.DateRange(c)
	if !ok {
		return
	}
	stats, err := h.service.Donors(c.Request.Context(), from, to)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSubscriptions returns subscription figures.
// GET /estadisticas/suscripciones.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	stats, err := h.service.Subscriptions(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPublic returns the figures anyone may see.
// GET /estadisticas/publicas.
func (h *Handler) GetPublic(c *gin.Context) {
	pub, err := h.service.Public(c.Request.Context(), h.now())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pub)
}
