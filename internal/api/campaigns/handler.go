// Package campaigns provides the REST API handlers for the campaign registry.
package campaigns

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	campaignsvc "github.com/aimd54/sistema-donaciones/internal/service/campaigns"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for campaign operations.
type Service interface {
	Create(ctx context.Context, in campaignsvc.CreateInput) (*models.Campaign, error)
	Get(ctx context.Context, id uint) (*models.Campaign, error)
	List(ctx context.Context, f repository.CampaignFilter, p repository.Pagination) ([]models.Campaign, int64, error)
	Search(ctx context.Context, text string, p repository.Pagination) ([]models.Campaign, int64, error)
	Featured(ctx context.Context) ([]models.Campaign, error)
	Update(ctx context.Context, id uint, in campaignsvc.UpdateInput) (*models.Campaign, error)
	ChangeState(ctx context.Context, id uint, state models.CampaignState, force bool) (*models.Campaign, error)
	RecalculateTotals(ctx context.Context, id uint) (*models.Campaign, error)
	Stats(ctx context.Context) (*campaignsvc.Stats, error)
	Follow(ctx context.Context, userID, campaignID uint) error
	Unfollow(ctx context.Context, userID, campaignID uint) error
	IsFollowing(ctx context.Context, userID, campaignID uint) (bool, error)
	FollowedBy(ctx context.Context, userID uint) ([]models.Campaign, error)
	NotifyFollowers(ctx context.Context, campaignID uint, title, message string) (int, error)
}

// StateRequest changes a campaign state.
type StateRequest struct {
	State models.CampaignState `json:"estado" binding:"required,oneof=Activa Finalizada Cancelada"`
	Force bool                 `json:"forzar"`
}

// NotifyRequest holds a campaign update sent to followers.
type NotifyRequest struct {
	Title   string `json:"titulo" binding:"required,max=255"`
	Message string `json:"mensaje" binding:"required"`
}

// Handler handles campaign requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new campaign handler.
func NewHandler(service *campaignsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new campaign handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns a page of campaigns, emergencies first.
// GET /campanas?estado=Activa&es_emergencia=true.
func (h *Handler) List(c *gin.Context) {
	var f repository.CampaignFilter
	if raw := c.Query("estado"); raw != "" {
		state := models.CampaignState(raw)
		if !state.Valid() {
			httpx.ErrorResponse(c, http.StatusBadRequest, "invalid estado: "+raw)
			return
		}
		f.State = &state
	}
	emergency, ok := httpx.OptionalBool(c, "es_emergencia")
	if !ok {
		return
	}
	f.Emergency = emergency

	page := httpx.Pagination(c)
	items, total, err := h.service.List(c.Request.Context(), f, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Get returns one campaign.
// GET /campanas/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	campaign, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Search finds campaigns by name or description.
// GET /campanas/buscar?q=agua.
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

// Featured returns the highlighted campaigns.
// GET /campanas/destacadas.
func (h *Handler) Featured(c *gin.Context) {
	items, err := h.service.Featured(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// Stats returns registry-wide figures.
// GET /campanas/estadisticas.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Create registers a campaign.
// POST /campanas.
func (h *Handler) Create(c *gin.Context) {
	var in campaignsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	campaign, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// Update edits a campaign.
// PUT /campanas/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in campaignsvc.UpdateInput
	if !httpx.Bind(c, &in) {
		return
	}
	campaign, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// ChangeState finishes, cancels or reactivates a campaign.
// PUT /campanas/:id/estado.
func (h *Handler) ChangeState(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in StateRequest
	if !httpx.Bind(c, &in) {
		return
	}
	campaign, err := h.service.ChangeState(c.Request.Context(), id, in.State, in.Force)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Recalculate recomputes the raised amount from completed donations.
// POST /campanas/:id/recalcular.
func (h *Handler) Recalculate(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	campaign, err := h.service.RecalculateTotals(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Follow subscribes the caller to campaign updates.
// POST /campanas/:id/seguir.
func (h *Handler) Follow(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.Follow(c.Request.Context(), p.UserID, id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"siguiendo": true})
}

// Unfollow removes the caller from the campaign followers.
// DELETE /campanas/:id/seguir.
func (h *Handler) Unfollow(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	if err := h.service.Unfollow(c.Request.Context(), p.UserID, id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"siguiendo": false})
}

// IsFollowing reports whether the caller follows the campaign.
// GET /campanas/:id/siguiendo.
func (h *Handler) IsFollowing(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	following, err := h.service.IsFollowing(c.Request.Context(), p.UserID, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"siguiendo": following})
}

// Followed returns the campaigns the caller follows.
// GET /campanas/seguidas.
func (h *Handler) Followed(c *gin.Context) {
	p, _ := middleware.Current(c)
	items, err := h.service.FollowedBy(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// NotifyFollowers mails a campaign update to every follower.
// POST /campanas/:id/notificar.
func (h *Handler) NotifyFollowers(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in NotifyRequest
	if !httpx.Bind(c, &in) {
		return
	}
	sent, err := h.service.NotifyFollowers(c.Request.Context(), id, in.Title, in.Message)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enviados": sent})
}
