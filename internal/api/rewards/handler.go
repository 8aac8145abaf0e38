// Package rewards provides the REST API handlers for the reward catalog and user rewards.
package rewards

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	rewardsvc "github.com/aimd54/sistema-donaciones/internal/service/rewards"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for reward operations.
type Service interface {
	Create(ctx context.Context, in rewardsvc.CreateInput) (*models.Reward, error)
	Get(ctx context.Context, id uint) (*models.Reward, error)
	List(ctx context.Context, f repository.RewardFilter, p repository.Pagination) ([]models.Reward, int64, error)
	Update(ctx context.Context, id uint, in rewardsvc.UpdateInput) (*models.Reward, error)
	Delete(ctx context.Context, id uint) error
	AvailableForUser(ctx context.Context, userID uint) ([]models.Reward, error)
	Assign(ctx context.Context, in rewardsvc.AssignInput) (*models.UserReward, error)
	Redeem(ctx context.Context, userID, rewardID uint) (*models.UserReward, error)
	UpdateState(ctx context.Context, userID, rewardID uint, state models.UserRewardState, notes *string) (*models.UserReward, error)
	AutoAssign(ctx context.Context, userID uint) ([]models.UserReward, error)
}

// StateRequest changes the state of a held reward.
type StateRequest struct {
	State models.UserRewardState `json:"estado" binding:"required,oneof=Pendiente Entregada Canjeada Expirada"`
	Notes *string                `json:"notas"`
}

// Handler handles reward requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new reward handler.
func NewHandler(service *rewardsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new reward handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns the catalog.
// GET /recompensas?activa=true&tipo=Insignia.
func (h *Handler) List(c *gin.Context) {
	active, ok := httpx.OptionalBool(c, "activa")
	if !ok {
		return
	}
	f := repository.RewardFilter{Active: active}
	if raw := c.Query("tipo"); raw != "" {
		t := models.RewardType(raw)
		f.Type = &t
	}
	page := httpx.Pagination(c)
	items, total, err := h.service.List(c.Request.Context(), f, page)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	httpx.Page(c, items, total, page)
}

// Get returns a catalog entry.
// GET /recompensas/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Available returns the rewards the caller can claim right now.
// GET /recompensas/disponibles/usuario.
func (h *Handler) Available(c *gin.Context) {
	p, _ := middleware.Current(c)
	items, err := h.service.AvailableForUser(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// Create adds a catalog entry.
// POST /recompensas.
func (h *Handler) Create(c *gin.Context) {
	var in rewardsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	r, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// Update edits a catalog entry.
// PUT /recompensas/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var in rewardsvc.UpdateInput
	if !httpx.Bind(c, &in) {
		return
	}
	r, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Delete removes a catalog entry nobody holds.
// DELETE /recompensas/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reward deleted"})
}

// Assign grants a reward to a user.
// POST /recompensas/asignar.
func (h *Handler) Assign(c *gin.Context) {
	var in rewardsvc.AssignInput
	if !httpx.Bind(c, &in) {
		return
	}
	ur, err := h.service.Assign(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, ur)
}

// Redeem spends the caller's held reward.
// POST /recompensas/:id/canjear.
func (h *Handler) Redeem(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Current(c)
	ur, err := h.service.Redeem(c.Request.Context(), p.UserID, id)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ur)
}

// AutoAssign grants every badge the caller now qualifies for.
// POST /recompensas/verificar-automaticas.
func (h *Handler) AutoAssign(c *gin.Context) {
	p, _ := middleware.Current(c)
	items, err := h.service.AutoAssign(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asignadas": items, "total": len(items)})
}

// UpdateState changes the state of a user's reward.
// PUT /recompensas/usuario/:idUsuario/recompensa/:idRecompensa/estado.
func (h *Handler) UpdateState(c *gin.Context) {
	userID, ok := httpx.ParseID(c, "idUsuario")
	if !ok {
		return
	}
	rewardID, ok := httpx.ParseID(c, "idRecompensa")
	if !ok {
		return
	}
	var in StateRequest
	if !httpx.Bind(c, &in) {
		return
	}
	ur, err := h.service.UpdateState(c.Request.Context(), userID, rewardID, in.State, in.Notes)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ur)
}
