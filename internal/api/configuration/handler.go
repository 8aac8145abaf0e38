// Package configuration provides the REST API handlers for system configuration keys.
package configuration

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/models"
	configsvc "github.com/aimd54/sistema-donaciones/internal/service/configuration"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Service interface for configuration operations.
type Service interface {
	List(ctx context.Context) ([]models.Configuration, error)
	Get(ctx context.Context, key string) (*models.Configuration, error)
	Create(ctx context.Context, in configsvc.CreateInput) (*models.Configuration, error)
	Update(ctx context.Context, key string, in configsvc.UpdateInput) (*models.Configuration, error)
	Delete(ctx context.Context, key string) error
	GetValue(ctx context.Context, key string) (any, error)
	GetMany(ctx context.Context, keys []string) (map[string]any, error)
}

// Handler handles configuration requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new configuration handler.
func NewHandler(service *configsvc.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(service, log)
}

// NewHandlerWithInterfaces creates a new configuration handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// List returns every key.
// GET /configuraciones.
func (h *Handler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

// Get returns a key.
// GET /configuraciones/:clave.
func (h *Handler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("clave"))
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Create adds a key.
// POST /configuraciones.
func (h *Handler) Create(c *gin.Context) {
	var in configsvc.CreateInput
	if !httpx.Bind(c, &in) {
		return
	}
	cfg, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Update changes the value or description of an editable key.
// PUT /configuraciones/:clave.
func (h *Handler) Update(c *gin.Context) {
	var in configsvc.UpdateInput
	if !httpx.Bind(c, &in) {
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), c.Param("clave"), in)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Delete removes an editable key.
// DELETE /configuraciones/:clave.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("clave")); err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration deleted"})
}

// Value returns the typed value of one key.
// GET /configuraciones/publicas/valor?clave=nombre_organizacion.
func (h *Handler) Value(c *gin.Context) {
	key := strings.TrimSpace(c.Query("clave"))
	if key == "" {
		httpx.ErrorResponse(c, http.StatusBadRequest, "clave parameter is required")
		return
	}
	v, err := h.service.GetValue(c.Request.Context(), key)
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clave": key, "valor": v})
}

// Values returns the typed values of several keys. Unknown keys are left out.
// GET /configuraciones/publicas/valores?claves=a,b.
func (h *Handler) Values(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("claves"))
	if raw == "" {
		httpx.ErrorResponse(c, http.StatusBadRequest, "claves parameter is required")
		return
	}
	values, err := h.service.GetMany(c.Request.Context(), strings.Split(raw, ","))
	if err != nil {
		httpx.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, values)
}
