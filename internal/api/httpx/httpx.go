// Package httpx holds the response, binding and parameter helpers shared by the API handlers.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// ErrorResponse sends a standardized error response.
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// Error maps an application error to its HTTP status. Unclassified errors are logged and hidden.
func Error(c *gin.Context, log *logger.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch appErr.Kind {
	case apperr.KindNotFound:
		ErrorResponse(c, http.StatusNotFound, appErr.Message)
	case apperr.KindBadRequest:
		ErrorResponse(c, http.StatusBadRequest, appErr.Message)
	case apperr.KindUnauthorized:
		ErrorResponse(c, http.StatusUnauthorized, appErr.Message)
	case apperr.KindForbidden:
		ErrorResponse(c, http.StatusForbidden, appErr.Message)
	case apperr.KindConflict:
		ErrorResponse(c, http.StatusConflict, appErr.Message)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// Bind decodes the JSON body into dst and renders validation failures as a 400.
// It reports whether the handler may continue.
func Bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldName(fe)] = fieldMessage(fe)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Validation failed",
			"fields":    fields,
			"timestamp": time.Now().UTC(),
		})
		return false
	}

	ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
	return false
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.Namespace()
	}
	return name
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "numeric":
		return "must be numeric"
	default:
		return "failed on " + fe.Tag()
	}
}

// ParseID extracts a positive numeric path parameter.
func ParseID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", name, raw))
		return 0, false
	}
	return uint(id), true
}

// Pagination reads the page and limit query parameters.
func Pagination(c *gin.Context) repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return repository.Pagination{Page: page, Limit: limit}.Normalize()
}

// Page sends a paginated listing.
func Page(c *gin.Context, items any, total int64, p repository.Pagination) {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{
			"total":        total,
			"page":         p.Page,
			"limit":        p.Limit,
			"total_pages":  pages,
			"generated_at": time.Now().UTC(),
		},
	})
}

// OptionalBool parses a boolean query parameter, nil when absent.
func OptionalBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", name, raw))
		return nil, false
	}
	return &v, true
}

// OptionalInt parses an integer query parameter, nil when absent.
func OptionalInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", name, raw))
		return nil, false
	}
	return &v, true
}

// DateRange parses the fecha_inicio and fecha_fin query parameters (YYYY-MM-DD).
// The end date is inclusive, so the returned upper bound is the following midnight.
func DateRange(c *gin.Context) (time.Time, time.Time, bool) {
	var from, to time.Time
	if raw := strings.TrimSpace(c.Query("fecha_inicio")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "invalid fecha_inicio, expected YYYY-MM-DD")
			return from, to, false
		}
		from = t
	}
	if raw := strings.TrimSpace(c.Query("fecha_fin")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "invalid fecha_fin, expected YYYY-MM-DD")
			return from, to, false
		}
		to = t.AddDate(0, 0, 1)
	}
	return from, to, true
}
