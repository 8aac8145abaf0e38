// Package middleware provides the gin middleware of the HTTP API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/service/auth"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const principalKey = "principal"

// TokenParser validates access tokens.
type TokenParser interface {
	ParseAccessToken(token string) (*auth.Claims, error)
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uint
	Email  string
	Role   string
	Admin  bool
}

// Auth rejects requests without a valid bearer access token.
func Auth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			httpx.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		claims, err := tokens.ParseAccessToken(raw)
		if err != nil {
			httpx.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Set(principalKey, principalFrom(claims))
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present and lets anonymous requests through.
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c); ok {
			if claims, err := tokens.ParseAccessToken(raw); err == nil {
				c.Set(principalKey, principalFrom(claims))
			}
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Current(c)
		if !ok {
			httpx.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !p.Admin {
			httpx.ErrorResponse(c, http.StatusForbidden, "Administrator role required")
			return
		}
		c.Next()
	}
}

// Current returns the authenticated caller, if any.
func Current(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

func principalFrom(claims *auth.Claims) *Principal {
	return &Principal{
		UserID: claims.UserID(),
		Email:  claims.Email,
		Role:   claims.Role,
		Admin:  claims.IsAdmin(),
	}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Logger logs every request with its status and latency.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prommetrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
