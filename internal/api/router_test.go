package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"

	authapi "github.com/aimd54/sistema-donaciones/internal/api/auth"
	"github.com/aimd54/sistema-donaciones/internal/api/campaigns"
	"github.com/aimd54/sistema-donaciones/internal/api/configuration"
	"github.com/aimd54/sistema-donaciones/internal/api/dashboard"
	"github.com/aimd54/sistema-donaciones/internal/api/donations"
	"github.com/aimd54/sistema-donaciones/internal/api/invoices"
	"github.com/aimd54/sistema-donaciones/internal/api/paymentmethods"
	"github.com/aimd54/sistema-donaciones/internal/api/receipts"
	"github.com/aimd54/sistema-donaciones/internal/api/rewards"
	"github.com/aimd54/sistema-donaciones/internal/api/subscriptions"
	"github.com/aimd54/sistema-donaciones/internal/api/users"
	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/service/auth"
	configsvc "github.com/aimd54/sistema-donaciones/internal/service/configuration"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

type fakeTokens map[string]*auth.Claims

func (f fakeTokens) ParseAccessToken(token string) (*auth.Claims, error) {
	if claims, ok := f[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health() error { return f.err }

type fakeConfiguration struct{}

func (fakeConfiguration) List(ctx context.Context) ([]models.Configuration, error) {
	return []models.Configuration{{Key: "meta_mensual", Value: "1000", Type: models.ConfigNumber}}, nil
}

func (fakeConfiguration) Get(ctx context.Context, key string) (*models.Configuration, error) {
	return nil, apperr.NotFound("configuration %s not found", key)
}

func (fakeConfiguration) Create(ctx context.Context, in configsvc.CreateInput) (*models.Configuration, error) {
	return nil, errors.New("not implemented")
}

func (fakeConfiguration) Update(ctx context.Context, key string, in configsvc.UpdateInput) (*models.Configuration, error) {
	return nil, errors.New("not implemented")
}

func (fakeConfiguration) Delete(ctx context.Context, key string) error {
	return errors.New("not implemented")
}

func (fakeConfiguration) GetValue(ctx context.Context, key string) (any, error) {
	return "Fundación Esperanza", nil
}

func (fakeConfiguration) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	return map[string]any{}, nil
}

func setupRouter(t *testing.T, healthErr error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	cfg := &config.Config{}
	cfg.Metrics.Prometheus.Enabled = true
	cfg.Metrics.Prometheus.Path = "/metrics"

	tokens := fakeTokens{
		"donor": {Role: models.RoleDonor, Type: auth.TokenAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: "4"}},
		"admin": {Role: models.RoleAdmin, Type: auth.TokenAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}},
	}

	h := Handlers{
		Auth:           authapi.NewHandlerWithInterfaces(nil, log),
		Users:          users.NewHandlerWithInterfaces(nil, log),
		Campaigns:      campaigns.NewHandlerWithInterfaces(nil, log),
		PaymentMethods: paymentmethods.NewHandlerWithInterfaces(nil, log),
		Donations:      donations.NewHandlerWithInterfaces(nil, log),
		Subscriptions:  subscriptions.NewHandlerWithInterfaces(nil, log),
		Receipts:       receipts.NewHandlerWithInterfaces(nil, log),
		Invoices:       invoices.NewHandlerWithInterfaces(nil, log),
		Rewards:        rewards.NewHandlerWithInterfaces(nil, log),
		Configuration:  configuration.NewHandlerWithInterfaces(fakeConfiguration{}, log),
		Statistics:     dashboard.NewHandlerWithInterfaces(nil, log),
	}
	return NewRouter(cfg, h, tokens, fakeHealth{err: healthErr}, log)
}

func do(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(setupRouter(t, nil), http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(setupRouter(t, errors.New("down")), http.MethodGet, "/health", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_PublicConfiguration(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, http.MethodGet, "/configuraciones/publicas/valor?clave=nombre_organizacion", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"clave":"nombre_organizacion","valor":"Fundación Esperanza"}`, w.Body.String())
}

func TestRouter_AdminGate(t *testing.T) {
	router := setupRouter(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "anonymous on admin route", method: http.MethodGet, path: "/configuraciones", want: http.StatusUnauthorized},
		{name: "donor on admin route", method: http.MethodGet, path: "/configuraciones", token: "donor", want: http.StatusForbidden},
		{name: "admin on admin route", method: http.MethodGet, path: "/configuraciones", token: "admin", want: http.StatusOK},
		{name: "admin missing key", method: http.MethodGet, path: "/configuraciones/desconocida", token: "admin", want: http.StatusNotFound},
		{name: "anonymous statistics dashboard", method: http.MethodGet, path: "/estadisticas/dashboard", want: http.StatusUnauthorized},
		{name: "donor donation listing", method: http.MethodGet, path: "/donaciones", token: "donor", want: http.StatusForbidden},
		{name: "anonymous own donations", method: http.MethodGet, path: "/donaciones/mis-donaciones", want: http.StatusUnauthorized},
		{name: "anonymous subscriptions", method: http.MethodGet, path: "/suscripciones/mis-suscripciones", want: http.StatusUnauthorized},
		{name: "donor reward catalog change", method: http.MethodPost, path: "/recompensas", token: "donor", want: http.StatusForbidden},
		{name: "donor invoice cancel", method: http.MethodPost, path: "/facturas/1/cancelar", token: "donor", want: http.StatusForbidden},
		{name: "anonymous receipt", method: http.MethodGet, path: "/comprobantes/1", want: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/nada", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(router, tt.method, tt.path, tt.token).Code)
		})
	}
}
