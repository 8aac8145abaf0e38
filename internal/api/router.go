// Package api assembles the HTTP surface: middleware, route table and handlers.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/sistema-donaciones/internal/api/auth"
	"github.com/aimd54/sistema-donaciones/internal/api/campaigns"
	"github.com/aimd54/sistema-donaciones/internal/api/configuration"
	"github.com/aimd54/sistema-donaciones/internal/api/dashboard"
	"github.com/aimd54/sistema-donaciones/internal/api/donations"
	"github.com/aimd54/sistema-donaciones/internal/api/httpx"
	"github.com/aimd54/sistema-donaciones/internal/api/invoices"
	"github.com/aimd54/sistema-donaciones/internal/api/middleware"
	"github.com/aimd54/sistema-donaciones/internal/api/paymentmethods"
	"github.com/aimd54/sistema-donaciones/internal/api/receipts"
	"github.com/aimd54/sistema-donaciones/internal/api/rewards"
	"github.com/aimd54/sistema-donaciones/internal/api/subscriptions"
	"github.com/aimd54/sistema-donaciones/internal/api/users"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health() error
}

// Handlers groups every resource handler mounted by the router.
type Handlers struct {
	Auth           *auth.Handler
	Users          *users.Handler
	Campaigns      *campaigns.Handler
	PaymentMethods *paymentmethods.Handler
	Donations      *donations.Handler
	Subscriptions  *subscriptions.Handler
	Receipts       *receipts.Handler
	Invoices       *invoices.Handler
	Rewards        *rewards.Handler
	Configuration  *configuration.Handler
	Statistics     *dashboard.Handler
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg *config.Config, h Handlers, tokens middleware.TokenParser, health HealthChecker, log *logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		if err := health.Health(); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			httpx.ErrorResponse(c, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	if cfg.Metrics.Prometheus.Enabled {
		path := cfg.Metrics.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	authed := middleware.Auth(tokens)
	optional := middleware.OptionalAuth(tokens)
	admin := middleware.RequireAdmin()

	a := router.Group("/auth")
	{
		a.POST("/register", h.Auth.Register)
		a.POST("/login", h.Auth.Login)
		a.POST("/refresh", h.Auth.Refresh)
		a.POST("/reset-password-request", h.Auth.RequestPasswordReset)
		a.POST("/reset-password", h.Auth.ResetPassword)
		a.GET("/me", authed, h.Auth.Me)
	}

	u := router.Group("/usuarios", authed)
	{
		u.GET("/perfil", h.Users.Profile)
		u.PUT("/perfil", h.Users.UpdateProfile)
		u.POST("/cambiar-password", h.Users.ChangePassword)
		u.POST("/desactivar", h.Users.DeactivateSelf)
		u.GET("/notificaciones", h.Users.Notifications)
		u.PUT("/notificaciones/leer-todas", h.Users.MarkAllNotificationsRead)
		u.PUT("/notificaciones/:id/leer", h.Users.MarkNotificationRead)
		u.GET("/donaciones", h.Users.Donations)
		u.GET("/suscripciones", h.Users.Subscriptions)
		u.GET("/recompensas", h.Users.Rewards)
		u.GET("/estadisticas", h.Users.Stats)

		u.GET("", admin, h.Users.List)
		u.GET("/buscar", admin, h.Users.Search)
		u.GET("/:id", admin, h.Users.Get)
		u.POST("/:id/desactivar", admin, h.Users.Deactivate)
		u.POST("/:id/enviar-resumen", admin, h.Users.SendSummary)
		u.POST("/notificaciones", admin, h.Users.CreateNotification)
	}

	camp := router.Group("/campanas")
	{
		camp.GET("", h.Campaigns.List)
		camp.GET("/buscar", h.Campaigns.Search)
		camp.GET("/destacadas", h.Campaigns.Featured)
		camp.GET("/estadisticas", h.Campaigns.Stats)
		camp.GET("/seguidas", authed, h.Campaigns.Followed)
		camp.GET("/:id", h.Campaigns.Get)
		camp.GET("/:id/siguiendo", authed, h.Campaigns.IsFollowing)
		camp.POST("/:id/seguir", authed, h.Campaigns.Follow)
		camp.DELETE("/:id/seguir", authed, h.Campaigns.Unfollow)

		camp.POST("", authed, admin, h.Campaigns.Create)
		camp.PUT("/:id", authed, admin, h.Campaigns.Update)
		camp.PUT("/:id/estado", authed, admin, h.Campaigns.ChangeState)
		camp.POST("/:id/recalcular", authed, admin, h.Campaigns.Recalculate)
		camp.POST("/:id/notificar", authed, admin, h.Campaigns.NotifyFollowers)
	}

	pm := router.Group("/metodos-pago", authed)
	{
		pm.GET("", h.PaymentMethods.List)
		pm.GET("/:id", h.PaymentMethods.Get)
		pm.POST("", h.PaymentMethods.Create)
		pm.PUT("/:id", h.PaymentMethods.Update)
		pm.DELETE("/:id", h.PaymentMethods.Deactivate)
	}

	don := router.Group("/donaciones")
	{
		don.POST("", optional, h.Donations.Create)
		don.POST("/:id/checkout", optional, h.Donations.Checkout)
		don.GET("/mis-donaciones", authed, h.Donations.Mine)
		don.GET("/:id", authed, h.Donations.Get)

		don.GET("", authed, admin, h.Donations.List)
		don.GET("/estadisticas/dashboard", authed, admin, h.Donations.Dashboard)
		don.POST("/:id/estado", authed, admin, h.Donations.UpdateState)
	}
	router.POST("/pagos/notificaciones", h.Donations.Notification)

	sub := router.Group("/suscripciones", authed)
	{
		sub.GET("/mis-suscripciones", h.Subscriptions.Mine)
		sub.GET("/:id", h.Subscriptions.Get)
		sub.POST("", h.Subscriptions.Create)
		sub.PUT("/:id", h.Subscriptions.Update)
		sub.DELETE("/:id", h.Subscriptions.Cancel)

		sub.GET("", admin, h.Subscriptions.List)
		sub.GET("/estadisticas", admin, h.Subscriptions.Stats)
	}

	rc := router.Group("/comprobantes")
	{
		rc.GET("/verificar", h.Receipts.Verify)
		rc.GET("/codigo/:codigo", authed, h.Receipts.GetByCode)
		rc.GET("/:id", authed, h.Receipts.Get)
		rc.GET("/:id/pdf", authed, h.Receipts.PDF)
		rc.POST("/:id/reenviar", authed, h.Receipts.Resend)
		rc.POST("/generar/:idDonacion", authed, admin, h.Receipts.Generate)
	}

	inv := router.Group("/facturas", authed)
	{
		inv.GET("/mis-facturas", h.Invoices.Mine)
		inv.GET("/datos-fiscales", h.Invoices.ListFiscalData)
		inv.POST("/datos-fiscales", h.Invoices.SaveFiscalData)
		inv.POST("/solicitar", h.Invoices.Request)
		inv.GET("/:id", h.Invoices.Get)
		inv.GET("/:id/pdf", h.Invoices.PDF)
		inv.POST("/:id/reenviar", h.Invoices.Resend)

		inv.GET("/buscar", admin, h.Invoices.Search)
		inv.POST("/generar", admin, h.Invoices.Generate)
		inv.POST("/:id/cancelar", admin, h.Invoices.Cancel)
	}

	rw := router.Group("/recompensas")
	{
		rw.GET("", h.Rewards.List)
		rw.GET("/disponibles/usuario", authed, h.Rewards.Available)
		rw.GET("/:id", h.Rewards.Get)
		rw.POST("/:id/canjear", authed, h.Rewards.Redeem)
		rw.POST("/verificar-automaticas", authed, h.Rewards.AutoAssign)

		rw.POST("", authed, admin, h.Rewards.Create)
		rw.PUT("/:id", authed, admin, h.Rewards.Update)
		rw.DELETE("/:id", authed, admin, h.Rewards.Delete)
		rw.POST("/asignar", authed, admin, h.Rewards.Assign)
		rw.PUT("/usuario/:idUsuario/recompensa/:idRecompensa/estado", authed, admin, h.Rewards.UpdateState)
	}

	conf := router.Group("/configuraciones")
	{
		conf.GET("/publicas/valor", h.Configuration.Value)
		conf.GET("/publicas/valores", h.Configuration.Values)

		conf.GET("", authed, admin, h.Configuration.List)
		conf.GET("/:clave", authed, admin, h.Configuration.Get)
		conf.POST("", authed, admin, h.Configuration.Create)
		conf.PUT("/:clave", authed, admin, h.Configuration.Update)
		conf.DELETE("/:clave", authed, admin, h.Configuration.Delete)
	}

	st := router.Group("/estadisticas")
	{
		st.GET("/publicas", h.Statistics.GetPublic)
		st.GET("/perfil", authed, h.Users.Stats)

		st.GET("/dashboard", authed, admin, h.Statistics.GetDashboard)
		st.GET("/mes-actual", authed, admin, h.Statistics.GetCurrentMonth)
		st.GET("/mensuales", authed, admin, h.Statistics.ListMonthly)
		st.GET("/mensuales/:anio/:mes", authed, admin, h.Statistics.GetMonthly)
		st.POST("/mensuales/generar", authed, admin, h.Statistics.GenerateMonthly)
		st.GET("/campanas/:id", authed, admin, h.Statistics.GetCampaign)
		st.GET("/donantes", authed, admin, h.Statistics.GetDonors)
		st.GET("/suscripciones", authed, admin, h.Statistics.GetSubscriptions)
	}

	return router
}
