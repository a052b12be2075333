package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Lifecycle     *LifecycleHandler
	Stats         *StatsHandler
	Admin         *AdminHandler
	Subscriptions *SubscriptionHandler
	Settings      *SettingsHandler
}

type RouterOptions struct {
	JWTSecret      string
	RequestTimeout time.Duration
	Metrics        bool
	// HealthChecks are reported by /health; a failing one makes it 503.
	HealthChecks map[string]func() error
}

func InitRoutes(h Handlers, opts RouterOptions) *gin.Engine {

	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	if opts.Metrics {
		router.Use(middleware.Metrics())
	}

	api := router.Group("/api/v1")
	admin := api.Group("", middleware.RequireRole(opts.JWTSecret, string(entity.RoleAdmin)))

	// Поток статистики живет дольше любого таймаута запроса
	admin.GET("/admin/stats/stream", h.Stats.Stream)

	public := api.Group("", middleware.Timeout(opts.RequestTimeout))
	{
		public.POST("/payments", h.Lifecycle.SubmitPayment)
		public.POST("/subscriptions", h.Subscriptions.Subscribe)
	}

	timed := admin.Group("", middleware.Timeout(opts.RequestTimeout))
	{
		// Lifecycle routes
		vehicles := timed.Group("/vehicles")
		{
			vehicles.POST("", h.Lifecycle.RegisterVehicle)
			vehicles.GET("", h.Lifecycle.ActiveVehicles)
			vehicles.PUT("/:id", h.Lifecycle.UpdateVehicle)
			vehicles.POST("/:id/exit", h.Lifecycle.Exit)
			vehicles.POST("/:id/quick-exit", h.Lifecycle.QuickExit)
		}
		timed.POST("/parking/confirm", h.Lifecycle.ConfirmParking)
		timed.POST("/payments/validate", h.Lifecycle.ValidatePayment)

		// Back office
		tickets := timed.Group("/tickets")
		{
			tickets.GET("", h.Admin.GetTickets)
			tickets.POST("", h.Admin.CreateTickets)
		}

		staff := timed.Group("/staff")
		{
			staff.GET("", h.Admin.GetStaff)
			staff.POST("", h.Admin.CreateStaff)
			staff.PUT("/:id", h.Admin.UpdateStaff)
			staff.DELETE("/:id", h.Admin.DeleteStaff)
		}

		timed.GET("/settings", h.Settings.Get)
		timed.PUT("/settings", h.Settings.Update)

		history := timed.Group("/history")
		{
			history.GET("", h.Admin.GetRecentHistory)
			history.GET("/summary", h.Admin.HistorySummary)
			history.GET("/:vehicleId", h.Admin.GetHistory)
		}

		// Dashboard
		timed.GET("/admin/stats", h.Stats.Snapshot)
		timed.GET("/admin/stats/connections", h.Stats.Connections)
		timed.GET("/admin/notifications/failed", h.Admin.FailedNotifications)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		checks := make(map[string]string, len(opts.HealthChecks))
		for name, check := range opts.HealthChecks {
			if err := check(); err != nil {
				checks[name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		})
	})

	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return router
}
