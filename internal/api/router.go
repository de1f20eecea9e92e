package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/api/handlers"
	"github.com/streamflow/analytics-core/internal/api/middleware"
	"github.com/streamflow/analytics-core/internal/config"
	"github.com/streamflow/analytics-core/internal/core/metrics"
	"github.com/streamflow/analytics-core/internal/websocket"
)

// NewRouter builds the HTTP surface: rule configuration, alert
// management, event intake, health, metrics, and the dashboard feed.
func NewRouter(cfg *config.Config, h *handlers.Handlers, hub *websocket.Hub,
	collector *metrics.Collector, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", h.Health)
	router.GET("/ws", websocket.HandleWebSocketGin(hub))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(collector.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/events", h.IngestEvent)
		api.GET("/stats", h.PipelineStats)

		ruleRoutes := api.Group("/rules")
		{
			ruleRoutes.GET("", h.ListRules)
			ruleRoutes.POST("", h.CreateRule)
			ruleRoutes.GET("/:id", h.GetRule)
			ruleRoutes.PUT("/:id", h.UpdateRule)
			ruleRoutes.PATCH("/:id/enabled", h.SetRuleEnabled)
			ruleRoutes.DELETE("/:id", h.DeleteRule)
		}

		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.GET("", h.ListAlerts)
			alertRoutes.GET("/stats", h.AlertStats)
			alertRoutes.GET("/:id", h.GetAlert)
			alertRoutes.GET("/:id/history", h.AlertHistory)
			alertRoutes.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alertRoutes.POST("/:id/resolve", h.ResolveAlert)
		}
	}

	return router
}
