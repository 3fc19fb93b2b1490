package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/handler"
	"github.com/Oerlinker/BackendAISi2/internal/middleware"
	"github.com/Oerlinker/BackendAISi2/internal/models"
	"github.com/Oerlinker/BackendAISi2/internal/service"
	"github.com/Oerlinker/BackendAISi2/pkg/config"
	"github.com/Oerlinker/BackendAISi2/pkg/logger"
	corsmiddleware "github.com/Oerlinker/BackendAISi2/pkg/middleware/cors"
	reqidmiddleware "github.com/Oerlinker/BackendAISi2/pkg/middleware/requestid"
)

func wireRouter(cfg *config.Config, log *zap.Logger, svcs Services, modelAdmin *service.ModelAdminService, health *handler.MetricsHandler) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svcs.Metrics))

	r.GET("/health", health.Health)
	r.GET("/metrics", health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	predictions := handler.NewPredictionHandler(svcs.Predictions, svcs.Recommendations, nil)
	if svcs.RiskReports != nil {
		predictions = handler.NewPredictionHandler(svcs.Predictions, svcs.Recommendations, svcs.RiskReports)
	}
	notifications := handler.NewNotificationHandler(svcs.Notifications)
	modelsHandler := handler.NewModelHandler(modelAdmin)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix, middleware.JWT(svcs.Tokens))
	{
		p := api.Group("/predictions")
		p.POST("/generate", predictions.Generate)
		p.GET("/at-risk", staff, predictions.AtRisk)
		p.GET("/at-risk/export", staff, predictions.ExportAtRisk)
		p.GET("", predictions.List)
		p.GET("/:id", predictions.Get)
		p.GET("/:id/recommendations", predictions.Recommendations)

		n := api.Group("/notifications")
		n.GET("/alerts", notifications.Alerts)
		n.POST("/alerts/publish", notifications.PublishAlerts)
		n.GET("", notifications.List)
		n.GET("/unread-count", notifications.UnreadCount)
		n.POST("/read-all", notifications.MarkAllRead)
		n.POST("/:id/read", notifications.MarkRead)
		n.POST("/:id/archive", notifications.Archive)

		m := api.Group("/models", admin)
		m.POST("/train", modelsHandler.Train)
		m.POST("/reload", modelsHandler.Reload)
		m.GET("/metadata", modelsHandler.Metadata)

		api.GET("/metrics/summary", admin, health.Summary)
	}

	return r
}
