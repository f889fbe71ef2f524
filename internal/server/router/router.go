package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/observability"
	"github.com/mamadbah2/lambtrial/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. webhook may
// be nil when the WhatsApp integration is disabled.
func New(trial *handlers.TrialHandler, webhook *handlers.WebhookHandler, metrics *observability.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(metricsMiddleware(metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	if webhook != nil {
		r.GET("/webhook", webhook.Verify)
		r.POST("/webhook", webhook.Receive)
		r.POST("/send-message", webhook.SendMessage)
	}

	api := r.Group("/api")
	{
		api.GET("/animals", trial.ListAnimals)
		api.POST("/animals", trial.RegisterAnimal)
		api.PUT("/animals/:id", trial.UpdateAnimal)
		api.DELETE("/animals/:id", trial.DeleteAnimal)
		api.POST("/animals/:id/toggle", trial.ToggleAnimal)

		api.GET("/weighings", trial.ListWeighings)
		api.POST("/weighings", trial.RecordWeighing)
		api.DELETE("/weighings/:id", trial.DeleteWeighing)

		api.GET("/feed", trial.ListFeed)
		api.POST("/feed", trial.RecordFeed)
		api.DELETE("/feed/:id", trial.DeleteFeed)

		api.GET("/incidents", trial.ListIncidents)
		api.POST("/incidents", trial.RecordIncident)
		api.DELETE("/incidents/:id", trial.DeleteIncident)

		api.GET("/reports/overview", trial.Overview)
		api.GET("/reports/animals", trial.AnimalReport)
		api.GET("/reports/groups", trial.GroupReport)
		api.GET("/reports/conversion", trial.ConversionReport)

		api.GET("/calendar/week", trial.CalendarWeek)
		api.GET("/calendar/day", trial.CalendarDay)
		api.GET("/calendar/month", trial.CalendarMonth)

		api.GET("/backup", trial.DownloadBackup)
		api.POST("/backup", trial.RestoreBackup)
		api.POST("/export/sheets", trial.ExportSheets)
	}

	if logger != nil {
		logger.Info("router initialized", zap.Int("routes", len(r.Routes())))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// metricsMiddleware labels requests by route template to keep cardinality
// bounded; unmatched paths share one label.
func metricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
