package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/metrics"
	"github.com/polkiloo/orderpipeline/internal/server/http/handlers"
	"github.com/polkiloo/orderpipeline/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
// A nil m disables request metrics and the /metrics route.
func Setup(facade handlers.PipelineFacade, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.Metrics(m))
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithDecompressFn(gzip.DefaultDecompressHandle)))

	orderHandler := handlers.NewOrderHandler(facade)
	healthHandler := handlers.NewHealthHandler(facade)

	orders := engine.Group("/orders")
	orders.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	orders.POST("", orderHandler.Create)
	orders.GET("/:id", orderHandler.Get)

	engine.GET("/healthz", healthHandler.Check)
	if m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return engine
}
