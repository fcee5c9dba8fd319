// Package router assembles the HTTP surface: the JSON API under /api and
// the Prometheus scrape endpoint.
package router

import (
	gmw "github.com/Laisky/gin-middlewares/v7"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/twinmcp/gateway/common/config"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/controller"
	"github.com/twinmcp/gateway/middleware"
)

// SetRouter installs the middleware chain and every API route.
func SetRouter(engine *gin.Engine, server *controller.Server, rec metrics.Recorder, logger glog.Logger) {
	engine.Use(
		middleware.RequestId(),
		gmw.NewLoggerMiddleware(
			gmw.WithLevel(logLevel().String()),
			gmw.WithLogger(logger.Named("gin")),
		),
		cors.Default(),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.HTTPMetrics(rec),
	)

	api := engine.Group("/api")
	{
		api.GET("/health", server.Health)
		api.GET("/stats", server.Stats)

		api.GET("/tools", server.ListTools)
		api.GET("/tools/:id", server.GetTool)
		api.POST("/tools/:id/execute", server.ExecuteTool)

		api.GET("/jobs/:id", server.GetJob)
		api.DELETE("/jobs/:id", server.CancelJob)
	}

	if config.EnablePrometheusMetrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func logLevel() glog.Level {
	if config.DebugEnabled {
		return glog.LevelDebug
	}
	return glog.LevelInfo
}
