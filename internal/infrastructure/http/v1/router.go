package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("guide-helper-vtiles"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)

	v1.GET("/view", handler.GetView)
	v1.PUT("/view", handler.SetView)

	v1.POST("/events", handler.Event)
	v1.POST("/events/click", handler.Click)
	v1.GET("/features", handler.Features)

	v1.GET("/tiles", handler.Tiles)
	v1.GET("/tiles/:z/:x/:y", handler.Tile)
	v1.DELETE("/tiles/:z/:x/:y", handler.InvalidateTile)

	v1.GET("/style", handler.GetStyle)
	v1.PUT("/style", handler.SetStyle)

	v1.GET("/frame", handler.Frame)
	v1.GET("/stats", handler.Stats)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
