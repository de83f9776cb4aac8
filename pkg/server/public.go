package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fluentstream/fluentstream/pkg/middleware/ratelimit"
	"github.com/fluentstream/fluentstream/pkg/observability/logger"
	"github.com/fluentstream/fluentstream/pkg/realtime/sse"
)

// PublicConfig configures the public API surface.
type PublicConfig struct {
	PublishRPS   float64
	PublishBurst int
}

// NewPublicHandler builds the public gin engine:
//
//	GET  /v1/events       long-lived SSE stream (?channel=..., Last-Event-ID honored)
//	POST /v1/events       publish one event (rate limited per client IP)
//	GET  /v1/connections  diagnostics snapshot of active connections
func NewPublicHandler(cfg PublicConfig, handler *sse.Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	if cfg.PublishRPS <= 0 {
		cfg.PublishRPS = 50
	}
	if cfg.PublishBurst <= 0 {
		cfg.PublishBurst = 100
	}
	publishLimiter := ratelimit.NewTokenBucketLimiter(cfg.PublishRPS, cfg.PublishBurst)

	v1 := engine.Group("/v1")
	{
		v1.GET("/events", gin.WrapF(handler.Stream()))
		v1.POST("/events", ratelimit.PerClientIP(publishLimiter), gin.WrapF(handler.Publish()))
		v1.GET("/connections", gin.WrapF(handler.Connections()))
	}
	return engine
}

// requestLogger logs completed requests, skipping the stream endpoint:
// a long-lived SSE request only "completes" on disconnect and its
// lifecycle is already logged by the manager.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.Method == "GET" && c.FullPath() == "/v1/events" {
			return
		}
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	}
}
