package httpserver

import (
	"context"
	"time"

	"habit-updater/internal/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionChecker interface {
	IsConnected() bool
}

// NewRouter builds the ops surface. publisher may be nil when MQ is disabled.
// Routes that change state are only registered when adminRoutes is set.
func NewRouter(statusHandler *handler.StatusHandler, logger *zap.Logger, db Pinger, publisher ConnectionChecker, adminRoutes bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 请求日志中间件
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(503, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(503, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", statusHandler.Status)
	r.GET("/habits/:id/schedule", statusHandler.Schedule)
	if adminRoutes {
		r.POST("/outbox/requeue", statusHandler.RequeueOutbox)
	}
	return r
}
