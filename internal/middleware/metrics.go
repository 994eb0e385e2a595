package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thetact/tact-backend/internal/observability"
)

// MetricsMiddleware records request counts and latencies labelled by route template.
func MetricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
