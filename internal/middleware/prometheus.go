package middleware

import (
	"strconv"
	"time"

	"task_tracker/internal/observability"

	"github.com/gin-gonic/gin"
)

// Prometheus records request count, latency and concurrency per route.
func Prometheus(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		// route pattern keeps label cardinality bounded
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	}
}
