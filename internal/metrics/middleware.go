package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetricsMiddleware собирает метрики для HTTP запросов.
// WebSocket апгрейды не измеряются: длительность равна времени жизни соединения.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
