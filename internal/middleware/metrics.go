package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Oerlinker/BackendAISi2/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, so probes for
// random paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records latency and status per route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
