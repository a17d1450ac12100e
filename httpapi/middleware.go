package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ---------------------------
// Zerolog based middleware for logging HTTP requests, optionally feeding the
// prometheus counters as well.
func ZerologLogger(metrics *httpMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)
		status := c.Writer.Status()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Dur("duration", duration).
			Msg("")
		if metrics != nil {
			ssCode := strconv.Itoa(status)
			handler := c.FullPath()
			metrics.requestCount.WithLabelValues(ssCode, c.Request.Method, handler).Inc()
			metrics.requestDuration.WithLabelValues(ssCode, c.Request.Method, handler).Observe(duration.Seconds())
		}
	}
}
