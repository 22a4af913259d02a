package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// observe records request count and latency per route.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		s.metrics.ObserveHTTP(handler, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// rateLimit applies the shared token bucket to every request. Waiting is
// bounded by the request context, so a client that gives up stops queueing.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.limiter.Wait(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
