package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

// WebhookRateLimit throttles webhook deliveries per provider and client IP.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		res, ok := s.limiter.Allow(c.Request.Context(), c.Param("provider"), c.ClientIP())
		if !ok {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, errRateLimited)
			return
		}
		c.Next()
	}
}
