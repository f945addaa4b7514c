package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/logger"
	"github.com/charlesng35/salesalert/pkg/response"
)

// RateLimit limits requests per (clientIP, route) within a sliding window, backed
// by the same store that enforces per-user delivery limits. Store failures let the
// request through.
func RateLimit(store alerting.RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	windows := []alerting.Window{{Span: window, Max: maxRequests}}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		key := "http:" + c.ClientIP() + "|" + route

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))

		allowed, err := store.Reserve(c.Request.Context(), key, time.Now(), windows)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
