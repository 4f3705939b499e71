package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"click2call-gateway/internal/config"
	"click2call-gateway/pkg/logger"
	"click2call-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SecurityHeaders sets conservative browser-facing headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// CORS allows the configured widget origin to call the API with bearer auth.
// An empty origin disables cross-origin access entirely.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit applies a fixed-window per-IP limit backed by redis.
// Redis being unreachable fails open: throttling is protective, not
// load-bearing, and must not take the call API down with it.
func RateLimit(rdb *redis.Client, cfg config.HTTPConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()
		allowed, err := utils.AllowRequest(c.Request.Context(), rdb, key, cfg.RateLimitMax, cfg.RateLimitWindow)
		if err != nil {
			logger.FromGin(c).Warn("rate limit check failed", "err", err)
			c.Next()
			return
		}
		if !allowed {
			retryAfter := int(cfg.RateLimitWindow / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			respondFail(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}
