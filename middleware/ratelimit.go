package middleware

import (
	"net/http"
	"strconv"
	"time"

	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"
	"posts-rag-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware implements fixed-window rate limiting using Redis.
// It limits requests per IP + route, and fails open when Redis is unreachable.
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	limit := cfg.RateLimitReqs
	window := cfg.RateLimitWindow

	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()
		ctx := c.Request.Context()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", "request_id", GetRequestID(c), "error", err)
			c.Next()
			return
		}

		// Set expiration on first request
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": int(window.Seconds()),
					"limit":       limit,
				})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
