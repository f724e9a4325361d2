package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wavelink-backend/internal/database"
)

// RateLimiter implements Redis-based fixed-window rate limiting. Signaling
// bursts are normal during ICE exchange, so the relay window must be sized
// well above a single call's candidate count.
type RateLimiter struct {
	redisClient *database.RedisClient
	requests    int
	window      time.Duration
}

// NewRateLimiter creates a new rate limiter allowing `requests` per `window`
func NewRateLimiter(redisClient *database.RedisClient, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		requests:    requests,
		window:      window,
	}
}

// Middleware returns a Gin middleware enforcing the limit per user (falling
// back to client IP for unauthenticated routes). If Redis is degraded the
// limiter fails open; blocking all calls because the counter store is down
// is worse than briefly not limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.redisClient.IsDegraded() {
			c.Next()
			return
		}

		var identifier string
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		} else {
			identifier = "ip:" + c.ClientIP()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), identifier)
		ctx := c.Request.Context()

		count, err := rl.redisClient.Client.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rl.redisClient.Client.Expire(ctx, key, rl.window)
		}

		if count > int64(rl.requests) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
