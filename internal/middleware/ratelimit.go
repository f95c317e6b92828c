package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit applies a fixed-window per-client-IP limit backed by
// redis. Redis being unreachable fails open: availability of the auth
// surface wins over throttling precision.
func RateLimit(client *redis.Client, window time.Duration, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		windowStart := time.Now().Unix() / int64(window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), windowStart)

		ctx := c.Request.Context()
		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			log.Printf("ratelimit: redis incr failed: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, window)
		}
		if count > int64(max) {
			abortTooManyRequests(c)
			return
		}
		c.Next()
	}
}
