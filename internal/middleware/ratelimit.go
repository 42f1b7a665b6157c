package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware allows limit requests per path and client IP in each
// fixed window. Redis errors let the request through.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Path(), c.IP())

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			metrics.HTTPRateLimitRejectionsTotal.Inc()
			retryAfter := window
			if ttl, err := rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			c.Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
