package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRatePrefix = "rl:login:"

// LoginRateLimit limits PIN login attempts per phone (or IP when the body has
// no phone) using a fixed one-minute window in Redis.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}
		key := loginRatePrefix + subject

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			if ttl, err := cache.TTL(c.UserContext(), key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
