package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/ratelimit"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Store      ratelimit.Store         // Counter backend
	Max        int                     // Maximum number of requests
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Function to generate the key for rate limiting
	Message    string                  // Custom error message
	Name       string                  // Limiter label for metrics
	Metrics    *observability.Metrics  // Optional
}

// NewRateLimiter creates a fixed-window rate limiter. Limit headers are set
// on every response. When the store fails the request is let through.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	if config.Store == nil {
		config.Store = ratelimit.NewMemoryStore(10 * time.Minute)
	}

	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}

	if config.Name == "" {
		config.Name = "api"
	}

	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	limit := int64(config.Max)

	return func(c *fiber.Ctx) error {
		key := config.Name + ":" + config.KeyFunc(c)

		result, err := ratelimit.Check(c.UserContext(), config.Store, key, limit, config.Expiration)
		if err != nil {
			log.Warn().Err(err).Str("limiter", config.Name).Msg("Rate limit store unavailable, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if config.Metrics != nil {
				config.Metrics.RecordRateLimitHit(config.Name)
			}
			retryAfter := result.RetryAfter()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"message":     config.Message,
				"retry_after": retryAfter,
			})
		}

		return c.Next()
	}
}
