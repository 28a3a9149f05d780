package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// Content Security Policy
	ContentSecurityPolicy string
	// X-Frame-Options
	XFrameOptions string
	// X-Content-Type-Options
	XContentTypeOptions string
	// Strict-Transport-Security (HSTS), only sent over HTTPS
	StrictTransportSecurity string
	// Referrer-Policy
	ReferrerPolicy string
}

// DefaultSecurityHeadersConfig returns headers for a JSON-only API
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy:   "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:           "DENY",
		XContentTypeOptions:     "nosniff",
		StrictTransportSecurity: "max-age=31536000; includeSubDomains",
		ReferrerPolicy:          "no-referrer",
	}
}

// SecurityHeaders returns a middleware that adds security headers to all responses
func SecurityHeaders(config ...SecurityHeadersConfig) fiber.Handler {
	cfg := DefaultSecurityHeadersConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	headers := [][2]string{
		{fiber.HeaderContentSecurityPolicy, cfg.ContentSecurityPolicy},
		{fiber.HeaderXFrameOptions, cfg.XFrameOptions},
		{fiber.HeaderXContentTypeOptions, cfg.XContentTypeOptions},
		{fiber.HeaderReferrerPolicy, cfg.ReferrerPolicy},
	}

	return func(c *fiber.Ctx) error {
		for _, h := range headers {
			if h[1] != "" {
				c.Set(h[0], h[1])
			}
		}

		if cfg.StrictTransportSecurity != "" && c.Protocol() == "https" {
			c.Set(fiber.HeaderStrictTransportSecurity, cfg.StrictTransportSecurity)
		}

		return c.Next()
	}
}
