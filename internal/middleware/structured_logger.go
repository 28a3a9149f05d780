package middleware

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/sanitize"
)

// StructuredLoggerConfig holds configuration for structured logging
type StructuredLoggerConfig struct {
	// SkipPaths are paths that should not be logged (e.g., health checks)
	SkipPaths []string
	// SkipSuccessfulRequests skips logging successful requests (2xx status codes)
	SkipSuccessfulRequests bool
	// Logger is the zerolog logger to use (defaults to global log)
	Logger *zerolog.Logger
	// Sanitizer redacts query parameters; defaults to sanitize.New()
	Sanitizer *sanitize.Sanitizer
	// SlowRequestThreshold logs slow requests with WARN level (0 = disabled)
	SlowRequestThreshold time.Duration
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:            []string{"/health", "/metrics"},
		SlowRequestThreshold: time.Second,
	}
}

// redactQueryString redacts query parameters whose names are sensitive and
// scrubs secret-looking values from the rest.
func redactQueryString(s *sanitize.Sanitizer, queryString string) string {
	if queryString == "" {
		return ""
	}

	values, err := url.ParseQuery(queryString)
	if err != nil {
		// Unparseable; redact the whole thing
		return s.Redaction()
	}

	for key, vals := range values {
		if s.IsSensitiveKey(key) {
			values[key] = []string{s.Redaction()}
			continue
		}
		for i, v := range vals {
			vals[i] = s.RedactString(v)
		}
	}

	return values.Encode()
}

// StructuredLogger returns a middleware that logs requests with structured logging
func StructuredLogger(config ...StructuredLoggerConfig) fiber.Handler {
	cfg := DefaultStructuredLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = sanitize.New()
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet; report what it will send
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		if cfg.SkipSuccessfulRequests && err == nil && status >= 200 && status < 300 {
			return nil
		}

		var logEvent *zerolog.Event
		switch {
		case err != nil && status >= 500:
			logEvent = logger.Error().Err(err)
		case status >= 500:
			logEvent = logger.Error()
		case status >= 400:
			logEvent = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			logEvent = logger.Warn().Bool("slow_request", true)
		default:
			logEvent = logger.Info()
		}

		logEvent = logEvent.
			Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", path).
			Str("route", c.Route().Path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("request_bytes", len(c.Body())).
			Int("response_bytes", len(c.Response().Body())).
			Str("user_agent", c.Get(fiber.HeaderUserAgent))

		if queryString := string(c.Request().URI().QueryString()); queryString != "" {
			logEvent = logEvent.Str("query", redactQueryString(sanitizer, queryString))
		}

		if traceID := GetTraceID(c); traceID != "" {
			logEvent = logEvent.Str("trace_id", traceID)
		}

		if err != nil && status < 500 {
			logEvent = logEvent.Str("error", err.Error())
		}

		logEvent.Msg("HTTP request")

		return err
	}
}

// requestID returns the id set by the requestid middleware, falling back to
// the incoming header.
func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
