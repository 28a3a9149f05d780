package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supabase/supabase-sub056/internal/sanitize"
)

func TestRedactQueryString(t *testing.T) {
	s := sanitize.New()

	tests := []struct {
		name     string
		query    string
		redacted []string
		kept     map[string]string
	}{
		{
			name:     "sensitive key",
			query:    "token=abc&table=users",
			redacted: []string{"token"},
			kept:     map[string]string{"table": "users"},
		},
		{
			name:     "case insensitive key",
			query:    "API_KEY=xyz&limit=10",
			redacted: []string{"API_KEY"},
			kept:     map[string]string{"limit": "10"},
		},
		{
			name:     "secret-looking value under harmless key",
			query:    "q=Bearer%20abc.def.ghi",
			redacted: []string{"q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(redactQueryString(s, tt.query))
			require.NoError(t, err)
			for _, key := range tt.redacted {
				assert.Equal(t, sanitize.DefaultRedaction, values.Get(key), key)
			}
			for key, want := range tt.kept {
				assert.Equal(t, want, values.Get(key), key)
			}
		})
	}

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", redactQueryString(s, ""))
	})

	t.Run("unparseable", func(t *testing.T) {
		assert.Equal(t, sanitize.DefaultRedaction, redactQueryString(s, "%zz"))
	})
}

// =============================================================================
// StructuredLogger Middleware Tests
// =============================================================================

func newLoggedApp(buf *bytes.Buffer, cfg StructuredLoggerConfig) *fiber.App {
	logger := zerolog.New(buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(StructuredLogger(cfg))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/bad", func(c *fiber.Ctx) error { return c.Status(400).SendString("bad") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	return app
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestStructuredLogger_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, buf.String())
}

func TestStructuredLogger_Levels(t *testing.T) {
	tests := []struct {
		path   string
		level  string
		status float64
	}{
		{"/ok", "info", 200},
		{"/bad", "warn", 400},
		{"/boom", "error", 500},
		{"/teapot", "warn", 418},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

			_, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)

			line := lastLine(t, &buf)
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, tt.status, line["status"])
			assert.Equal(t, "HTTP request", line["message"])
		})
	}
}

func TestStructuredLogger_SkipSuccessfulRequests(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, StructuredLoggerConfig{SkipSuccessfulRequests: true})

	_, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/bad")
}

func TestStructuredLogger_RequestIDAndQuery(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

	req := httptest.NewRequest("GET", "/ok?password=hunter2&schema=public", nil)
	req.Header.Set("X-Request-ID", "req-42")
	_, err := app.Test(req)
	require.NoError(t, err)

	line := lastLine(t, &buf)
	assert.Equal(t, "req-42", line["request_id"])
	assert.NotContains(t, line["query"], "hunter2")
	assert.Contains(t, line["query"], "schema=public")
}
