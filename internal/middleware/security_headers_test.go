package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		app := fiber.New()
		app.Use(SecurityHeaders())
		app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)

		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
		assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'none'")
		// Plain HTTP never gets HSTS
		assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
	})

	t.Run("empty values are not sent", func(t *testing.T) {
		app := fiber.New()
		app.Use(SecurityHeaders(SecurityHeadersConfig{XFrameOptions: "SAMEORIGIN"}))
		app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)

		assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
		assert.Empty(t, resp.Header.Get("Content-Security-Policy"))
	})
}
