package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// Enabled controls whether tracing is active
	Enabled bool

	// SkipPaths are paths that should not be traced (e.g., /health, /metrics)
	SkipPaths []string
}

// DefaultTracingConfig returns sensible defaults
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// TracingMiddleware returns a Fiber middleware that creates a server span per
// request. The span context is installed as the request's user context so
// handlers can start child spans from c.UserContext().
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("studiokit-http")

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipPaths[path] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Method(), path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPScheme(c.Protocol()),
				semconv.NetHostName(c.Hostname()),
				attribute.String("http.target", path),
				attribute.String("http.request_id", requestID(c)),
				attribute.String("net.peer.ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// Route is resolved once the handler chain has run
		if route := c.Route().Path; route != "" {
			span.SetName(fmt.Sprintf("%s %s", c.Method(), route))
			span.SetAttributes(semconv.HTTPRoute(route))
		}

		statusCode := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPStatusCode(statusCode),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)

		if statusCode >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// GetTraceID returns the trace ID of the request span, if any
func GetTraceID(c *fiber.Ctx) string {
	sc := trace.SpanContextFromContext(c.UserContext())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SetSpanAttributes sets attributes on the request span
func SetSpanAttributes(c *fiber.Ctx, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(c.UserContext()); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
