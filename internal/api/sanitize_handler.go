package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/sanitize"
)

// maxRequestDepth bounds the depth a caller may ask for
const maxRequestDepth = 32

// SanitizeOptions override the configured sanitizer for one request
type SanitizeOptions struct {
	MaxDepth         *int     `json:"max_depth"`
	Redaction        *string  `json:"redaction"`
	TruncationNotice *string  `json:"truncation_notice"`
	SensitiveKeys    []string `json:"sensitive_keys"`
}

// SanitizeRequest is an array of values to redact
type SanitizeRequest struct {
	Data    []any            `json:"data"`
	Options *SanitizeOptions `json:"options"`
}

// SanitizeResponse is the redacted copy and what was replaced
type SanitizeResponse struct {
	Data  []any          `json:"data"`
	Stats sanitize.Stats `json:"stats"`
}

// sanitizerFor returns the configured sanitizer, or one with the request's
// overrides applied on top of the configuration.
func (s *Server) sanitizerFor(o *SanitizeOptions) (*sanitize.Sanitizer, error) {
	if o == nil {
		return s.sanitizer, nil
	}

	opts := append([]sanitize.Option{}, s.sanitizerOpts...)
	if o.MaxDepth != nil {
		if *o.MaxDepth < 0 || *o.MaxDepth > maxRequestDepth {
			return nil, fmt.Errorf("max_depth must be between 0 and %d", maxRequestDepth)
		}
		opts = append(opts, sanitize.WithMaxDepth(*o.MaxDepth))
	}
	if o.Redaction != nil {
		opts = append(opts, sanitize.WithRedaction(*o.Redaction))
	}
	if o.TruncationNotice != nil {
		opts = append(opts, sanitize.WithTruncationNotice(*o.TruncationNotice))
	}
	if len(o.SensitiveKeys) > 0 {
		opts = append(opts, sanitize.WithSensitiveKeys(o.SensitiveKeys...))
	}
	return sanitize.New(opts...), nil
}

// decodeKeepingNumbers decodes a single JSON document with numbers kept as
// json.Number, so integers past 2^53 survive the round trip.
func decodeKeepingNumbers(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}

func (s *Server) handleSanitize(c *fiber.Ctx) error {
	var req SanitizeRequest
	if err := decodeKeepingNumbers(c.Body(), &req); err != nil {
		return sendBadBody(c, err)
	}
	if req.Data == nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "data must be an array", "MISSING_DATA")
	}

	sanitizer, err := s.sanitizerFor(req.Options)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid sanitize options", "INVALID_OPTIONS", err.Error(), "", nil)
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "sanitize", "array_of_objects")
	out, stats := sanitizer.SanitizeWithStats(req.Data)
	span.SetAttributes(
		attribute.Int("sanitize.items", len(req.Data)),
		attribute.Int("sanitize.max_depth", sanitizer.MaxDepth()),
		attribute.Int("sanitize.redactions", stats.Redactions),
	)
	observability.EndSpan(span, nil)

	s.metrics.RecordSanitize(stats.Redactions, stats.Truncations, stats.Circular)
	return c.JSON(SanitizeResponse{Data: out, Stats: stats})
}
