// Package sanitize produces redacted deep copies of arbitrary values before
// they are logged or shipped to telemetry sinks.
package sanitize

import (
	"strings"
)

const (
	DefaultMaxDepth         = 3
	DefaultRedaction        = "[REDACTED]"
	DefaultTruncationNotice = "[REDACTED: max depth reached]"

	circularSentinel = "[Circular]"
	functionSentinel = "[Function]"
)

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithMaxDepth limits how many container levels are copied. Zero truncates
// every top-level container.
func WithMaxDepth(depth int) Option {
	return func(s *Sanitizer) {
		if depth >= 0 {
			s.maxDepth = depth
		}
	}
}

// WithRedaction sets the replacement for sensitive values.
func WithRedaction(redaction string) Option {
	return func(s *Sanitizer) {
		s.redaction = redaction
	}
}

// WithTruncationNotice sets the replacement for containers beyond the depth limit.
func WithTruncationNotice(notice string) Option {
	return func(s *Sanitizer) {
		s.truncationNotice = notice
	}
}

// WithSensitiveKeys adds key names whose values are always redacted.
func WithSensitiveKeys(keys ...string) Option {
	return func(s *Sanitizer) {
		s.extraKeys = append(s.extraKeys, keys...)
	}
}

// Sanitizer is immutable once built and safe for concurrent use.
type Sanitizer struct {
	maxDepth         int
	redaction        string
	truncationNotice string
	extraKeys        []string
	sensitive        map[string]struct{}
}

// New builds a Sanitizer with the defaults overridden by opts.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		maxDepth:         DefaultMaxDepth,
		redaction:        DefaultRedaction,
		truncationNotice: DefaultTruncationNotice,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sensitive = buildKeySet(s.extraKeys)
	return s
}

// MaxDepth returns the configured depth limit.
func (s *Sanitizer) MaxDepth() int { return s.maxDepth }

// Redaction returns the configured redaction string.
func (s *Sanitizer) Redaction() string { return s.redaction }

// IsSensitiveKey reports whether values under key are always redacted.
func (s *Sanitizer) IsSensitiveKey(key string) bool {
	_, ok := s.sensitive[strings.ToLower(key)]
	return ok
}

// Stats counts what a sanitize call replaced.
type Stats struct {
	Redactions  int `json:"redactions"`
	Truncations int `json:"truncations"`
	Circular    int `json:"circular"`
}

// SanitizeArrayOfObjects returns a redacted deep copy of input. Cycles are
// cut with "[Circular]"; input is never modified.
func (s *Sanitizer) SanitizeArrayOfObjects(input []any) []any {
	out, _ := s.SanitizeWithStats(input)
	return out
}

// SanitizeWithStats is SanitizeArrayOfObjects that also reports what was replaced.
func (s *Sanitizer) SanitizeWithStats(input []any) ([]any, Stats) {
	w := newWalker(s)
	out := make([]any, len(input))
	for i, v := range input {
		out[i] = w.value(v, 0)
	}
	return out, w.stats
}

// SanitizeValue sanitizes a single value as if it were a top-level entry.
func (s *Sanitizer) SanitizeValue(v any) any {
	return newWalker(s).value(v, 0)
}

// RedactString applies the secret patterns to a single string.
func (s *Sanitizer) RedactString(str string) string {
	return RedactString(str, s.redaction)
}

// SanitizeArrayOfObjects sanitizes input with a Sanitizer built from opts.
func SanitizeArrayOfObjects(input []any, opts ...Option) []any {
	return New(opts...).SanitizeArrayOfObjects(input)
}
