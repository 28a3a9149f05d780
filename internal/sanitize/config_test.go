package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supabase/supabase-sub056/internal/config"
)

func TestConfigOptions(t *testing.T) {
	t.Run("applies every field", func(t *testing.T) {
		s := New(ConfigOptions(config.SanitizerConfig{
			MaxDepth:         1,
			Redaction:        "***",
			TruncationNotice: "...",
			SensitiveKeys:    []string{"tenant_id"},
		})...)

		assert.Equal(t, 1, s.MaxDepth())
		assert.Equal(t, "***", s.Redaction())
		assert.True(t, s.IsSensitiveKey("Tenant_ID"))
		assert.True(t, s.IsSensitiveKey("password"))

		out := s.SanitizeArrayOfObjects([]any{map[string]any{"a": map[string]any{"b": 1}}})
		assert.Equal(t, []any{map[string]any{"a": "..."}}, out)
	})

	t.Run("empty strings keep defaults", func(t *testing.T) {
		s := New(ConfigOptions(config.SanitizerConfig{MaxDepth: DefaultMaxDepth})...)
		assert.Equal(t, DefaultRedaction, s.Redaction())
		assert.Equal(t, DefaultMaxDepth, s.MaxDepth())
	})
}
