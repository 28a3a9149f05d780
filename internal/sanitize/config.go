package sanitize

import "github.com/supabase/supabase-sub056/internal/config"

// ConfigOptions translates the sanitizer section of the configuration.
// Empty strings keep the built-in defaults.
func ConfigOptions(cfg config.SanitizerConfig) []Option {
	opts := []Option{WithMaxDepth(cfg.MaxDepth)}
	if cfg.Redaction != "" {
		opts = append(opts, WithRedaction(cfg.Redaction))
	}
	if cfg.TruncationNotice != "" {
		opts = append(opts, WithTruncationNotice(cfg.TruncationNotice))
	}
	if len(cfg.SensitiveKeys) > 0 {
		opts = append(opts, WithSensitiveKeys(cfg.SensitiveKeys...))
	}
	return opts
}
