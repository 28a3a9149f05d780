package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/config"
)

// NewStore creates a rate limit store for the configured backend:
//   - "local": in-memory store (default)
//   - "redis": Redis-compatible store shared by all instances
func NewStore(ctx context.Context, cfg config.RateLimitConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		log.Info().Msg("Using in-memory rate limit store (single instance mode)")
		return NewMemoryStore(10 * time.Minute), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		log.Info().Msg("Using Redis-compatible rate limit store")
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
