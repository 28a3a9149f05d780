package pubsub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/config"
)

// NewPubSub creates the backend named by cfg.Backend: "local" (default) or "redis".
func NewPubSub(ctx context.Context, cfg config.PubSubConfig) (PubSub, error) {
	switch cfg.Backend {
	case "local", "":
		log.Debug().Msg("Using local pub/sub (single instance mode)")
		return NewLocalPubSub(), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
		ps, err := NewRedisPubSub(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return ps, nil

	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
