package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SchemaEvent announces that an instance reloaded its schema cache
type SchemaEvent struct {
	Origin string    `json:"origin"`
	Tables int       `json:"tables"`
	At     time.Time `json:"at"`
}

// Invalidator is a cache that can be marked stale
type Invalidator interface {
	Invalidate()
}

// SchemaNotifier announces local schema refreshes and invalidates the local
// cache when a peer announces one. Events from the same notifier are ignored.
type SchemaNotifier struct {
	ps     PubSub
	origin string
}

// NewSchemaNotifier creates a notifier with a random instance id.
func NewSchemaNotifier(ps PubSub) *SchemaNotifier {
	return &SchemaNotifier{ps: ps, origin: uuid.NewString()}
}

// Origin identifies this instance in published events.
func (n *SchemaNotifier) Origin() string {
	return n.origin
}

// NotifyRefresh publishes a SchemaEvent for a refresh that loaded tables tables.
func (n *SchemaNotifier) NotifyRefresh(ctx context.Context, tables int) error {
	payload, err := json.Marshal(SchemaEvent{Origin: n.origin, Tables: tables, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.ps.Publish(ctx, SchemaChannel, payload); err != nil {
		return fmt.Errorf("failed to publish schema event: %w", err)
	}
	return nil
}

// Listen invalidates cache for every peer event until ctx is cancelled. The
// returned channel is closed once listening has stopped.
func (n *SchemaNotifier) Listen(ctx context.Context, cache Invalidator) (<-chan struct{}, error) {
	msgs, err := n.ps.Subscribe(ctx, SchemaChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to schema events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			var event SchemaEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Warn().Err(err).Msg("Ignoring malformed schema event")
				continue
			}
			if event.Origin == n.origin {
				continue
			}
			log.Info().Str("origin", event.Origin).Int("tables", event.Tables).Msg("Schema refreshed by peer, invalidating cache")
			cache.Invalidate()
		}
	}()
	return done, nil
}
