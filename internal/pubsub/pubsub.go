// Package pubsub carries schema cache invalidations between studiokit
// instances that share a database.
package pubsub

import (
	"context"
)

// Message is a payload received on a channel
type Message struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

// PubSub is implemented by the local and redis backends. Implementations
// are safe for concurrent use.
type PubSub interface {
	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of messages published to channel. It is
	// closed when ctx is cancelled or the PubSub is closed.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	// Close releases all resources and closes all subscriptions.
	Close() error
}

// SchemaChannel is the channel schema refreshes are announced on
const SchemaChannel = "studiokit:schema"

// subscriberBuffer is the per-subscriber queue length; messages beyond it are dropped
const subscriberBuffer = 64
