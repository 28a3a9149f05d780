package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPubSub relays messages through Redis (or a compatible server such as
// Dragonfly or Valkey) so that every instance receives them.
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisPubSub connects to url, in the form redis://[password@]host:port[/db].
func NewRedisPubSub(ctx context.Context, url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis for pub/sub")

	runCtx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{
		client: client,
		ctx:    runCtx,
		cancel: cancel,
	}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := r.client.Subscribe(r.ctx, channel)

	// Wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	ch := make(chan Message, subscriberBuffer)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(ch)
		defer func() { _ = sub.Close() }()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					log.Warn().Str("channel", channel).Msg("Pub/sub subscriber full, dropping message")
				}
			}
		}
	}()

	return ch, nil
}

func (r *RedisPubSub) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}
