package pubsub

import (
	"context"
	"sync"
)

type localSubscriber struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// send delivers msg unless the subscriber is closed or its buffer is full.
func (s *localSubscriber) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *localSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LocalPubSub delivers messages within the process. It is the backend for
// single-instance deployments.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]*localSubscriber
}

// NewLocalPubSub creates an in-process pub/sub.
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{
		subscribers: make(map[string][]*localSubscriber),
	}
}

// Publish never blocks; a subscriber with a full buffer misses the message.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	subs := append([]*localSubscriber(nil), l.subscribers[channel]...)
	l.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.send(msg)
	}
	return nil
}

func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &localSubscriber{ch: make(chan Message, subscriberBuffer)}

	l.mu.Lock()
	l.subscribers[channel] = append(l.subscribers[channel], sub)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unsubscribe(channel, sub)
	}()

	return sub.ch, nil
}

func (l *LocalPubSub) unsubscribe(channel string, sub *localSubscriber) {
	l.mu.Lock()
	subs := l.subscribers[channel]
	for i, s := range subs {
		if s == sub {
			l.subscribers[channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(l.subscribers[channel]) == 0 {
		delete(l.subscribers, channel)
	}
	l.mu.Unlock()

	sub.close()
}

// SubscriberCount returns the number of live subscriptions to channel.
func (l *LocalPubSub) SubscriberCount(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subscribers[channel])
}

func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	var all []*localSubscriber
	for _, subs := range l.subscribers {
		all = append(all, subs...)
	}
	l.subscribers = make(map[string][]*localSubscriber)
	l.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
	return nil
}
