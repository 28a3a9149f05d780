package ratelimit

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStore implements Store on top of the Fiber in-memory storage, which
// expires keys on its own garbage collection interval.
type MemoryStore struct {
	storage *memory.Storage
	mu      sync.Mutex
}

// NewMemoryStore creates a new in-memory rate limit store.
// gcInterval specifies how often expired windows are swept.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	return &MemoryStore{
		storage: memory.New(memory.Config{GCInterval: gcInterval}),
	}
}

// Increment atomically increments the counter for a key.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	raw, err := s.storage.Get(key)
	if err != nil {
		return 0, time.Time{}, err
	}

	count, expiresAt, ok := decodeWindow(raw)
	if !ok || !now.Before(expiresAt) {
		count = 0
		expiresAt = now.Add(window)
	}
	count++

	if err := s.storage.Set(key, encodeWindow(count, expiresAt), time.Until(expiresAt)); err != nil {
		return 0, time.Time{}, err
	}
	return count, expiresAt, nil
}

// Reset resets the counter for a key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Delete(key)
}

// Close stops the garbage collection goroutine.
func (s *MemoryStore) Close() error {
	return s.storage.Close()
}

// encodeWindow packs a count and window end as two big-endian int64s
func encodeWindow(count int64, expiresAt time.Time) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(count))
	binary.BigEndian.PutUint64(buf[8:], uint64(expiresAt.UnixNano()))
	return buf
}

func decodeWindow(data []byte) (int64, time.Time, bool) {
	if len(data) != 16 {
		return 0, time.Time{}, false
	}
	count := int64(binary.BigEndian.Uint64(data[:8]))
	expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(data[8:])))
	return count, expiresAt, true
}
