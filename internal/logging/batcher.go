package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchWriteFunc is the function called to write a batch of entries.
type BatchWriteFunc func(ctx context.Context, entries []*Entry) error

// Batcher buffers entries and writes them in batches. It flushes when the
// batch is full, when the flush interval expires, on Flush and on Close.
type Batcher struct {
	entries       chan *Entry
	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration
	writeFunc     BatchWriteFunc
	wg            sync.WaitGroup
	done          chan struct{}
	flushReq      chan chan error
	mu            sync.Mutex
	closed        bool

	droppedCount    atomic.Int64
	writeErrors     atomic.Int64
	lastDroppedWarn time.Time
	droppedWarnMu   sync.Mutex
}

// NewBatcher creates a new entry batcher. Non-positive sizes and intervals
// fall back to 100 entries, one second and a 10000 entry buffer.
func NewBatcher(batchSize int, flushInterval time.Duration, bufferSize int, writeFunc BatchWriteFunc) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	b := &Batcher{
		entries:       make(chan *Entry, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		writeTimeout:  30 * time.Second,
		writeFunc:     writeFunc,
		done:          make(chan struct{}),
		flushReq:      make(chan chan error),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

func (b *Batcher) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Add queues an entry. When the buffer is full the entry is dropped and a
// warning is logged at most every ten seconds.
func (b *Batcher) Add(entry *Entry) {
	if entry == nil || b.isClosed() {
		return
	}

	select {
	case b.entries <- entry:
	default:
		dropped := b.droppedCount.Add(1)

		b.droppedWarnMu.Lock()
		if time.Since(b.lastDroppedWarn) > 10*time.Second {
			b.lastDroppedWarn = time.Now()
			b.droppedWarnMu.Unlock()
			log.Warn().
				Int64("dropped_count", dropped).
				Int("buffer_size", cap(b.entries)).
				Msg("Telemetry buffer full, log entries are being dropped")
			return
		}
		b.droppedWarnMu.Unlock()
	}
}

// Flush writes everything buffered so far and returns the write error.
func (b *Batcher) Flush(ctx context.Context) error {
	if b.isClosed() {
		return nil
	}

	resultCh := make(chan error, 1)
	select {
	case b.flushReq <- resultCh:
		select {
		case err := <-resultCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the batcher after writing any remaining entries. It returns
// ctx.Err() if the final write does not finish in time.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)

	stopped := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	var batch []*Entry

	drain := func() {
		for {
			select {
			case entry := <-b.entries:
				batch = append(batch, entry)
			default:
				return
			}
		}
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
		err := b.writeFunc(ctx, batch)
		cancel()
		if err != nil {
			b.writeErrors.Add(1)
		}
		batch = nil
		return err
	}

	for {
		select {
		case <-b.done:
			drain()
			_ = flush()
			return

		case resultCh := <-b.flushReq:
			drain()
			resultCh <- flush()

		case entry := <-b.entries:
			batch = append(batch, entry)
			if len(batch) >= b.batchSize {
				_ = flush()
			}

		case <-ticker.C:
			_ = flush()
		}
	}
}

// BatcherStats describes buffer usage and losses.
type BatcherStats struct {
	BufferSize    int     `json:"buffer_size"`
	BufferUsed    int     `json:"buffer_used"`
	BufferPercent float64 `json:"buffer_percent"`
	DroppedCount  int64   `json:"dropped_count"`
	WriteErrors   int64   `json:"write_errors"`
}

// Stats returns current batcher statistics.
func (b *Batcher) Stats() BatcherStats {
	used := len(b.entries)
	size := cap(b.entries)
	return BatcherStats{
		BufferSize:    size,
		BufferUsed:    used,
		BufferPercent: float64(used) / float64(size) * 100,
		DroppedCount:  b.droppedCount.Load(),
		WriteErrors:   b.writeErrors.Load(),
	}
}
