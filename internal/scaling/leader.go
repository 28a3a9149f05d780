// Package scaling coordinates work that only one of several studiokit
// instances should do.
package scaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SchemaRefreshLockID is the advisory lock held by the instance that runs
// the scheduled schema refresh
const SchemaRefreshLockID int64 = 0x53746B74_00000001 // "Stkt" + 1

// Locker takes and releases a cluster-wide lock without blocking
type Locker interface {
	TryLock(ctx context.Context, id int64) (bool, error)
	Unlock(ctx context.Context, id int64) error
}

// SessionSource hands out dedicated database sessions
type SessionSource interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
}

// AdvisoryLocker implements Locker with PostgreSQL session advisory locks.
// The lock lives as long as the session, so one session is kept checked out
// while the lock is held.
type AdvisoryLocker struct {
	source SessionSource

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisoryLocker creates a locker drawing sessions from source.
func NewAdvisoryLocker(source SessionSource) *AdvisoryLocker {
	return &AdvisoryLocker{source: source}
}

// TryLock acquires the lock, or confirms it is still held by this locker.
func (l *AdvisoryLocker) TryLock(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		// Holding: the lock is ours while the session is alive
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.source.Acquire(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Release()
		return false, err
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Unlock releases the lock and returns the session to the pool.
func (l *AdvisoryLocker) Unlock(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Release()

	var released bool
	if err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", id).Scan(&released); err != nil {
		return err
	}
	if !released {
		return errors.New("advisory lock was not held")
	}
	return nil
}

// LeaderElector keeps trying to take a lock and reports whether this
// instance holds it.
type LeaderElector struct {
	locker        Locker
	lockID        int64
	lockName      string
	checkInterval time.Duration

	mu       sync.RWMutex
	isLeader bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderElector creates an elector for lockID. lockName is used in logs.
func NewLeaderElector(locker Locker, lockID int64, lockName string) *LeaderElector {
	return &LeaderElector{
		locker:        locker,
		lockID:        lockID,
		lockName:      lockName,
		checkInterval: 5 * time.Second,
	}
}

// SetCheckInterval changes how often the lock is retried. Call before Start.
func (le *LeaderElector) SetCheckInterval(d time.Duration) {
	if d > 0 {
		le.checkInterval = d
	}
}

// Start runs the election until Stop. onBecomeLeader and onLoseLeadership
// may be nil.
func (le *LeaderElector) Start(onBecomeLeader, onLoseLeadership func()) {
	ctx, cancel := context.WithCancel(context.Background())
	le.cancel = cancel
	le.done = make(chan struct{})

	log.Info().
		Str("lock", le.lockName).
		Int64("lock_id", le.lockID).
		Msg("Starting leader election")

	go le.electionLoop(ctx, onBecomeLeader, onLoseLeadership)
}

// Stop ends the election and gives up the lock if held.
func (le *LeaderElector) Stop() {
	if le.cancel == nil {
		return
	}
	le.cancel()
	<-le.done

	if le.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := le.locker.Unlock(ctx, le.lockID); err != nil {
			log.Warn().Err(err).Str("lock", le.lockName).Msg("Failed to release leader lock")
		}
		le.setLeader(false)
	}
	log.Info().Str("lock", le.lockName).Msg("Stopped leader election")
}

// IsLeader reports whether this instance currently holds the lock.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) setLeader(v bool) bool {
	le.mu.Lock()
	defer le.mu.Unlock()
	was := le.isLeader
	le.isLeader = v
	return was
}

func (le *LeaderElector) electionLoop(ctx context.Context, onBecomeLeader, onLoseLeadership func()) {
	defer close(le.done)

	ticker := time.NewTicker(le.checkInterval)
	defer ticker.Stop()

	le.tryAcquire(ctx, onBecomeLeader, onLoseLeadership)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			le.tryAcquire(ctx, onBecomeLeader, onLoseLeadership)
		}
	}
}

func (le *LeaderElector) tryAcquire(ctx context.Context, onBecomeLeader, onLoseLeadership func()) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	acquired, err := le.locker.TryLock(checkCtx, le.lockID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to try leader lock")
		acquired = false
	}

	wasLeader := le.setLeader(acquired)
	switch {
	case acquired && !wasLeader:
		log.Info().Str("lock", le.lockName).Msg("Acquired leader lock, this instance is now the leader")
		if onBecomeLeader != nil {
			onBecomeLeader()
		}
	case !acquired && wasLeader:
		log.Warn().Str("lock", le.lockName).Msg("Lost leader lock")
		if onLoseLeadership != nil {
			onLoseLeadership()
		}
	}
}
