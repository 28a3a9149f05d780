package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/observability"
)

// TableSource loads table metadata. *SchemaInspector implements it.
type TableSource interface {
	GetTables(ctx context.Context, schemas ...string) ([]TableInfo, error)
}

// SchemaCache provides a thread-safe cache for table metadata with
// TTL-based expiration, manual invalidation and optional scheduled refresh.
type SchemaCache struct {
	mu          sync.RWMutex
	tables      map[string]*TableInfo // key: "schema.table"
	allTables   []TableInfo
	ttl         time.Duration
	lastRefresh time.Time
	source      TableSource
	stale       bool // Force refresh on next access
	schemas     []string
	metrics     *observability.Metrics

	// Serializes refreshes so concurrent misses issue one load
	refreshMu sync.Mutex

	cron *cron.Cron
}

// NewSchemaCache creates a new schema cache over the given schemas
func NewSchemaCache(source TableSource, schemas []string, ttl time.Duration) *SchemaCache {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	return &SchemaCache{
		tables:  make(map[string]*TableInfo),
		ttl:     ttl,
		source:  source,
		stale:   true,
		schemas: schemas,
	}
}

// SetMetrics sets the metrics instance for recording refreshes
func (c *SchemaCache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// makeKey creates a cache key from schema and table name
func makeKey(schema, table string) string {
	return fmt.Sprintf("%s.%s", schema, table)
}

func (c *SchemaCache) needsRefresh() bool {
	return c.stale || time.Since(c.lastRefresh) > c.ttl
}

// GetTable retrieves table info from the cache, refreshing if necessary.
// Returns (TableInfo, exists, error)
func (c *SchemaCache) GetTable(ctx context.Context, schema, table string) (*TableInfo, bool, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.tables[makeKey(schema, table)]
	return info, ok, nil
}

// GetAllTables returns all cached tables, refreshing if necessary
func (c *SchemaCache) GetAllTables(ctx context.Context) ([]TableInfo, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]TableInfo, len(c.allTables))
	copy(result, c.allTables)
	return result, nil
}

func (c *SchemaCache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.needsRefresh()
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	c.mu.RLock()
	fresh = !c.needsRefresh()
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.refresh(ctx)
}

// Invalidate marks the cache as stale so the next access reloads it
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	log.Debug().Msg("Schema cache invalidated")
}

// Refresh forces an immediate cache refresh
func (c *SchemaCache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

func (c *SchemaCache) refresh(ctx context.Context) error {
	// Fetch without holding the read lock
	tables, err := c.source.GetTables(ctx, c.schemas...)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordSchemaRefresh(0, err)
		}
		return fmt.Errorf("failed to load tables: %w", err)
	}

	newTables := make(map[string]*TableInfo, len(tables))
	for i := range tables {
		table := tables[i]
		newTables[makeKey(table.Schema, table.Name)] = &table
	}

	c.mu.Lock()
	c.tables = newTables
	c.allTables = tables
	c.lastRefresh = time.Now()
	c.stale = false
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordSchemaRefresh(len(tables), nil)
	}

	log.Debug().
		Int("tables", len(tables)).
		Strs("schemas", c.schemas).
		Msg("Schema cache refreshed")

	return nil
}

// TableCount returns the number of cached tables
func (c *SchemaCache) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// ScheduleOption adjusts a scheduled refresh
type ScheduleOption func(*schedule)

type schedule struct {
	onlyWhen     func() bool
	afterRefresh func(ctx context.Context, tables int)
}

// OnlyWhen skips a scheduled run unless cond returns true, e.g. when this
// instance is not the leader.
func OnlyWhen(cond func() bool) ScheduleOption {
	return func(s *schedule) { s.onlyWhen = cond }
}

// AfterRefresh calls fn after each successful scheduled run.
func AfterRefresh(fn func(ctx context.Context, tables int)) ScheduleOption {
	return func(s *schedule) { s.afterRefresh = fn }
}

// StartScheduledRefresh reloads the cache on the given cron schedule. An
// empty spec does nothing. Standard five-field specs and descriptors such as
// "@every 5m" are accepted.
func (c *SchemaCache) StartScheduledRefresh(spec string, opts ...ScheduleOption) error {
	if spec == "" {
		return nil
	}

	var sc schedule
	for _, opt := range opts {
		opt(&sc)
	}

	sched := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	_, err := sched.AddFunc(spec, func() {
		if sc.onlyWhen != nil && !sc.onlyWhen() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Scheduled schema refresh failed")
			return
		}
		if sc.afterRefresh != nil {
			sc.afterRefresh(ctx, c.TableCount())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	c.mu.Lock()
	c.cron = sched
	c.mu.Unlock()

	sched.Start()
	log.Info().Str("schedule", spec).Msg("Schema cache refresh scheduled")
	return nil
}

// Close stops the refresh schedule and waits for a running refresh
func (c *SchemaCache) Close() {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
	}
}
