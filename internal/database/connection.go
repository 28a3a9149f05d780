// Package database reads table and column metadata from PostgreSQL so
// filter properties can be derived from a live schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/config"
	"github.com/supabase/supabase-sub056/internal/observability"
)

// Connection represents a read-only database connection pool
type Connection struct {
	pool    *pgxpool.Pool
	config  *config.DatabaseConfig
	metrics *observability.Metrics
}

// SetMetrics sets the metrics instance for recording database metrics
func (c *Connection) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// NewConnection creates a new connection pool and pings the server.
// Every session is opened read-only.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck
	poolConfig.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "studiokit"

	// Discard connections that died while idle
	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := conn.Ping(pingCtx); err != nil {
			log.Debug().Err(err).Msg("Discarding unhealthy connection from pool")
			return false
		}
		return true
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Str("user", cfg.User).
		Msg("Database connection established")

	return &Connection{pool: pool, config: &cfg}, nil
}

// Acquire checks out a dedicated session, for state such as advisory locks
// that must outlive a single query. The caller releases it.
func (c *Connection) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return c.pool.Acquire(ctx)
}

// Close closes the database connection pool
func (c *Connection) Close() {
	c.pool.Close()
	log.Info().Msg("Database connection closed")
}

// Query executes a catalog query and records its latency
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	op := operationFromContext(ctx)
	ctx, span := observability.StartDBSpan(ctx, op)
	start := time.Now()

	rows, err := c.pool.Query(ctx, sql, args...)

	if c.metrics != nil {
		c.metrics.RecordDBQuery(op, time.Since(start), err)
	}
	observability.EndSpan(span, err)

	if err != nil {
		log.Debug().Err(err).Str("operation", op).Msg("Catalog query failed")
	}
	return rows, err
}

// Health checks the health of the database connection
func (c *Connection) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// UpdatePoolStats copies pool statistics into the metrics gauges
func (c *Connection) UpdatePoolStats() {
	if c.metrics == nil {
		return
	}
	stat := c.pool.Stat()
	c.metrics.UpdateDBStats(stat.TotalConns(), stat.IdleConns(), stat.MaxConns())
}

type operationKey struct{}

// WithOperation labels queries issued with ctx for metrics and tracing
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "select"
}
