package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier runs read-only catalog queries. *Connection implements it and
// tests substitute an in-memory fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*Connection)(nil)
