package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
const (
	// ErrCodeUndefinedTable is returned when a relation does not exist
	ErrCodeUndefinedTable = "42P01"
	// ErrCodeInsufficientPrivilege is returned when the role may not read a catalog
	ErrCodeInsufficientPrivilege = "42501"
	// connectionExceptionClass prefixes all SQLSTATE class 08 codes
	connectionExceptionClass = "08"
)

var (
	// ErrTableNotFound is returned when a schema lookup finds no such table
	ErrTableNotFound = errors.New("table not found")
	// ErrDisabled is returned by lookups when no database is configured
	ErrDisabled = errors.New("database lookups are disabled")
)

// IsUndefinedTable checks if an error is an undefined table error
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == ErrCodeUndefinedTable
	}
	return false
}

// IsInsufficientPrivilege checks if an error is a permission error
func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == ErrCodeInsufficientPrivilege
	}
	return false
}

// IsConnectionError reports whether err means the server could not be
// reached, as opposed to a query that ran and failed.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, connectionExceptionClass)
	}
	return pgconn.SafeToRetry(err)
}
