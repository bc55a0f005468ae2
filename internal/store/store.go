// Package store reads per-task routing rows and writes usage rows in PostgreSQL.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRouteNotFound is returned when no enabled route row exists for a task type.
var ErrRouteNotFound = errors.New("route not found")

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
