// Package store defines the narrow interface services use to talk to
// Postgres, plus a tracing decorator around it. Services never depend on
// *pgxpool.Pool directly, so the traced wrapper can be swapped in without
// touching any call site.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the services use. *pgxpool.Pool satisfies
// it as-is.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}
