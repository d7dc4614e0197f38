// Package db provides the shared PostgreSQL/PostGIS plumbing: the pool
// interface, connection setup, identifier handling, and schema migrations.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of *pgxpool.Pool used by this module. It is satisfied
// by pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Connect opens a pgx connection pool and verifies it with a ping,
// retrying transient failures according to rc.
func Connect(ctx context.Context, url string, rc RetryConfig) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, eris.New("db: database url is required")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "db: open pool")
	}

	if err := retry(ctx, rc, "ping", pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping")
	}

	return pool, nil
}
