// Package dbtx declares the minimal database handle every store package
// programs against, so a store works identically whether it is handed a
// pool connection or a transaction.
package dbtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is satisfied by *pgxpool.Pool: it can open a real multi-statement
// transaction. pgx.Tx does not implement Beginner, so a caller already
// inside a transaction cannot nest one — callers needing atomicity across
// statements must be handed the pool itself, not a DBTX that might already
// be a Tx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
