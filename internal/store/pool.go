package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool, a pooled *pgxpool.Conn, and
// pgx.Tx, letting repositories run either against the pool directly or
// inside a caller-managed transaction (needed for Universe.CreateGame's
// serializable retry loop, spec.md §4.4/§5).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is a transaction handle: a Querier plus commit/rollback. pgx.Tx already
// satisfies this structurally (Exec/Query/QueryRow/Commit/Rollback), so the
// Postgres implementation needs no adapter type.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner begins a new serializable transaction, the one isolation level
// spec.md §5 requires for Universe.CreateGame's code-uniqueness retry loop
// (the code-uniqueness check and the insert must observe the same
// snapshot). Production code depends on this interface, never *pgxpool.Pool
// directly, so tests can supply FakeStore's no-op transaction instead.
type Beginner interface {
	BeginSerializable(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts *pgxpool.Pool to Beginner.
type PoolBeginner struct {
	Pool *pgxpool.Pool
}

func (b PoolBeginner) BeginSerializable(ctx context.Context) (Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// IsSerializationFailure reports whether err is a Postgres serialization
// failure (SQLSTATE 40001), the signal Universe.CreateGame's retry loop
// watches for per spec.md §5's "DeadlockDetected during retry" note.
func IsSerializationFailure(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.Code == "40001"
}

// NewPool opens a connection pool against connString. The teacher's main.go
// calls database.NewPool(ctx, connectionString) without that function being
// present in the retrieved snapshot; this is the idiomatic pgxpool
// implementation filling that gap.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// mirroring the teacher's pgErr.Code == "23505" check in CreateUser.
func IsUniqueViolation(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.Code == "23505"
}
