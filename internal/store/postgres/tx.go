package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// txKey is the context key under which an open transaction travels.
type txKey struct{}

// querier is the subset of pgx operations the stores need. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so store methods work identically inside and outside
// a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querierFrom returns the transaction carried by ctx, or the pool when no
// transaction is open.
func querierFrom(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Transactor implements domain.Transactor. Stores invoked with the context
// passed to the transaction function share one pgx transaction, so a failure
// in any step rolls back every write.
type Transactor struct {
	pool *pgxpool.Pool

	// Retries and Backoff bound the automatic retry of transactions aborted
	// by lock contention (serialization failure or deadlock).
	Retries int
	Backoff time.Duration

	// OnRetry, when set, is invoked once per retried attempt.
	OnRetry func()
}

// NewTransactor creates a Transactor with the given deadlock retry policy.
func NewTransactor(pool *pgxpool.Pool, retries int, backoff time.Duration) *Transactor {
	return &Transactor{pool: pool, Retries: retries, Backoff: backoff}
}

// InTx runs fn inside a single transaction, committing on nil return and
// rolling back otherwise. A transaction aborted by database lock contention
// is rolled back and retried up to Retries times with Backoff between
// attempts; exhausting the retries surfaces the last error.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = t.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableTxError(lastErr) || attempt >= t.Retries {
			return lastErr
		}
		if t.OnRetry != nil {
			t.OnRetry()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.Backoff * time.Duration(attempt+1)):
		}
	}
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// PostgreSQL error codes for retryable transaction aborts.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// isRetryableTxError reports whether err is a serialization failure or a
// deadlock, the two conditions where re-running the whole transaction is safe
// and likely to succeed.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}

// Compile-time interface check.
var _ domain.Transactor = (*Transactor)(nil)
