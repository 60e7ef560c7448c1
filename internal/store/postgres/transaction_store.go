package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const txSelectCols = `id, tenant_id, account_id, currency, tx_type,
	amount, fee, balance_after, available_after, frozen_after,
	source_type, source_id, status, remark, created_at`

func scanTxRow(row pgx.Row) (domain.Transaction, error) {
	var t domain.Transaction
	var txType, status string

	err := row.Scan(
		&t.ID, &t.TenantID, &t.AccountID, &t.Currency, &txType,
		&t.Amount, &t.Fee, &t.BalanceAfter, &t.AvailableAfter, &t.FrozenAfter,
		&t.SourceType, &t.SourceID, &status, &t.Remark, &t.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	return t, nil
}

func scanTxRows(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTxRow(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Append writes one journal row. The (source_type, source_id) unique
// constraint makes settlement idempotent: a duplicate source yields
// domain.ErrDuplicateSource and no write.
func (s *TransactionStore) Append(ctx context.Context, t domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, tenant_id, account_id, currency, tx_type,
			amount, fee, balance_after, available_after, frozen_after,
			source_type, source_id, status, remark
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		t.ID, t.TenantID, t.AccountID, t.Currency, string(t.Type),
		t.Amount, t.Fee, t.BalanceAfter, t.AvailableAfter, t.FrozenAfter,
		t.SourceType, t.SourceID, string(t.Status), t.Remark,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSource
		}
		return fmt.Errorf("postgres: append transaction %s: %w", t.ID, err)
	}
	return nil
}

// GetBySource returns the journal row written for the given source reference.
func (s *TransactionStore) GetBySource(ctx context.Context, sourceType, sourceID string) (domain.Transaction, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE source_type = $1 AND source_id = $2`,
		sourceType, sourceID)

	t, err := scanTxRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction by source: %w", err)
	}
	return t, nil
}

// ListByAccount returns journal rows for the given account, newest first.
func (s *TransactionStore) ListByAccount(ctx context.Context, tenantID, accountID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM transactions WHERE tenant_id = $1 AND account_id = $2`
	args := []any{tenantID, accountID}
	argIdx := 3

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := querierFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	txs, err := scanTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txs, nil
}

// ListBefore returns journal rows created strictly before the cutoff.
func (s *TransactionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Transaction, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	txs, err := scanTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txs, nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
