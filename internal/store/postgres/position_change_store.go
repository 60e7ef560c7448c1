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

// PositionChangeStore implements domain.PositionChangeStore using PostgreSQL.
type PositionChangeStore struct {
	pool *pgxpool.Pool
}

// NewPositionChangeStore creates a new PositionChangeStore.
func NewPositionChangeStore(pool *pgxpool.Pool) *PositionChangeStore {
	return &PositionChangeStore{pool: pool}
}

const changeSelectCols = `id, position_id, tenant_id, account_id, change_type,
	quantity, price, quantity_after, available_after, frozen_after, avg_cost_after,
	realized_pnl, source_type, source_id, created_at`

func scanChangeRow(row pgx.Row) (domain.PositionChange, error) {
	var c domain.PositionChange
	var changeType string

	err := row.Scan(
		&c.ID, &c.PositionID, &c.TenantID, &c.AccountID, &changeType,
		&c.Quantity, &c.Price, &c.QuantityAfter, &c.AvailableAfter, &c.FrozenAfter, &c.AvgCostAfter,
		&c.RealizedPnL, &c.SourceType, &c.SourceID, &c.CreatedAt,
	)
	if err != nil {
		return domain.PositionChange{}, err
	}
	c.Type = domain.ChangeType(changeType)
	return c, nil
}

func scanChangeRows(rows pgx.Rows) ([]domain.PositionChange, error) {
	var changes []domain.PositionChange
	for rows.Next() {
		c, err := scanChangeRow(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Append writes one journal row. Rows are never updated afterwards.
func (s *PositionChangeStore) Append(ctx context.Context, c domain.PositionChange) error {
	const query = `
		INSERT INTO position_changes (
			id, position_id, tenant_id, account_id, change_type,
			quantity, price, quantity_after, available_after, frozen_after, avg_cost_after,
			realized_pnl, source_type, source_id
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14
		)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		c.ID, c.PositionID, c.TenantID, c.AccountID, string(c.Type),
		c.Quantity, c.Price, c.QuantityAfter, c.AvailableAfter, c.FrozenAfter, c.AvgCostAfter,
		c.RealizedPnL, c.SourceType, c.SourceID,
	)
	if err != nil {
		return fmt.Errorf("postgres: append position change %s: %w", c.ID, err)
	}
	return nil
}

// GetBySource returns the journal row written for the given source reference.
func (s *PositionChangeStore) GetBySource(ctx context.Context, sourceType, sourceID string) (domain.PositionChange, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+changeSelectCols+` FROM position_changes
		 WHERE source_type = $1 AND source_id = $2
		 ORDER BY created_at LIMIT 1`,
		sourceType, sourceID)

	c, err := scanChangeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PositionChange{}, domain.ErrNotFound
		}
		return domain.PositionChange{}, fmt.Errorf("postgres: get position change by source: %w", err)
	}
	return c, nil
}

// ListByPosition returns journal rows for a position, oldest first.
func (s *PositionChangeStore) ListByPosition(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.PositionChange, error) {
	query := `SELECT ` + changeSelectCols + ` FROM position_changes WHERE position_id = $1 ORDER BY created_at`
	args := []any{positionID}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := querierFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position changes: %w", err)
	}
	defer rows.Close()

	changes, err := scanChangeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position changes: %w", err)
	}
	return changes, nil
}

// ListBefore returns journal rows created strictly before the cutoff.
func (s *PositionChangeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PositionChange, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+changeSelectCols+` FROM position_changes
		 WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position changes before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	changes, err := scanChangeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position changes: %w", err)
	}
	return changes, nil
}

// Compile-time interface check.
var _ domain.PositionChangeStore = (*PositionChangeStore)(nil)
