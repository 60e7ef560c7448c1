package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, tenant_id, account_id, symbol, exchange, side,
	quantity, available, frozen, avg_cost, realized_pnl,
	stop_loss, take_profit, status, close_reason, strategy_code, market_type,
	created_at, updated_at, closed_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.TenantID, &p.AccountID, &p.Symbol, &p.Exchange, &side,
		&p.Quantity, &p.Available, &p.Frozen, &p.AvgCost, &p.RealizedPnL,
		&p.StopLoss, &p.TakeProfit, &status, &p.CloseReason, &p.StrategyCode, &p.MarketType,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, tenant_id, account_id, symbol, exchange, side,
			quantity, available, frozen, avg_cost, realized_pnl,
			stop_loss, take_profit, status, close_reason, strategy_code, market_type,
			created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, NOW(), $19
		)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		p.ID, p.TenantID, p.AccountID, p.Symbol, p.Exchange, string(p.Side),
		p.Quantity, p.Available, p.Frozen, p.AvgCost, p.RealizedPnL,
		p.StopLoss, p.TakeProfit, string(p.Status), p.CloseReason, p.StrategyCode, p.MarketType,
		p.CreatedAt, p.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			quantity      = $2,
			available     = $3,
			frozen        = $4,
			avg_cost      = $5,
			realized_pnl  = $6,
			stop_loss     = $7,
			take_profit   = $8,
			status        = $9,
			close_reason  = $10,
			strategy_code = $11,
			closed_at     = $12,
			updated_at    = NOW()
		WHERE id = $1`

	tag, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		p.ID,
		p.Quantity, p.Available, p.Frozen, p.AvgCost, p.RealizedPnL,
		p.StopLoss, p.TakeProfit, string(p.Status), p.CloseReason, p.StrategyCode,
		p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetByKey retrieves the live (non-CLOSED) row for the key.
func (s *PositionStore) GetByKey(ctx context.Context, key domain.PositionKey) (domain.Position, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE tenant_id = $1 AND account_id = $2 AND symbol = $3
		   AND exchange = $4 AND side = $5 AND status <> 'CLOSED'`,
		key.TenantID, key.AccountID, key.Symbol, key.Exchange, string(key.Side))

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position by key: %w", err)
	}
	return p, nil
}

// ListMonitored returns OPEN positions with quantity > 0 carrying a stop-loss
// or take-profit threshold.
func (s *PositionStore) ListMonitored(ctx context.Context) ([]domain.Position, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'OPEN' AND quantity > 0
		   AND (stop_loss IS NOT NULL OR take_profit IS NOT NULL)
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list monitored positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan monitored positions: %w", err)
	}
	return positions, nil
}

// ListByAccount returns positions for the given account with pagination and
// optional time filtering.
func (s *PositionStore) ListByAccount(ctx context.Context, tenantID, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE tenant_id = $1 AND account_id = $2`
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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// ClearTriggers removes both thresholds and records the close reason.
func (s *PositionStore) ClearTriggers(ctx context.Context, id string, closeReason string) error {
	const query = `
		UPDATE positions SET
			stop_loss    = NULL,
			take_profit  = NULL,
			close_reason = $2,
			updated_at   = NOW()
		WHERE id = $1`

	tag, err := querierFrom(ctx, s.pool).Exec(ctx, query, id, closeReason)
	if err != nil {
		return fmt.Errorf("postgres: clear triggers %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
