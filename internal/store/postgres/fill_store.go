package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, order_id, tenant_id, account_id, symbol, exchange,
	side, position_side, quantity, price, fee,
	market_type, exchange_order_id, created_at`

func scanFillRow(row pgx.Row) (domain.Fill, error) {
	var f domain.Fill
	var side, posSide string

	err := row.Scan(
		&f.ID, &f.OrderID, &f.TenantID, &f.AccountID, &f.Symbol, &f.Exchange,
		&side, &posSide, &f.Quantity, &f.Price, &f.Fee,
		&f.MarketType, &f.ExchangeOrderID, &f.CreatedAt,
	)
	if err != nil {
		return domain.Fill{}, err
	}
	f.Side = domain.OrderSide(side)
	f.PositionSide = domain.PositionSide(posSide)
	return f, nil
}

// Create inserts a fill. The primary key doubles as the settlement
// idempotency key, so inserting the same fill twice yields ErrAlreadyExists.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (
			id, order_id, tenant_id, account_id, symbol, exchange,
			side, position_side, quantity, price, fee,
			market_type, exchange_order_id
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		f.ID, f.OrderID, f.TenantID, f.AccountID, f.Symbol, f.Exchange,
		string(f.Side), string(f.PositionSide), f.Quantity, f.Price, f.Fee,
		f.MarketType, f.ExchangeOrderID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create fill %s: %w", f.ID, err)
	}
	return nil
}

// GetByID retrieves a single fill.
func (s *FillStore) GetByID(ctx context.Context, id string) (domain.Fill, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE id = $1`, id)

	f, err := scanFillRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fill{}, domain.ErrNotFound
		}
		return domain.Fill{}, fmt.Errorf("postgres: get fill %s: %w", id, err)
	}
	return f, nil
}

// ListByOrder returns all fills for an order, oldest first.
func (s *FillStore) ListByOrder(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFillRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
