package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, tenant_id, account_id, symbol, exchange,
	side, position_side, order_type, quantity, price, status,
	market_type, exchange_order_id, reason, created_at, updated_at`

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, posSide, status string

	err := row.Scan(
		&o.ID, &o.TenantID, &o.AccountID, &o.Symbol, &o.Exchange,
		&side, &posSide, &o.Type, &o.Quantity, &o.Price, &status,
		&o.MarketType, &o.ExchangeOrderID, &o.Reason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.PositionSide = domain.PositionSide(posSide)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, tenant_id, account_id, symbol, exchange,
			side, position_side, order_type, quantity, price, status,
			market_type, exchange_order_id, reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14
		)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		o.ID, o.TenantID, o.AccountID, o.Symbol, o.Exchange,
		string(o.Side), string(o.PositionSide), o.Type, o.Quantity, o.Price, string(o.Status),
		o.MarketType, o.ExchangeOrderID, o.Reason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus moves an order to a new status and records the exchange's
// order ID when known.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, exchangeOrderID string) error {
	const query = `
		UPDATE orders SET
			status            = $2,
			exchange_order_id = CASE WHEN $3 = '' THEN exchange_order_id ELSE $3 END,
			updated_at        = NOW()
		WHERE id = $1`

	tag, err := querierFrom(ctx, s.pool).Exec(ctx, query, id, string(status), exchangeOrderID)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByAccount returns orders for the given account, newest first.
func (s *OrderStore) ListByAccount(ctx context.Context, tenantID, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE tenant_id = $1 AND account_id = $2 ORDER BY created_at DESC`
	args := []any{tenantID, accountID}

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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
