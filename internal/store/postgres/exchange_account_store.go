package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// ExchangeAccountStore implements domain.ExchangeAccountStore using PostgreSQL.
type ExchangeAccountStore struct {
	pool *pgxpool.Pool
}

// NewExchangeAccountStore creates a new ExchangeAccountStore.
func NewExchangeAccountStore(pool *pgxpool.Pool) *ExchangeAccountStore {
	return &ExchangeAccountStore{pool: pool}
}

const exchangeAccountSelectCols = `id, tenant_id, account_id, exchange,
	api_key, api_secret, passphrase, market_type, node_id, enabled,
	created_at, updated_at`

func scanExchangeAccountRow(row pgx.Row) (domain.ExchangeAccount, error) {
	var a domain.ExchangeAccount
	err := row.Scan(
		&a.ID, &a.TenantID, &a.AccountID, &a.Exchange,
		&a.APIKey, &a.APISecret, &a.Passphrase, &a.MarketType, &a.NodeID, &a.Enabled,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// Upsert inserts or replaces the binding for (tenant, account, exchange).
func (s *ExchangeAccountStore) Upsert(ctx context.Context, a domain.ExchangeAccount) error {
	const query = `
		INSERT INTO exchange_accounts (
			id, tenant_id, account_id, exchange,
			api_key, api_secret, passphrase, market_type, node_id, enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, account_id, exchange) DO UPDATE SET
			api_key     = EXCLUDED.api_key,
			api_secret  = EXCLUDED.api_secret,
			passphrase  = EXCLUDED.passphrase,
			market_type = EXCLUDED.market_type,
			node_id     = EXCLUDED.node_id,
			enabled     = EXCLUDED.enabled,
			updated_at  = NOW()`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		a.ID, a.TenantID, a.AccountID, a.Exchange,
		a.APIKey, a.APISecret, a.Passphrase, a.MarketType, a.NodeID, a.Enabled,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert exchange account %s/%s: %w", a.TenantID, a.AccountID, err)
	}
	return nil
}

// Get retrieves the binding for (tenant, account, exchange).
func (s *ExchangeAccountStore) Get(ctx context.Context, tenantID, accountID, exchange string) (domain.ExchangeAccount, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+exchangeAccountSelectCols+` FROM exchange_accounts
		 WHERE tenant_id = $1 AND account_id = $2 AND exchange = $3`,
		tenantID, accountID, exchange)

	a, err := scanExchangeAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeAccount{}, domain.ErrNotFound
		}
		return domain.ExchangeAccount{}, fmt.Errorf("postgres: get exchange account %s/%s: %w", tenantID, accountID, err)
	}
	return a, nil
}

// List returns all bindings for a tenant.
func (s *ExchangeAccountStore) List(ctx context.Context, tenantID string) ([]domain.ExchangeAccount, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+exchangeAccountSelectCols+` FROM exchange_accounts
		 WHERE tenant_id = $1 ORDER BY account_id, exchange`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exchange accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.ExchangeAccount
	for rows.Next() {
		a, err := scanExchangeAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan exchange account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Compile-time interface check.
var _ domain.ExchangeAccountStore = (*ExchangeAccountStore)(nil)
