package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, tenant_id, account_id, currency,
	balance, available, frozen,
	total_deposit, total_withdraw, total_fee, realized_pnl,
	created_at, updated_at`

func scanAccountRow(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.TenantID, &a.AccountID, &a.Currency,
		&a.Balance, &a.Available, &a.Frozen,
		&a.TotalDeposit, &a.TotalWithdraw, &a.TotalFee, &a.RealizedPnL,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// Create inserts a new ledger account.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, tenant_id, account_id, currency,
			balance, available, frozen,
			total_deposit, total_withdraw, total_fee, realized_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		a.ID, a.TenantID, a.AccountID, a.Currency,
		a.Balance, a.Available, a.Frozen,
		a.TotalDeposit, a.TotalWithdraw, a.TotalFee, a.RealizedPnL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create account %s/%s: %w", a.TenantID, a.AccountID, err)
	}
	return nil
}

// Update replaces the mutable balance fields of an account.
func (s *AccountStore) Update(ctx context.Context, a domain.Account) error {
	const query = `
		UPDATE accounts SET
			balance        = $2,
			available      = $3,
			frozen         = $4,
			total_deposit  = $5,
			total_withdraw = $6,
			total_fee      = $7,
			realized_pnl   = $8,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := querierFrom(ctx, s.pool).Exec(ctx, query,
		a.ID,
		a.Balance, a.Available, a.Frozen,
		a.TotalDeposit, a.TotalWithdraw, a.TotalFee, a.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves the ledger account for one (tenant, trading account, currency).
func (s *AccountStore) Get(ctx context.Context, tenantID, accountID, currency string) (domain.Account, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts
		 WHERE tenant_id = $1 AND account_id = $2 AND currency = $3`,
		tenantID, accountID, currency)

	a, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s/%s: %w", tenantID, accountID, err)
	}
	return a, nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
