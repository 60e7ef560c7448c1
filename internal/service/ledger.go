package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/domain"
)

// LedgerService mutates cash accounts and writes the append-only transaction
// journal alongside every mutation. The journal row is written before the
// account update, so a duplicate (source_type, source_id) pair aborts the
// operation before any balance changes.
type LedgerService struct {
	accounts domain.AccountStore
	journal  domain.TransactionStore
	logger   *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	accounts domain.AccountStore,
	journal domain.TransactionStore,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		accounts: accounts,
		journal:  journal,
		logger:   logger.With("component", "ledger_service"),
	}
}

// Deposit credits the account, creating it on first deposit.
func (s *LedgerService) Deposit(ctx context.Context, tenantID, accountID, currency string, amount float64, sourceID string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, fmt.Errorf("ledger_service: deposit amount %v: %w", amount, domain.ErrInvalidOrder)
	}

	acct, created, err := s.getOrCreate(ctx, tenantID, accountID, currency)
	if err != nil {
		return domain.Account{}, err
	}

	acct.Balance += amount
	acct.Available += amount
	acct.TotalDeposit += amount

	if err := s.commit(ctx, acct, created, domain.Transaction{
		Type:       domain.TxDeposit,
		Amount:     amount,
		SourceType: domain.SourceDeposit,
		SourceID:   sourceID,
	}); err != nil {
		return domain.Account{}, err
	}

	s.logger.InfoContext(ctx, "deposit",
		slog.String("tenant_id", tenantID),
		slog.String("account_id", accountID),
		slog.Float64("amount", amount),
		slog.Float64("balance", acct.Balance),
	)
	return acct, nil
}

// Withdraw debits the account's available balance. Frozen funds cannot be
// withdrawn.
func (s *LedgerService) Withdraw(ctx context.Context, tenantID, accountID, currency string, amount float64, sourceID string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, fmt.Errorf("ledger_service: withdraw amount %v: %w", amount, domain.ErrInvalidOrder)
	}

	acct, err := s.accounts.Get(ctx, tenantID, accountID, currency)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: withdraw: %w", err)
	}
	if acct.Available < amount {
		return domain.Account{}, fmt.Errorf("ledger_service: withdraw %v with available %v: %w",
			amount, acct.Available, domain.ErrInsufficientBalance)
	}

	acct.Balance -= amount
	acct.Available -= amount
	acct.TotalWithdraw += amount

	if err := s.commit(ctx, acct, false, domain.Transaction{
		Type:       domain.TxWithdraw,
		Amount:     -amount,
		SourceType: domain.SourceWithdraw,
		SourceID:   sourceID,
	}); err != nil {
		return domain.Account{}, err
	}

	s.logger.InfoContext(ctx, "withdraw",
		slog.String("tenant_id", tenantID),
		slog.String("account_id", accountID),
		slog.Float64("amount", amount),
		slog.Float64("balance", acct.Balance),
	)
	return acct, nil
}

// Freeze moves amount from available to frozen. The balance is unchanged.
func (s *LedgerService) Freeze(ctx context.Context, tenantID, accountID, currency string, amount float64, sourceType, sourceID string) (domain.Account, error) {
	acct, err := s.accounts.Get(ctx, tenantID, accountID, currency)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: freeze: %w", err)
	}
	if amount <= 0 || acct.Available < amount {
		return domain.Account{}, domain.ErrInsufficientBalance
	}

	acct.Available -= amount
	acct.Frozen += amount

	if err := s.commit(ctx, acct, false, domain.Transaction{
		Type:       domain.TxFreeze,
		Amount:     amount,
		SourceType: sourceType,
		SourceID:   sourceID,
	}); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// Unfreeze moves amount from frozen back to available.
func (s *LedgerService) Unfreeze(ctx context.Context, tenantID, accountID, currency string, amount float64, sourceType, sourceID string) (domain.Account, error) {
	acct, err := s.accounts.Get(ctx, tenantID, accountID, currency)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: unfreeze: %w", err)
	}
	if amount <= 0 || acct.Frozen < amount {
		return domain.Account{}, domain.ErrInsufficientFrozen
	}

	acct.Frozen -= amount
	acct.Available += amount

	if err := s.commit(ctx, acct, false, domain.Transaction{
		Type:       domain.TxUnfreeze,
		Amount:     amount,
		SourceType: sourceType,
		SourceID:   sourceID,
	}); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// SettleTrade applies one fill's cash effect: a buy debits notional plus fee,
// a sell credits notional minus fee. realizedPnL updates the account's
// running total only; its cash effect is already inside the notional. It must
// run inside the settlement transaction.
func (s *LedgerService) SettleTrade(ctx context.Context, currency string, f domain.Fill, realizedPnL float64) (domain.Account, error) {
	acct, created, err := s.getOrCreate(ctx, f.TenantID, f.AccountID, currency)
	if err != nil {
		return domain.Account{}, err
	}

	notional := f.Quantity * f.Price
	txType := domain.TxTradeSell
	amount := notional - f.Fee

	if f.Side == domain.OrderSideBuy {
		txType = domain.TxTradeBuy
		amount = -(notional + f.Fee)
		if acct.Available < notional+f.Fee {
			return domain.Account{}, fmt.Errorf("ledger_service: buy %v with available %v: %w",
				notional+f.Fee, acct.Available, domain.ErrInsufficientBalance)
		}
	}

	acct.Balance += amount
	acct.Available += amount
	acct.TotalFee += f.Fee
	acct.RealizedPnL += realizedPnL

	if err := s.commit(ctx, acct, created, domain.Transaction{
		Type:       txType,
		Amount:     amount,
		Fee:        f.Fee,
		SourceType: domain.SourceFill,
		SourceID:   f.ID,
	}); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// getOrCreate loads the account row, returning a zeroed new row (not yet
// persisted) when none exists.
func (s *LedgerService) getOrCreate(ctx context.Context, tenantID, accountID, currency string) (domain.Account, bool, error) {
	acct, err := s.accounts.Get(ctx, tenantID, accountID, currency)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, false, fmt.Errorf("ledger_service: load account: %w", err)
	}

	return domain.Account{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AccountID: accountID,
		Currency:  currency,
	}, true, nil
}

// commit journals the mutation and persists the account. The journal write
// goes first: its unique source constraint is the idempotency gate, and a
// duplicate aborts before the balance moves.
func (s *LedgerService) commit(ctx context.Context, acct domain.Account, created bool, tx domain.Transaction) error {
	if err := acct.CheckInvariants(); err != nil {
		return fmt.Errorf("ledger_service: %w", err)
	}

	tx.ID = uuid.New().String()
	tx.TenantID = acct.TenantID
	tx.AccountID = acct.AccountID
	tx.Currency = acct.Currency
	tx.BalanceAfter = acct.Balance
	tx.AvailableAfter = acct.Available
	tx.FrozenAfter = acct.Frozen
	tx.Status = domain.TxStatusCompleted

	if err := s.journal.Append(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			return err
		}
		return fmt.Errorf("ledger_service: journal: %w", err)
	}

	if created {
		if err := s.accounts.Create(ctx, acct); err != nil {
			return fmt.Errorf("ledger_service: create account: %w", err)
		}
		return nil
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return fmt.Errorf("ledger_service: update account: %w", err)
	}
	return nil
}
