package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/domain"
)

func newTestLedgerService() (*LedgerService, *fakeAccountStore, *fakeTxStore) {
	accounts := newFakeAccountStore()
	journal := newFakeTxStore()
	return NewLedgerService(accounts, journal, testLogger()), accounts, journal
}

func TestDepositCreatesAccount(t *testing.T) {
	svc, accounts, journal := newTestLedgerService()

	acct, err := svc.Deposit(context.Background(), "t1", "a1", "USDT", 1000, "dep-1")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, acct.Balance)
	assert.Equal(t, 1000.0, acct.Available)
	assert.Equal(t, 0.0, acct.Frozen)
	assert.Equal(t, 1000.0, acct.TotalDeposit)
	require.NoError(t, acct.CheckInvariants())

	stored, err := accounts.Get(context.Background(), "t1", "a1", "USDT")
	require.NoError(t, err)
	assert.Equal(t, acct.Balance, stored.Balance)

	require.Len(t, journal.rows, 1)
	tx := journal.rows[0]
	assert.Equal(t, domain.TxDeposit, tx.Type)
	assert.Equal(t, 1000.0, tx.Amount)
	assert.Equal(t, 1000.0, tx.BalanceAfter)
	assert.Equal(t, domain.SourceDeposit, tx.SourceType)
	assert.Equal(t, "dep-1", tx.SourceID)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
}

func TestDepositDuplicateSourceIsRejected(t *testing.T) {
	svc, accounts, journal := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 1000, "dep-1")
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, "t1", "a1", "USDT", 1000, "dep-1")
	require.ErrorIs(t, err, domain.ErrDuplicateSource)

	// The duplicate must not have moved the balance.
	acct, err := accounts.Get(ctx, "t1", "a1", "USDT")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acct.Balance)
	assert.Len(t, journal.rows, 1)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestLedgerService()

	_, err := svc.Deposit(context.Background(), "t1", "a1", "USDT", 0, "dep-1")
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = svc.Deposit(context.Background(), "t1", "a1", "USDT", -5, "dep-2")
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestWithdraw(t *testing.T) {
	svc, _, journal := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 1000, "dep-1")
	require.NoError(t, err)

	acct, err := svc.Withdraw(ctx, "t1", "a1", "USDT", 400, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, 600.0, acct.Balance)
	assert.Equal(t, 600.0, acct.Available)
	assert.Equal(t, 400.0, acct.TotalWithdraw)

	tx := journal.rows[len(journal.rows)-1]
	assert.Equal(t, domain.TxWithdraw, tx.Type)
	assert.Equal(t, -400.0, tx.Amount)
}

func TestWithdrawRejectsInsufficientAvailable(t *testing.T) {
	svc, _, _ := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 100, "dep-1")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "t1", "a1", "USDT", 200, "wd-1")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.Withdraw(ctx, "t1", "missing", "USDT", 10, "wd-2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFreezeExcludesFundsFromWithdrawal(t *testing.T) {
	svc, _, _ := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 1000, "dep-1")
	require.NoError(t, err)

	acct, err := svc.Freeze(ctx, "t1", "a1", "USDT", 700, domain.SourceOrder, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acct.Balance)
	assert.Equal(t, 300.0, acct.Available)
	assert.Equal(t, 700.0, acct.Frozen)
	require.NoError(t, acct.CheckInvariants())

	_, err = svc.Withdraw(ctx, "t1", "a1", "USDT", 500, "wd-1")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	acct, err = svc.Unfreeze(ctx, "t1", "a1", "USDT", 700, domain.SourceOrder, "order-2")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acct.Available)
	assert.Equal(t, 0.0, acct.Frozen)

	_, err = svc.Unfreeze(ctx, "t1", "a1", "USDT", 1, domain.SourceOrder, "order-3")
	require.ErrorIs(t, err, domain.ErrInsufficientFrozen)
}

func TestSettleTradeBuy(t *testing.T) {
	svc, _, journal := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 1000, "dep-1")
	require.NoError(t, err)

	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 2, 100)
	f.Fee = 1.5

	acct, err := svc.SettleTrade(ctx, "USDT", f, 0)
	require.NoError(t, err)

	// Debit is notional plus fee.
	assert.InDelta(t, 1000-201.5, acct.Balance, 1e-9)
	assert.InDelta(t, 1.5, acct.TotalFee, 1e-9)

	tx := journal.rows[len(journal.rows)-1]
	assert.Equal(t, domain.TxTradeBuy, tx.Type)
	assert.InDelta(t, -201.5, tx.Amount, 1e-9)
	assert.Equal(t, domain.SourceFill, tx.SourceType)
	assert.Equal(t, "f1", tx.SourceID)
}

func TestSettleTradeSellCreditsAndTracksPnL(t *testing.T) {
	svc, _, journal := newTestLedgerService()
	ctx := context.Background()

	f := fill("f1", domain.OrderSideSell, domain.PositionSideLong, 1, 120)
	f.Fee = 0.5

	// Selling into an account that has never deposited creates it.
	acct, err := svc.SettleTrade(ctx, "USDT", f, 20)
	require.NoError(t, err)
	assert.InDelta(t, 119.5, acct.Balance, 1e-9)
	assert.InDelta(t, 20.0, acct.RealizedPnL, 1e-9)

	tx := journal.rows[len(journal.rows)-1]
	assert.Equal(t, domain.TxTradeSell, tx.Type)
	assert.InDelta(t, 119.5, tx.Amount, 1e-9)
}

func TestSettleTradeBuyRejectsInsufficientAvailable(t *testing.T) {
	svc, _, journal := newTestLedgerService()
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "t1", "a1", "USDT", 100, "dep-1")
	require.NoError(t, err)

	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 2, 100)
	_, err = svc.SettleTrade(ctx, "USDT", f, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Len(t, journal.rows, 1, "only the deposit is journaled")
}
