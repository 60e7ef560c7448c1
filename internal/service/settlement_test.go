package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/domain"
)

type settlementFixture struct {
	coordinator *SettlementCoordinator
	transactor  *fakeTransactor
	positions   *fakePositionStore
	accounts    *fakeAccountStore
	journal     *fakeTxStore
	fills       *fakeFillStore
	audit       *fakeAuditStore
	ledger      *LedgerService
}

func newSettlementFixture() *settlementFixture {
	positions := newFakePositionStore()
	changes := &fakeChangeStore{}
	accounts := newFakeAccountStore()
	journal := newFakeTxStore()
	fills := newFakeFillStore()
	audit := &fakeAuditStore{}
	transactor := &fakeTransactor{}

	positionSvc := NewPositionService(positions, changes, testLogger())
	ledgerSvc := NewLedgerService(accounts, journal, testLogger())

	return &settlementFixture{
		coordinator: NewSettlementCoordinator(
			transactor, fills, journal, positionSvc, ledgerSvc,
			audit, nil, nil, "USDT", testLogger(),
		),
		transactor: transactor,
		positions:  positions,
		accounts:   accounts,
		journal:    journal,
		fills:      fills,
		audit:      audit,
		ledger:     ledgerSvc,
	}
}

func (fx *settlementFixture) fund(t *testing.T, amount float64) {
	t.Helper()
	_, err := fx.ledger.Deposit(context.Background(), "t1", "a1", "USDT", amount, "seed")
	require.NoError(t, err)
}

func TestSettleFillOpeningBuy(t *testing.T) {
	fx := newSettlementFixture()
	fx.fund(t, 1000)

	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 2, 100)
	f.Fee = 1

	result, err := fx.coordinator.SettleFill(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.transactor.calls)

	// The result snapshots position and cash after the fill.
	assert.False(t, result.Duplicate)
	assert.Equal(t, 2.0, result.Quantity)
	assert.Equal(t, 100.0, result.AvgCost)
	assert.Equal(t, domain.PositionStatusOpen, result.PositionStatus)
	assert.InDelta(t, 1000-201, result.Balance, 1e-9)

	// Fill persisted.
	stored, err := fx.fills.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.Quantity)

	// Position opened.
	pos, err := fx.positions.GetByKey(context.Background(), fillKey(f))
	require.NoError(t, err)
	assert.Equal(t, 2.0, pos.Quantity)

	// Cash debited and journaled against the fill.
	acct, err := fx.accounts.Get(context.Background(), "t1", "a1", "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000-201, acct.Balance, 1e-9)

	tx, err := fx.journal.GetBySource(context.Background(), domain.SourceFill, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxTradeBuy, tx.Type)

	// Audit trail written.
	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, "fill_settled", fx.audit.entries[0].Event)
}

func TestSettleFillIsIdempotent(t *testing.T) {
	fx := newSettlementFixture()
	fx.fund(t, 1000)
	ctx := context.Background()

	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 1, 100)
	first, err := fx.coordinator.SettleFill(ctx, f)
	require.NoError(t, err)

	again, err := fx.coordinator.SettleFill(ctx, f)
	require.NoError(t, err, "re-delivery is a no-op")

	// The duplicate delivery reports the original settlement's snapshot.
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.PositionID, again.PositionID)
	assert.Equal(t, first.Quantity, again.Quantity)
	assert.Equal(t, first.AvgCost, again.AvgCost)
	assert.InDelta(t, first.Balance, again.Balance, 1e-9)
	assert.InDelta(t, first.Available, again.Available, 1e-9)

	// Exactly one booking: seed deposit plus one trade row, one fill, one
	// position at its original size.
	assert.Len(t, fx.journal.rows, 2)
	assert.Len(t, fx.fills.rows, 1)

	pos, err := fx.positions.GetByKey(ctx, fillKey(f))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.Quantity)

	acct, err := fx.accounts.Get(ctx, "t1", "a1", "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 900.0, acct.Balance, 1e-9)
}

func TestSettleFillConcurrentDuplicateIsNoOp(t *testing.T) {
	fx := newSettlementFixture()
	fx.fund(t, 1000)
	ctx := context.Background()

	// Simulate the race: the fill row exists but the journal row is missing
	// from this coordinator's fast-path read. The unique fill constraint
	// inside the transaction resolves the race.
	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 1, 100)
	require.NoError(t, fx.fills.Create(ctx, f))

	result, err := fx.coordinator.SettleFill(ctx, f)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	// Nothing booked on top of the seed deposit.
	assert.Len(t, fx.journal.rows, 1)
	_, err = fx.positions.GetByKey(ctx, fillKey(f))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettleFillClosingFillRealizesPnL(t *testing.T) {
	fx := newSettlementFixture()
	fx.fund(t, 1000)
	ctx := context.Background()

	open := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 2, 100)
	_, err := fx.coordinator.SettleFill(ctx, open)
	require.NoError(t, err)

	closeFill := fill("f2", domain.OrderSideSell, domain.PositionSideLong, 2, 110)
	result, err := fx.coordinator.SettleFill(ctx, closeFill)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, result.RealizedPnL, 1e-9)
	assert.Equal(t, domain.PositionStatusClosed, result.PositionStatus)
	assert.Equal(t, 0.0, result.Quantity)

	acct, err := fx.accounts.Get(ctx, "t1", "a1", "USDT")
	require.NoError(t, err)
	// 1000 - 200 (buy) + 220 (sell) = 1020; the 20 profit is inside the
	// notional, RealizedPnL tracks it separately.
	assert.InDelta(t, 1020.0, acct.Balance, 1e-9)
	assert.InDelta(t, 20.0, acct.RealizedPnL, 1e-9)
	require.NoError(t, acct.CheckInvariants())

	_, err = fx.positions.GetByKey(ctx, fillKey(open))
	require.ErrorIs(t, err, domain.ErrNotFound, "closed position no longer resolves by key")
}

func TestSettleFillRollsBackOnLedgerFailure(t *testing.T) {
	fx := newSettlementFixture()
	ctx := context.Background()

	// No funding: the buy leg must fail, and with it the whole settlement.
	f := fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 2, 100)
	_, err := fx.coordinator.SettleFill(ctx, f)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The fake transactor cannot roll back, but the ledger failure must have
	// prevented any journal booking for the fill.
	_, err = fx.journal.GetBySource(ctx, domain.SourceFill, "f1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettleFillValidation(t *testing.T) {
	fx := newSettlementFixture()
	ctx := context.Background()

	bad := fill("", domain.OrderSideBuy, domain.PositionSideLong, 1, 100)
	_, err := fx.coordinator.SettleFill(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	bad = fill("f1", domain.OrderSideBuy, domain.PositionSideLong, 0, 100)
	_, err = fx.coordinator.SettleFill(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	bad = fill("f2", domain.OrderSideBuy, domain.PositionSideLong, 1, 0)
	_, err = fx.coordinator.SettleFill(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	bad = fill("f3", domain.OrderSideBuy, domain.PositionSideLong, 1, 100)
	bad.Fee = -1
	_, err = fx.coordinator.SettleFill(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	assert.Equal(t, 0, fx.transactor.calls, "invalid fills never reach the transaction")
}
