package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionCheckInvariants(t *testing.T) {
	p := Position{ID: "p1", Quantity: 3, Available: 2, Frozen: 1}
	require.NoError(t, p.CheckInvariants())

	p.Frozen = 2
	require.Error(t, p.CheckInvariants(), "quantity must equal available + frozen")

	p = Position{ID: "p1", Quantity: 1, Available: 2, Frozen: -1}
	require.Error(t, p.CheckInvariants(), "negative component rejected")

	// Rounding noise within epsilon passes.
	p = Position{ID: "p1", Quantity: 0.3, Available: 0.1 + 0.2, Frozen: 0}
	require.NoError(t, p.CheckInvariants())
}

func TestPositionKeyAndTriggers(t *testing.T) {
	sl := 90.0
	p := Position{
		TenantID:  "t1",
		AccountID: "a1",
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Side:      PositionSideLong,
	}

	assert.Equal(t, PositionKey{
		TenantID:  "t1",
		AccountID: "a1",
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Side:      PositionSideLong,
	}, p.Key())

	assert.False(t, p.HasTriggers())
	p.StopLoss = &sl
	assert.True(t, p.HasTriggers())
}

func TestOrderSideHelpers(t *testing.T) {
	assert.Equal(t, OrderSideSell, ClosingSide(PositionSideLong))
	assert.Equal(t, OrderSideBuy, ClosingSide(PositionSideShort))
	assert.Equal(t, OrderSideBuy, OpeningSide(PositionSideLong))
	assert.Equal(t, OrderSideSell, OpeningSide(PositionSideShort))
}

func TestAccountCheckInvariants(t *testing.T) {
	a := Account{TenantID: "t1", AccountID: "a1", Balance: 100, Available: 70, Frozen: 30}
	require.NoError(t, a.CheckInvariants())

	a.Frozen = 40
	require.Error(t, a.CheckInvariants())

	a = Account{TenantID: "t1", AccountID: "a1", Balance: -1, Available: -1}
	require.Error(t, a.CheckInvariants())
}

func TestPriceKeyString(t *testing.T) {
	key := PriceKey{Exchange: "binance", Symbol: "BTCUSDT"}
	assert.Equal(t, "binance:BTCUSDT", key.String())
}
