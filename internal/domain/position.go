package domain

import (
	"fmt"
	"math"
	"time"
)

// PositionSide is the direction of a derivatives position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// PositionStatus tracks the lifecycle of a position.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "OPEN"
	PositionStatusClosed     PositionStatus = "CLOSED"
	PositionStatusLiquidated PositionStatus = "LIQUIDATED"
)

// TriggerType classifies the outcome of evaluating a position against the
// current market price.
type TriggerType string

const (
	TriggerNone       TriggerType = "NONE"
	TriggerStopLoss   TriggerType = "STOP_LOSS"
	TriggerTakeProfit TriggerType = "TAKE_PROFIT"
)

// quantityEpsilon absorbs float64 rounding when comparing quantities.
const quantityEpsilon = 1e-9

// Position is one row per (tenant, account, symbol, exchange, side). It is
// created by the first fill for its key, mutated by every subsequent fill and
// by freeze/unfreeze, and never deleted: when quantity reaches zero the row
// becomes CLOSED.
type Position struct {
	ID           string
	TenantID     string
	AccountID    string
	Symbol       string
	Exchange     string
	Side         PositionSide
	Quantity     float64
	Available    float64
	Frozen       float64
	AvgCost      float64
	RealizedPnL  float64
	StopLoss     *float64
	TakeProfit   *float64
	Status       PositionStatus
	CloseReason  string
	StrategyCode string
	MarketType   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// Key identifies the unique live row for a position.
type PositionKey struct {
	TenantID  string
	AccountID string
	Symbol    string
	Exchange  string
	Side      PositionSide
}

// Key returns the uniqueness key of the position.
func (p Position) Key() PositionKey {
	return PositionKey{
		TenantID:  p.TenantID,
		AccountID: p.AccountID,
		Symbol:    p.Symbol,
		Exchange:  p.Exchange,
		Side:      p.Side,
	}
}

// HasTriggers reports whether the position carries a stop-loss or take-profit
// threshold and is therefore a candidate for risk monitoring.
func (p Position) HasTriggers() bool {
	return p.StopLoss != nil || p.TakeProfit != nil
}

// CheckInvariants verifies quantity == available + frozen and that no
// component is negative.
func (p Position) CheckInvariants() error {
	if p.Quantity < -quantityEpsilon || p.Available < -quantityEpsilon || p.Frozen < -quantityEpsilon {
		return fmt.Errorf("position %s: negative quantity component (qty=%v avail=%v frozen=%v)",
			p.ID, p.Quantity, p.Available, p.Frozen)
	}
	if math.Abs(p.Quantity-(p.Available+p.Frozen)) > quantityEpsilon {
		return fmt.Errorf("position %s: quantity %v != available %v + frozen %v",
			p.ID, p.Quantity, p.Available, p.Frozen)
	}
	return nil
}

// ChangeType classifies a position mutation in the append-only change journal.
type ChangeType string

const (
	ChangeOpen        ChangeType = "OPEN"
	ChangeAdd         ChangeType = "ADD"
	ChangeReduce      ChangeType = "REDUCE"
	ChangeClose       ChangeType = "CLOSE"
	ChangeFreeze      ChangeType = "FREEZE"
	ChangeUnfreeze    ChangeType = "UNFREEZE"
	ChangeLiquidation ChangeType = "LIQUIDATION"
)

// PositionChange is one append-only journal row per position mutation. Rows
// are never updated or deleted; current position state must be reconstructible
// from the sequence of changes.
type PositionChange struct {
	ID             string
	PositionID     string
	TenantID       string
	AccountID      string
	Type           ChangeType
	Quantity       float64 // delta applied by this change
	Price          float64
	QuantityAfter  float64
	AvailableAfter float64
	FrozenAfter    float64
	AvgCostAfter   float64
	RealizedPnL    float64
	SourceType     string // e.g. "FILL", "ORDER"
	SourceID       string
	CreatedAt      time.Time
}
