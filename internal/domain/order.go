package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ClosingSide returns the order side that closes a position of the given
// position side: selling closes a LONG, buying closes a SHORT.
func ClosingSide(side PositionSide) OrderSide {
	if side == PositionSideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// OpeningSide returns the order side that opens or adds to a position of the
// given position side.
func OpeningSide(side PositionSide) OrderSide {
	if side == PositionSideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks an order through submission and execution.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Order is one exchange order the system created, either a monitor-triggered
// market close or a manually submitted trade.
type Order struct {
	ID              string
	TenantID        string
	AccountID       string
	Symbol          string
	Exchange        string
	Side            OrderSide
	PositionSide    PositionSide
	Type            string // "MARKET"
	Quantity        float64
	Price           float64 // zero for market orders until filled
	Status          OrderStatus
	MarketType      string
	ExchangeOrderID string
	Reason          string // e.g. "STOP_LOSS", "TAKE_PROFIT", "MANUAL"
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fill is one matched execution of an order. Its ID is the idempotency key
// for settlement: a fill may be delivered more than once but is settled
// exactly once.
type Fill struct {
	ID              string
	OrderID         string
	TenantID        string
	AccountID       string
	Symbol          string
	Exchange        string
	Side            OrderSide
	PositionSide    PositionSide
	Quantity        float64
	Price           float64
	Fee             float64
	MarketType      string
	ExchangeOrderID string
	CreatedAt       time.Time
}
