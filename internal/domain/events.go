package domain

import "time"

// Signal bus channels published by the monitor and settlement pipeline.
// Subscribers (WebSocket hub, strategy subsystems) consume these instead of
// registering callbacks.
const (
	ChannelTriggers   = "monitor:triggers"
	ChannelCloses     = "monitor:closes"
	ChannelSettlement = "settlement"
	ChannelCooldown   = "strategy:cooldown"
	StreamCooldown    = "stream:cooldown"
)

// TriggerEvent is published on every trigger detection and again with the
// close outcome once the dispatch finishes.
type TriggerEvent struct {
	PositionID     string       `json:"position_id"`
	TenantID       string       `json:"tenant_id"`
	AccountID      string       `json:"account_id"`
	Symbol         string       `json:"symbol"`
	Exchange       string       `json:"exchange"`
	Side           PositionSide `json:"side"`
	Trigger        TriggerType  `json:"trigger"`
	Price          float64      `json:"price"`
	Quantity       float64      `json:"quantity"`
	Success        bool         `json:"success"`
	FilledQuantity float64      `json:"filled_quantity,omitempty"`
	FilledPrice    float64      `json:"filled_price,omitempty"`
	Remote         bool         `json:"remote"`
	Error          string       `json:"error,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// CooldownEvent tells the originating strategy to pause re-entry after a
// stop-loss close. It is published to both the cooldown channel and the
// durable cooldown stream.
type CooldownEvent struct {
	StrategyCode string      `json:"strategy_code"`
	TenantID     string      `json:"tenant_id"`
	AccountID    string      `json:"account_id"`
	Symbol       string      `json:"symbol"`
	Exchange     string      `json:"exchange"`
	Trigger      TriggerType `json:"trigger"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// CloseOutcome is the result of one close dispatch, local or remote.
type CloseOutcome struct {
	Success        bool
	Remote         bool
	FilledQuantity float64
	FilledPrice    float64
	OrderID        string
	FillID         string
	Error          string
}
