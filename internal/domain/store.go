package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Transactor runs a function inside a single database transaction. Stores
// called with the context passed to fn participate in that transaction, so a
// failure in any step rolls back every write.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Update(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetByKey returns the live (non-CLOSED) row for the key.
	GetByKey(ctx context.Context, key PositionKey) (Position, error)
	// ListMonitored returns OPEN positions with quantity > 0 carrying a
	// stop-loss or take-profit threshold.
	ListMonitored(ctx context.Context) ([]Position, error)
	ListByAccount(ctx context.Context, tenantID, accountID string, opts ListOpts) ([]Position, error)
	// ClearTriggers removes both thresholds and records the close reason.
	ClearTriggers(ctx context.Context, id string, closeReason string) error
}

// PositionChangeStore persists the append-only position change journal.
type PositionChangeStore interface {
	Append(ctx context.Context, c PositionChange) error
	GetBySource(ctx context.Context, sourceType, sourceID string) (PositionChange, error)
	ListByPosition(ctx context.Context, positionID string, opts ListOpts) ([]PositionChange, error)
	// ListBefore returns journal rows created strictly before the cutoff,
	// for archival.
	ListBefore(ctx context.Context, before time.Time) ([]PositionChange, error)
}

// AccountStore persists ledger accounts.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	Update(ctx context.Context, a Account) error
	Get(ctx context.Context, tenantID, accountID, currency string) (Account, error)
}

// TransactionStore persists the append-only ledger journal. Append returns
// ErrDuplicateSource when a row with the same (source_type, source_id) pair
// already exists.
type TransactionStore interface {
	Append(ctx context.Context, t Transaction) error
	GetBySource(ctx context.Context, sourceType, sourceID string) (Transaction, error)
	ListByAccount(ctx context.Context, tenantID, accountID string, opts ListOpts) ([]Transaction, error)
	ListBefore(ctx context.Context, before time.Time) ([]Transaction, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, exchangeOrderID string) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByAccount(ctx context.Context, tenantID, accountID string, opts ListOpts) ([]Order, error)
}

// FillStore persists fills.
type FillStore interface {
	Create(ctx context.Context, f Fill) error
	GetByID(ctx context.Context, id string) (Fill, error)
	ListByOrder(ctx context.Context, orderID string) ([]Fill, error)
}

// ExchangeAccountStore persists per-account exchange bindings.
type ExchangeAccountStore interface {
	Upsert(ctx context.Context, a ExchangeAccount) error
	Get(ctx context.Context, tenantID, accountID, exchange string) (ExchangeAccount, error)
	List(ctx context.Context, tenantID string) ([]ExchangeAccount, error)
}

// NodeStore persists execution node registrations.
type NodeStore interface {
	Upsert(ctx context.Context, n ExecutionNode) error
	Get(ctx context.Context, id string) (ExecutionNode, error)
	List(ctx context.Context) ([]ExecutionNode, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
