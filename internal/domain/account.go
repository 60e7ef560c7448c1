package domain

import (
	"fmt"
	"math"
	"time"
)

// TransactionType classifies a balance-affecting event in the ledger journal.
type TransactionType string

const (
	TxDeposit   TransactionType = "DEPOSIT"
	TxWithdraw  TransactionType = "WITHDRAW"
	TxTradeBuy  TransactionType = "TRADE_BUY"
	TxTradeSell TransactionType = "TRADE_SELL"
	TxFee       TransactionType = "FEE"
	TxFreeze    TransactionType = "FREEZE"
	TxUnfreeze  TransactionType = "UNFREEZE"
	TxPnL       TransactionType = "PNL"
)

// TransactionStatus is the terminal status of a journal row. Journal rows are
// written once with their final status and never mutated.
type TransactionStatus string

const (
	TxStatusCompleted TransactionStatus = "COMPLETED"
)

// Account is the cash ledger row for one (tenant, trading account, currency).
// The invariant balance == available + frozen holds after every mutation.
type Account struct {
	ID            string
	TenantID      string
	AccountID     string
	Currency      string
	Balance       float64
	Available     float64
	Frozen        float64
	TotalDeposit  float64
	TotalWithdraw float64
	TotalFee      float64
	RealizedPnL   float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// balanceEpsilon absorbs float64 rounding when comparing balances.
const balanceEpsilon = 1e-9

// CheckInvariants verifies balance == available + frozen and that no
// component is negative.
func (a Account) CheckInvariants() error {
	if a.Balance < -balanceEpsilon || a.Available < -balanceEpsilon || a.Frozen < -balanceEpsilon {
		return fmt.Errorf("account %s/%s: negative balance component (balance=%v avail=%v frozen=%v)",
			a.TenantID, a.AccountID, a.Balance, a.Available, a.Frozen)
	}
	if math.Abs(a.Balance-(a.Available+a.Frozen)) > balanceEpsilon {
		return fmt.Errorf("account %s/%s: balance %v != available %v + frozen %v",
			a.TenantID, a.AccountID, a.Balance, a.Available, a.Frozen)
	}
	return nil
}

// Transaction is one append-only ledger journal row per balance-affecting
// event. It carries the balance snapshot after the change and a
// (source_type, source_id) pair enforced unique for idempotency.
type Transaction struct {
	ID             string
	TenantID       string
	AccountID      string
	Currency       string
	Type           TransactionType
	Amount         float64 // signed balance delta; freeze/unfreeze carry the moved amount with no balance effect
	Fee            float64
	BalanceAfter   float64
	AvailableAfter float64
	FrozenAfter    float64
	SourceType     string
	SourceID       string
	Status         TransactionStatus
	Remark         string
	CreatedAt      time.Time
}

// Journal source types used as the first half of idempotency keys.
const (
	SourceFill     = "FILL"
	SourceOrder    = "ORDER"
	SourceDeposit  = "DEPOSIT"
	SourceWithdraw = "WITHDRAW"
	SourceManual   = "MANUAL"
)
