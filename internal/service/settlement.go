package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/metrics"
)

// SettlementCoordinator settles fills: the fill record, the position
// mutation, and the ledger entry commit or roll back as one database
// transaction. The fill ID is the idempotency key; settling the same fill
// twice is a logged no-op, never a double booking.
type SettlementCoordinator struct {
	transactor domain.Transactor
	fills      domain.FillStore
	journal    domain.TransactionStore
	positions  *PositionService
	ledger     *LedgerService
	audit      domain.AuditStore
	bus        domain.SignalBus
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// currency is the settlement currency for every cash leg.
	currency string
}

// NewSettlementCoordinator creates a SettlementCoordinator. bus, audit and m
// may be nil in tests.
func NewSettlementCoordinator(
	transactor domain.Transactor,
	fills domain.FillStore,
	journal domain.TransactionStore,
	positions *PositionService,
	ledger *LedgerService,
	audit domain.AuditStore,
	bus domain.SignalBus,
	m *metrics.Metrics,
	currency string,
	logger *slog.Logger,
) *SettlementCoordinator {
	if currency == "" {
		currency = "USDT"
	}
	return &SettlementCoordinator{
		transactor: transactor,
		fills:      fills,
		journal:    journal,
		positions:  positions,
		ledger:     ledger,
		audit:      audit,
		bus:        bus,
		metrics:    m,
		currency:   currency,
		logger:     logger.With("component", "settlement"),
	}
}

// SettlementResult is the post-settlement snapshot of the fill's position and
// cash account. Duplicate marks a re-delivered fill, for which the snapshot
// reflects the original settlement.
type SettlementResult struct {
	FillID         string
	PositionID     string
	Duplicate      bool
	Quantity       float64
	AvgCost        float64
	RealizedPnL    float64
	PositionStatus domain.PositionStatus
	Balance        float64
	Available      float64
}

// SettleFill settles one fill atomically. Re-delivery of an already settled
// fill is a no-op that returns the original settlement's snapshot.
func (c *SettlementCoordinator) SettleFill(ctx context.Context, f domain.Fill) (SettlementResult, error) {
	if err := validateFill(f); err != nil {
		return SettlementResult{}, err
	}

	// Fast path: the journal already has this fill.
	if _, err := c.journal.GetBySource(ctx, domain.SourceFill, f.ID); err == nil {
		c.logger.DebugContext(ctx, "fill already settled", slog.String("fill_id", f.ID))
		c.countResult("duplicate")
		return c.settledResult(ctx, f)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return SettlementResult{}, fmt.Errorf("settlement: idempotency check: %w", err)
	}

	var (
		result FillResult
		acct   domain.Account
	)
	err := c.transactor.InTx(ctx, func(ctx context.Context) error {
		if err := c.fills.Create(ctx, f); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return domain.ErrDuplicateSource
			}
			return fmt.Errorf("settlement: persist fill: %w", err)
		}

		var err error
		result, err = c.positions.ApplyFill(ctx, f)
		if err != nil {
			return err
		}

		acct, err = c.ledger.SettleTrade(ctx, c.currency, f, result.RealizedPnL)
		if err != nil {
			return err
		}

		if c.audit != nil {
			if err := c.audit.Log(ctx, "fill_settled", map[string]any{
				"fill_id":      f.ID,
				"order_id":     f.OrderID,
				"position_id":  result.Position.ID,
				"symbol":       f.Symbol,
				"side":         string(f.Side),
				"quantity":     f.Quantity,
				"price":        f.Price,
				"fee":          f.Fee,
				"realized_pnl": result.RealizedPnL,
			}); err != nil {
				return fmt.Errorf("settlement: audit: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateSource) {
		// A concurrent settlement won the race. The other writer's transaction
		// carries the full state change, so this delivery is done.
		c.logger.DebugContext(ctx, "fill settled concurrently", slog.String("fill_id", f.ID))
		c.countResult("duplicate")
		if res, lookupErr := c.settledResult(ctx, f); lookupErr == nil {
			return res, nil
		}
		// The winner's transaction is not visible yet.
		return SettlementResult{FillID: f.ID, Duplicate: true}, nil
	}
	if err != nil {
		c.countResult("failure")
		return SettlementResult{}, err
	}

	c.countResult("success")
	c.logger.InfoContext(ctx, "fill settled",
		slog.String("fill_id", f.ID),
		slog.String("position_id", result.Position.ID),
		slog.String("symbol", f.Symbol),
		slog.Float64("quantity", f.Quantity),
		slog.Float64("price", f.Price),
		slog.Float64("realized_pnl", result.RealizedPnL),
	)

	c.publishSettlement(ctx, f, result)
	return SettlementResult{
		FillID:         f.ID,
		PositionID:     result.Position.ID,
		Quantity:       result.Position.Quantity,
		AvgCost:        result.Position.AvgCost,
		RealizedPnL:    result.RealizedPnL,
		PositionStatus: result.Position.Status,
		Balance:        acct.Balance,
		Available:      acct.Available,
	}, nil
}

// settledResult rebuilds the snapshot of an earlier settlement from the
// journals written by its transaction.
func (c *SettlementCoordinator) settledResult(ctx context.Context, f domain.Fill) (SettlementResult, error) {
	txn, err := c.journal.GetBySource(ctx, domain.SourceFill, f.ID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: load settled ledger row: %w", err)
	}
	change, err := c.positions.ChangeBySource(ctx, domain.SourceFill, f.ID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: load settled position change: %w", err)
	}

	status := domain.PositionStatusOpen
	if change.Type == domain.ChangeClose {
		status = domain.PositionStatusClosed
	}
	return SettlementResult{
		FillID:         f.ID,
		PositionID:     change.PositionID,
		Duplicate:      true,
		Quantity:       change.QuantityAfter,
		AvgCost:        change.AvgCostAfter,
		RealizedPnL:    change.RealizedPnL,
		PositionStatus: status,
		Balance:        txn.BalanceAfter,
		Available:      txn.AvailableAfter,
	}, nil
}

func (c *SettlementCoordinator) countResult(result string) {
	if c.metrics != nil {
		c.metrics.SettlementsTotal.WithLabelValues(result).Inc()
	}
}

func (c *SettlementCoordinator) publishSettlement(ctx context.Context, f domain.Fill, result FillResult) {
	if c.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":        "fill_settled",
		"fill_id":      f.ID,
		"position_id":  result.Position.ID,
		"tenant_id":    f.TenantID,
		"account_id":   f.AccountID,
		"symbol":       f.Symbol,
		"quantity":     f.Quantity,
		"price":        f.Price,
		"realized_pnl": result.RealizedPnL,
		"status":       string(result.Position.Status),
		"occurred_at":  time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, domain.ChannelSettlement, payload); err != nil {
		c.logger.WarnContext(ctx, "publish settlement event",
			slog.String("fill_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
}

func validateFill(f domain.Fill) error {
	switch {
	case f.ID == "":
		return fmt.Errorf("settlement: fill without id: %w", domain.ErrInvalidOrder)
	case f.Quantity <= 0:
		return fmt.Errorf("settlement: fill %s quantity %v: %w", f.ID, f.Quantity, domain.ErrInvalidOrder)
	case f.Price <= 0:
		return fmt.Errorf("settlement: fill %s price %v: %w", f.ID, f.Price, domain.ErrInvalidOrder)
	case f.Fee < 0:
		return fmt.Errorf("settlement: fill %s fee %v: %w", f.ID, f.Fee, domain.ErrInvalidOrder)
	}
	return nil
}
