// Package service implements the business operations on positions, the cash
// ledger, and fill settlement. Services hold no state of their own; every
// mutation goes through the stores, and multi-store operations run inside a
// caller-provided transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/domain"
)

// quantityEpsilon absorbs float64 rounding when deciding whether a position
// reached zero.
const quantityEpsilon = 1e-9

// PositionService applies fills and freeze operations to positions and writes
// the append-only change journal alongside every mutation.
type PositionService struct {
	positions domain.PositionStore
	changes   domain.PositionChangeStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(
	positions domain.PositionStore,
	changes domain.PositionChangeStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		changes:   changes,
		logger:    logger.With("component", "position_service"),
	}
}

// FillResult reports what a fill did to its position.
type FillResult struct {
	Position    domain.Position
	Change      domain.PositionChange
	RealizedPnL float64
}

// ApplyFill applies one fill to the position identified by the fill's key,
// creating the position when an opening fill arrives for a key with no live
// row. It must run inside the settlement transaction.
func (s *PositionService) ApplyFill(ctx context.Context, f domain.Fill) (FillResult, error) {
	opening := f.Side == domain.OpeningSide(f.PositionSide)

	key := domain.PositionKey{
		TenantID:  f.TenantID,
		AccountID: f.AccountID,
		Symbol:    f.Symbol,
		Exchange:  f.Exchange,
		Side:      f.PositionSide,
	}

	pos, err := s.positions.GetByKey(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if !opening {
			return FillResult{}, fmt.Errorf("position_service: closing fill %s for unknown position: %w", f.ID, domain.ErrNotFound)
		}
		return s.openPosition(ctx, f)
	default:
		return FillResult{}, fmt.Errorf("position_service: load position: %w", err)
	}

	if pos.Status != domain.PositionStatusOpen {
		return FillResult{}, fmt.Errorf("position_service: fill %s: %w", f.ID, domain.ErrPositionClosed)
	}

	if opening {
		return s.addToPosition(ctx, pos, f)
	}
	return s.reducePosition(ctx, pos, f)
}

func (s *PositionService) openPosition(ctx context.Context, f domain.Fill) (FillResult, error) {
	now := time.Now().UTC()
	pos := domain.Position{
		ID:         uuid.New().String(),
		TenantID:   f.TenantID,
		AccountID:  f.AccountID,
		Symbol:     f.Symbol,
		Exchange:   f.Exchange,
		Side:       f.PositionSide,
		Quantity:   f.Quantity,
		Available:  f.Quantity,
		AvgCost:    f.Price,
		Status:     domain.PositionStatusOpen,
		MarketType: f.MarketType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := pos.CheckInvariants(); err != nil {
		return FillResult{}, fmt.Errorf("position_service: open: %w", err)
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		return FillResult{}, fmt.Errorf("position_service: create position: %w", err)
	}

	change, err := s.appendChange(ctx, pos, domain.ChangeOpen, f.Quantity, f.Price, 0, "FILL", f.ID)
	if err != nil {
		return FillResult{}, err
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("avg_cost", pos.AvgCost),
	)
	return FillResult{Position: pos, Change: change}, nil
}

func (s *PositionService) addToPosition(ctx context.Context, pos domain.Position, f domain.Fill) (FillResult, error) {
	// Weighted average entry cost across the old quantity and the new fill.
	totalCost := pos.Quantity*pos.AvgCost + f.Quantity*f.Price
	pos.Quantity += f.Quantity
	pos.Available += f.Quantity
	pos.AvgCost = totalCost / pos.Quantity

	if err := pos.CheckInvariants(); err != nil {
		return FillResult{}, fmt.Errorf("position_service: add: %w", err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return FillResult{}, fmt.Errorf("position_service: update position: %w", err)
	}

	change, err := s.appendChange(ctx, pos, domain.ChangeAdd, f.Quantity, f.Price, 0, "FILL", f.ID)
	if err != nil {
		return FillResult{}, err
	}
	return FillResult{Position: pos, Change: change}, nil
}

func (s *PositionService) reducePosition(ctx context.Context, pos domain.Position, f domain.Fill) (FillResult, error) {
	// A reducing fill may only consume unfrozen quantity. Frozen quantity is
	// reserved for a pending order and must be unfrozen before it can close.
	if f.Quantity > pos.Available+quantityEpsilon {
		return FillResult{}, fmt.Errorf("position_service: fill %s closes %v with available %v: %w",
			f.ID, f.Quantity, pos.Available, domain.ErrInsufficientAvailable)
	}

	pos.Available -= f.Quantity
	pos.Quantity -= f.Quantity

	var pnl float64
	switch pos.Side {
	case domain.PositionSideLong:
		pnl = (f.Price - pos.AvgCost) * f.Quantity
	case domain.PositionSideShort:
		pnl = (pos.AvgCost - f.Price) * f.Quantity
	}
	pos.RealizedPnL += pnl

	changeType := domain.ChangeReduce
	if pos.Quantity <= quantityEpsilon {
		pos.Quantity = 0
		pos.Available = 0
		pos.Frozen = 0
		pos.Status = domain.PositionStatusClosed
		now := time.Now().UTC()
		pos.ClosedAt = &now
		changeType = domain.ChangeClose
	}

	if err := pos.CheckInvariants(); err != nil {
		return FillResult{}, fmt.Errorf("position_service: reduce: %w", err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return FillResult{}, fmt.Errorf("position_service: update position: %w", err)
	}

	change, err := s.appendChange(ctx, pos, changeType, -f.Quantity, f.Price, pnl, "FILL", f.ID)
	if err != nil {
		return FillResult{}, err
	}

	if changeType == domain.ChangeClose {
		s.logger.InfoContext(ctx, "position closed",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.Float64("realized_pnl", pos.RealizedPnL),
		)
	}
	return FillResult{Position: pos, Change: change, RealizedPnL: pnl}, nil
}

// Freeze moves quantity from available to frozen, journaling the move.
func (s *PositionService) Freeze(ctx context.Context, positionID string, quantity float64, sourceType, sourceID string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: freeze: %w", err)
	}
	if pos.Status != domain.PositionStatusOpen {
		return domain.Position{}, domain.ErrPositionClosed
	}
	if quantity <= 0 || quantity > pos.Available+quantityEpsilon {
		return domain.Position{}, domain.ErrInsufficientAvailable
	}

	pos.Available -= quantity
	pos.Frozen += quantity
	if err := pos.CheckInvariants(); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: freeze: %w", err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: freeze update: %w", err)
	}
	if _, err := s.appendChange(ctx, pos, domain.ChangeFreeze, quantity, 0, 0, sourceType, sourceID); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// Unfreeze moves quantity from frozen back to available, journaling the move.
func (s *PositionService) Unfreeze(ctx context.Context, positionID string, quantity float64, sourceType, sourceID string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: unfreeze: %w", err)
	}
	if quantity <= 0 || quantity > pos.Frozen+quantityEpsilon {
		return domain.Position{}, domain.ErrInsufficientFrozen
	}

	pos.Frozen -= quantity
	pos.Available += quantity
	if err := pos.CheckInvariants(); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: unfreeze: %w", err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: unfreeze update: %w", err)
	}
	if _, err := s.appendChange(ctx, pos, domain.ChangeUnfreeze, quantity, 0, 0, sourceType, sourceID); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// SetTriggers replaces the stop-loss and take-profit thresholds on an open
// position. Passing nil clears a threshold.
func (s *PositionService) SetTriggers(ctx context.Context, positionID string, stopLoss, takeProfit *float64) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: set triggers: %w", err)
	}
	if pos.Status != domain.PositionStatusOpen {
		return domain.Position{}, domain.ErrPositionClosed
	}
	if err := validateTriggers(pos.Side, stopLoss, takeProfit); err != nil {
		return domain.Position{}, err
	}

	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: set triggers update: %w", err)
	}

	s.logger.InfoContext(ctx, "triggers updated",
		slog.String("position_id", pos.ID),
		slog.Any("stop_loss", stopLoss),
		slog.Any("take_profit", takeProfit),
	)
	return pos, nil
}

// validateTriggers rejects threshold pairs that would fire immediately
// against each other: a LONG stop-loss must sit below its take-profit, a
// SHORT stop-loss above.
func validateTriggers(side domain.PositionSide, stopLoss, takeProfit *float64) error {
	if stopLoss != nil && *stopLoss <= 0 {
		return fmt.Errorf("position_service: stop loss must be positive: %w", domain.ErrInvalidOrder)
	}
	if takeProfit != nil && *takeProfit <= 0 {
		return fmt.Errorf("position_service: take profit must be positive: %w", domain.ErrInvalidOrder)
	}
	if stopLoss == nil || takeProfit == nil {
		return nil
	}

	switch side {
	case domain.PositionSideLong:
		if *stopLoss >= *takeProfit {
			return fmt.Errorf("position_service: long stop loss %v >= take profit %v: %w",
				*stopLoss, *takeProfit, domain.ErrInvalidOrder)
		}
	case domain.PositionSideShort:
		if *stopLoss <= *takeProfit {
			return fmt.Errorf("position_service: short stop loss %v <= take profit %v: %w",
				*stopLoss, *takeProfit, domain.ErrInvalidOrder)
		}
	}
	return nil
}

// ChangeBySource returns the journal row a source event produced, for
// rebuilding the outcome of an already-applied fill.
func (s *PositionService) ChangeBySource(ctx context.Context, sourceType, sourceID string) (domain.PositionChange, error) {
	return s.changes.GetBySource(ctx, sourceType, sourceID)
}

func (s *PositionService) appendChange(
	ctx context.Context,
	pos domain.Position,
	changeType domain.ChangeType,
	quantity, price, pnl float64,
	sourceType, sourceID string,
) (domain.PositionChange, error) {
	change := domain.PositionChange{
		ID:             uuid.New().String(),
		PositionID:     pos.ID,
		TenantID:       pos.TenantID,
		AccountID:      pos.AccountID,
		Type:           changeType,
		Quantity:       quantity,
		Price:          price,
		QuantityAfter:  pos.Quantity,
		AvailableAfter: pos.Available,
		FrozenAfter:    pos.Frozen,
		AvgCostAfter:   pos.AvgCost,
		RealizedPnL:    pnl,
		SourceType:     sourceType,
		SourceID:       sourceID,
	}
	if err := s.changes.Append(ctx, change); err != nil {
		return domain.PositionChange{}, fmt.Errorf("position_service: journal change: %w", err)
	}
	return change, nil
}
