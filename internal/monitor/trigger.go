// Package monitor implements the position risk monitor: the scan scheduler,
// trigger evaluation, and the per-cycle in-flight set.
package monitor

import "github.com/meridianquant/tradecore/internal/domain"

// Evaluate compares a position's thresholds against the current price and
// returns the trigger that fires, if any. Stop-loss is checked first: when a
// price satisfies both thresholds at once, the protective close wins.
//
// LONG positions trigger stop-loss at price <= threshold and take-profit at
// price >= threshold; SHORT positions mirror both comparisons.
func Evaluate(p domain.Position, price float64) domain.TriggerType {
	if p.Status != domain.PositionStatusOpen || p.Quantity <= 0 {
		return domain.TriggerNone
	}

	switch p.Side {
	case domain.PositionSideLong:
		if p.StopLoss != nil && price <= *p.StopLoss {
			return domain.TriggerStopLoss
		}
		if p.TakeProfit != nil && price >= *p.TakeProfit {
			return domain.TriggerTakeProfit
		}
	case domain.PositionSideShort:
		if p.StopLoss != nil && price >= *p.StopLoss {
			return domain.TriggerStopLoss
		}
		if p.TakeProfit != nil && price <= *p.TakeProfit {
			return domain.TriggerTakeProfit
		}
	}

	return domain.TriggerNone
}
