package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/exchange"
)

// LocalCloser executes close requests on an execution node. Nodes keep no
// financial state and no credential store: each request carries the account's
// keys, and the coordinator settles whatever this reports.
type LocalCloser struct {
	placer   OrderPlacer
	fallback map[string]exchange.Credentials
	logger   *slog.Logger
}

// NewLocalCloser creates a LocalCloser. fallback supplies per-exchange
// credentials for requests that carry none; it may be nil.
func NewLocalCloser(placer OrderPlacer, fallback map[string]exchange.Credentials, logger *slog.Logger) *LocalCloser {
	return &LocalCloser{
		placer:   placer,
		fallback: fallback,
		logger:   logger.With("component", "local_closer"),
	}
}

// ExecuteClose places the requested market order with the request's
// credentials and reports the execution.
func (l *LocalCloser) ExecuteClose(ctx context.Context, req CloseRequest) (CloseResponse, error) {
	creds := exchange.Credentials{
		APIKey:     req.APIKey,
		APISecret:  req.APISecret,
		Passphrase: req.Passphrase,
	}
	if creds.APIKey == "" {
		configured, ok := l.fallback[req.Exchange]
		if !ok {
			return CloseResponse{}, fmt.Errorf("executor: close request for %q carries no credentials and none are configured", req.Exchange)
		}
		creds = configured
	}

	positionSide := req.PositionSide
	if positionSide == "" {
		positionSide = positionSideFor(req.Side)
	}

	orderID := uuid.New().String()
	result, err := l.placer.PlaceMarketOrder(ctx, req.Exchange, creds, exchange.OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		PositionSide:  positionSide,
		Type:          "MARKET",
		Quantity:      req.Quantity,
		MarketType:    req.MarketType,
		ClientOrderID: orderID,
	})
	if err != nil {
		return CloseResponse{}, err
	}
	if result.FilledQuantity <= 0 || result.FilledPrice <= 0 {
		return CloseResponse{}, fmt.Errorf("executor: exchange reported no execution (status %s)", result.Status)
	}

	l.logger.Info("close executed",
		"position_id", req.PositionID,
		"symbol", req.Symbol,
		"quantity", result.FilledQuantity,
		"price", result.FilledPrice,
		"reason", req.Reason)

	return CloseResponse{
		OrderID:         orderID,
		FillID:          uuid.New().String(),
		ExchangeOrderID: result.ExchangeOrderID,
		FilledQuantity:  result.FilledQuantity,
		FilledPrice:     result.FilledPrice,
	}, nil
}

// positionSideFor derives the position side a closing order acts on: a SELL
// closes a LONG, a BUY closes a SHORT.
func positionSideFor(orderSide string) string {
	if orderSide == "BUY" {
		return "SHORT"
	}
	return "LONG"
}
