package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/service"
)

// Settler settles one fill atomically and idempotently.
type Settler interface {
	SettleFill(ctx context.Context, f domain.Fill) (service.SettlementResult, error)
}

// SettlementHandler accepts externally reported fills for settlement, used
// when a node delivered a fill out of band or an operator replays one.
type SettlementHandler struct {
	settler Settler
	logger  *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settler Settler, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settler: settler,
		logger:  logHandler(logger, "settlements"),
	}
}

type settleRequest struct {
	FillID          string  `json:"fill_id"`
	OrderID         string  `json:"order_id"`
	TenantID        string  `json:"tenant_id"`
	AccountID       string  `json:"account_id"`
	Symbol          string  `json:"symbol"`
	Exchange        string  `json:"exchange"`
	Side            string  `json:"side"`
	PositionSide    string  `json:"position_side"`
	Quantity        float64 `json:"quantity"`
	Price           float64 `json:"price"`
	Fee             float64 `json:"fee"`
	MarketType      string  `json:"market_type"`
	ExchangeOrderID string  `json:"exchange_order_id"`
}

// SettleFill settles one reported fill. Re-posting an already settled fill
// returns 200 without any state change.
// POST /api/v1/settlements
func (h *SettlementHandler) SettleFill(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.AccountID == "" || req.Symbol == "" || req.Exchange == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, account_id, symbol and exchange are required")
		return
	}
	if req.FillID == "" {
		req.FillID = uuid.New().String()
	}

	fill := domain.Fill{
		ID:              req.FillID,
		OrderID:         req.OrderID,
		TenantID:        req.TenantID,
		AccountID:       req.AccountID,
		Symbol:          req.Symbol,
		Exchange:        req.Exchange,
		Side:            domain.OrderSide(req.Side),
		PositionSide:    domain.PositionSide(req.PositionSide),
		Quantity:        req.Quantity,
		Price:           req.Price,
		Fee:             req.Fee,
		MarketType:      req.MarketType,
		ExchangeOrderID: req.ExchangeOrderID,
		CreatedAt:       time.Now().UTC(),
	}

	result, err := h.settler.SettleFill(r.Context(), fill)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := "settled"
	if result.Duplicate {
		status = "already_settled"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fill_id":         fill.ID,
		"status":          status,
		"position_id":     result.PositionID,
		"quantity":        result.Quantity,
		"avg_cost":        result.AvgCost,
		"realized_pnl":    result.RealizedPnL,
		"position_status": string(result.PositionStatus),
		"balance":         result.Balance,
		"available":       result.Available,
	})
}
