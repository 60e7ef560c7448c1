package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/meridianquant/tradecore/internal/executor"
)

// CloseExecutor executes one close request on local exchange connectivity.
type CloseExecutor interface {
	ExecuteClose(ctx context.Context, req executor.CloseRequest) (executor.CloseResponse, error)
}

// NodeCloseHandler serves the execution-node side of remote dispatch. It sits
// behind the node-token middleware; the coordinator is its only caller.
type NodeCloseHandler struct {
	closer CloseExecutor
	logger *slog.Logger
}

// NewNodeCloseHandler creates a NodeCloseHandler.
func NewNodeCloseHandler(closer CloseExecutor, logger *slog.Logger) *NodeCloseHandler {
	return &NodeCloseHandler{
		closer: closer,
		logger: logHandler(logger, "node_close"),
	}
}

// ClosePosition executes the requested close and reports the filled quantity
// and price back to the coordinator.
// POST /api/v1/close-position
func (h *NodeCloseHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req executor.CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" || req.Exchange == "" || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "symbol, exchange and a positive quantity are required")
		return
	}

	resp, err := h.closer.ExecuteClose(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "close execution failed",
			slog.String("position_id", req.PositionID),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
