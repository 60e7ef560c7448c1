package handler

import (
	"log/slog"
	"net/http"

	"github.com/meridianquant/tradecore/internal/domain"
)

// OrderHandler serves read-only order and fill queries.
type OrderHandler struct {
	orders domain.OrderStore
	fills  domain.FillStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders domain.OrderStore, fills domain.FillStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		fills:  fills,
		logger: logHandler(logger, "orders"),
	}
}

// ListOrders returns orders for one account, newest first.
// GET /api/v1/orders?tenant_id=...&account_id=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, accountID := q.Get("tenant_id"), q.Get("account_id")
	if tenantID == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and account_id are required")
		return
	}

	orders, err := h.orders.ListByAccount(r.Context(), tenantID, accountID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder returns one order by ID.
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListFills returns the fills for one order, oldest first.
// GET /api/v1/orders/{id}/fills
func (h *OrderHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.fills.ListByOrder(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": fills})
}
