package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/service"
)

// PositionHandler serves position queries and manual position operations.
type PositionHandler struct {
	positions  domain.PositionStore
	changes    domain.PositionChangeStore
	svc        *service.PositionService
	transactor domain.Transactor
	logger     *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(
	positions domain.PositionStore,
	changes domain.PositionChangeStore,
	svc *service.PositionService,
	transactor domain.Transactor,
	logger *slog.Logger,
) *PositionHandler {
	return &PositionHandler{
		positions:  positions,
		changes:    changes,
		svc:        svc,
		transactor: transactor,
		logger:     logHandler(logger, "positions"),
	}
}

// ListPositions returns positions for one account.
// GET /api/v1/positions?tenant_id=...&account_id=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, accountID := q.Get("tenant_id"), q.Get("account_id")
	if tenantID == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and account_id are required")
		return
	}

	positions, err := h.positions.ListByAccount(r.Context(), tenantID, accountID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPosition returns one position by ID.
// GET /api/v1/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ListChanges returns the change journal for one position, oldest first.
// GET /api/v1/positions/{id}/changes
func (h *PositionHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := h.changes.ListByPosition(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

type triggersRequest struct {
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
}

// SetTriggers replaces a position's stop-loss and take-profit thresholds.
// PUT /api/v1/positions/{id}/triggers
func (h *PositionHandler) SetTriggers(w http.ResponseWriter, r *http.Request) {
	var req triggersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := h.svc.SetTriggers(r.Context(), pathParam(r, "id"), req.StopLoss, req.TakeProfit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type freezeRequest struct {
	Quantity float64 `json:"quantity"`
	SourceID string  `json:"source_id"`
}

// Freeze moves quantity from available to frozen.
// POST /api/v1/positions/{id}/freeze
func (h *PositionHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.freezeOp(w, r, true)
}

// Unfreeze moves quantity from frozen back to available.
// POST /api/v1/positions/{id}/unfreeze
func (h *PositionHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.freezeOp(w, r, false)
}

func (h *PositionHandler) freezeOp(w http.ResponseWriter, r *http.Request, freeze bool) {
	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" {
		req.SourceID = uuid.New().String()
	}

	var pos domain.Position
	err := h.transactor.InTx(r.Context(), func(ctx context.Context) error {
		var err error
		if freeze {
			pos, err = h.svc.Freeze(ctx, pathParam(r, "id"), req.Quantity, domain.SourceManual, req.SourceID)
		} else {
			pos, err = h.svc.Unfreeze(ctx, pathParam(r, "id"), req.Quantity, domain.SourceManual, req.SourceID)
		}
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}
