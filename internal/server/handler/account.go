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

// AccountHandler serves ledger account queries and cash operations.
type AccountHandler struct {
	accounts   domain.AccountStore
	journal    domain.TransactionStore
	ledger     *service.LedgerService
	transactor domain.Transactor
	logger     *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(
	accounts domain.AccountStore,
	journal domain.TransactionStore,
	ledger *service.LedgerService,
	transactor domain.Transactor,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		accounts:   accounts,
		journal:    journal,
		ledger:     ledger,
		transactor: transactor,
		logger:     logHandler(logger, "accounts"),
	}
}

// GetAccount returns the ledger row for one (tenant, account, currency).
// GET /api/v1/accounts?tenant_id=...&account_id=...&currency=...
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, accountID, currency := q.Get("tenant_id"), q.Get("account_id"), q.Get("currency")
	if tenantID == "" || accountID == "" || currency == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, account_id and currency are required")
		return
	}

	acct, err := h.accounts.Get(r.Context(), tenantID, accountID, currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ListTransactions returns the transaction journal for one account, newest
// first.
// GET /api/v1/accounts/transactions?tenant_id=...&account_id=...
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, accountID := q.Get("tenant_id"), q.Get("account_id")
	if tenantID == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and account_id are required")
		return
	}

	txs, err := h.journal.ListByAccount(r.Context(), tenantID, accountID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type cashRequest struct {
	TenantID  string  `json:"tenant_id"`
	AccountID string  `json:"account_id"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	SourceID  string  `json:"source_id"`
}

// Deposit credits an account.
// POST /api/v1/accounts/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cashOp(w, r, true)
}

// Withdraw debits an account's available balance.
// POST /api/v1/accounts/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cashOp(w, r, false)
}

func (h *AccountHandler) cashOp(w http.ResponseWriter, r *http.Request, deposit bool) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.AccountID == "" || req.Currency == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, account_id and currency are required")
		return
	}
	if req.SourceID == "" {
		req.SourceID = uuid.New().String()
	}

	var acct domain.Account
	err := h.transactor.InTx(r.Context(), func(ctx context.Context) error {
		var err error
		if deposit {
			acct, err = h.ledger.Deposit(ctx, req.TenantID, req.AccountID, req.Currency, req.Amount, req.SourceID)
		} else {
			acct, err = h.ledger.Withdraw(ctx, req.TenantID, req.AccountID, req.Currency, req.Amount, req.SourceID)
		}
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
