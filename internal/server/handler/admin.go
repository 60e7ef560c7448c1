package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/crypto"
	"github.com/meridianquant/tradecore/internal/domain"
)

// AdminHandler manages execution topology: per-account exchange bindings and
// execution node registrations, plus the audit log.
type AdminHandler struct {
	exchangeAccounts domain.ExchangeAccountStore
	nodes            domain.NodeStore
	audit            domain.AuditStore
	cipher           *crypto.Cipher
	logger           *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	exchangeAccounts domain.ExchangeAccountStore,
	nodes domain.NodeStore,
	audit domain.AuditStore,
	cipher *crypto.Cipher,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		exchangeAccounts: exchangeAccounts,
		nodes:            nodes,
		audit:            audit,
		cipher:           cipher,
		logger:           logHandler(logger, "admin"),
	}
}

type exchangeAccountRequest struct {
	TenantID   string  `json:"tenant_id"`
	AccountID  string  `json:"account_id"`
	Exchange   string  `json:"exchange"`
	APIKey     string  `json:"api_key"`
	APISecret  string  `json:"api_secret"`
	Passphrase string  `json:"passphrase"`
	MarketType string  `json:"market_type"`
	NodeID     *string `json:"node_id"`
	Enabled    bool    `json:"enabled"`
}

// UpsertExchangeAccount registers or updates one account's exchange binding.
// Credentials are encrypted before they reach the database.
// PUT /api/v1/exchange-accounts
func (h *AdminHandler) UpsertExchangeAccount(w http.ResponseWriter, r *http.Request) {
	var req exchangeAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.AccountID == "" || req.Exchange == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, account_id and exchange are required")
		return
	}

	apiKey, err := h.cipher.Encrypt(req.APIKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	apiSecret, err := h.cipher.Encrypt(req.APISecret)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	passphrase, err := h.cipher.Encrypt(req.Passphrase)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	account := domain.ExchangeAccount{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		AccountID:  req.AccountID,
		Exchange:   req.Exchange,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Passphrase: passphrase,
		MarketType: req.MarketType,
		NodeID:     req.NodeID,
		Enabled:    req.Enabled,
	}
	if err := h.exchangeAccounts.Upsert(r.Context(), account); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditLog(r, "exchange_account_upserted", map[string]any{
		"tenant_id":  req.TenantID,
		"account_id": req.AccountID,
		"exchange":   req.Exchange,
		"node_id":    req.NodeID,
		"enabled":    req.Enabled,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListExchangeAccounts returns a tenant's exchange bindings with credentials
// redacted.
// GET /api/v1/exchange-accounts?tenant_id=...
func (h *AdminHandler) ListExchangeAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	accounts, err := h.exchangeAccounts.List(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type redacted struct {
		ID         string    `json:"id"`
		TenantID   string    `json:"tenant_id"`
		AccountID  string    `json:"account_id"`
		Exchange   string    `json:"exchange"`
		MarketType string    `json:"market_type"`
		NodeID     *string   `json:"node_id"`
		Enabled    bool      `json:"enabled"`
		UpdatedAt  time.Time `json:"updated_at"`
	}
	out := make([]redacted, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, redacted{
			ID:         a.ID,
			TenantID:   a.TenantID,
			AccountID:  a.AccountID,
			Exchange:   a.Exchange,
			MarketType: a.MarketType,
			NodeID:     a.NodeID,
			Enabled:    a.Enabled,
			UpdatedAt:  a.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchange_accounts": out})
}

type nodeRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Enabled bool   `json:"enabled"`
}

// UpsertNode registers or updates an execution node.
// PUT /api/v1/nodes
func (h *AdminHandler) UpsertNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "name and base_url are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	node := domain.ExecutionNode{
		ID:      req.ID,
		Name:    req.Name,
		BaseURL: req.BaseURL,
		Enabled: req.Enabled,
	}
	if err := h.nodes.Upsert(r.Context(), node); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditLog(r, "node_upserted", map[string]any{
		"node_id":  node.ID,
		"name":     node.Name,
		"base_url": node.BaseURL,
		"enabled":  node.Enabled,
	})
	writeJSON(w, http.StatusOK, node)
}

// ListNodes returns all registered execution nodes.
// GET /api/v1/nodes
func (h *AdminHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.nodes.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

// ListAudit returns audit log entries, newest first.
// GET /api/v1/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminHandler) auditLog(r *http.Request, event string, detail map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), event, detail); err != nil {
		h.logger.WarnContext(r.Context(), "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
