package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/server/handler"
	"github.com/meridianquant/tradecore/internal/server/middleware"
	"github.com/meridianquant/tradecore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client, 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Positions   *handler.PositionHandler
	Accounts    *handler.AccountHandler
	Orders      *handler.OrderHandler
	Monitor     *handler.MonitorHandler
	Settlements *handler.SettlementHandler
	Admin       *handler.AdminHandler
	Archives    *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the trading backend.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. API routes sit behind
// the auth, rate-limit, logging and CORS middleware; health, metrics and the
// WebSocket endpoint stay outside auth.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	metricsHandler http.Handler,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	api := http.NewServeMux()

	// Position endpoints.
	api.HandleFunc("GET /api/v1/positions", handlers.Positions.ListPositions)
	api.HandleFunc("GET /api/v1/positions/{id}", handlers.Positions.GetPosition)
	api.HandleFunc("GET /api/v1/positions/{id}/changes", handlers.Positions.ListChanges)
	api.HandleFunc("PUT /api/v1/positions/{id}/triggers", handlers.Positions.SetTriggers)
	api.HandleFunc("POST /api/v1/positions/{id}/freeze", handlers.Positions.Freeze)
	api.HandleFunc("POST /api/v1/positions/{id}/unfreeze", handlers.Positions.Unfreeze)

	// Account endpoints.
	api.HandleFunc("GET /api/v1/accounts", handlers.Accounts.GetAccount)
	api.HandleFunc("GET /api/v1/accounts/transactions", handlers.Accounts.ListTransactions)
	api.HandleFunc("POST /api/v1/accounts/deposit", handlers.Accounts.Deposit)
	api.HandleFunc("POST /api/v1/accounts/withdraw", handlers.Accounts.Withdraw)

	// Order endpoints.
	api.HandleFunc("GET /api/v1/orders", handlers.Orders.ListOrders)
	api.HandleFunc("GET /api/v1/orders/{id}", handlers.Orders.GetOrder)
	api.HandleFunc("GET /api/v1/orders/{id}/fills", handlers.Orders.ListFills)

	// Monitor endpoints.
	api.HandleFunc("GET /api/v1/monitor/stats", handlers.Monitor.GetStats)
	api.HandleFunc("POST /api/v1/monitor/scan", handlers.Monitor.TriggerScan)

	// Settlement endpoint.
	api.HandleFunc("POST /api/v1/settlements", handlers.Settlements.SettleFill)

	// Admin endpoints.
	api.HandleFunc("PUT /api/v1/exchange-accounts", handlers.Admin.UpsertExchangeAccount)
	api.HandleFunc("GET /api/v1/exchange-accounts", handlers.Admin.ListExchangeAccounts)
	api.HandleFunc("PUT /api/v1/nodes", handlers.Admin.UpsertNode)
	api.HandleFunc("GET /api/v1/nodes", handlers.Admin.ListNodes)
	api.HandleFunc("GET /api/v1/audit", handlers.Admin.ListAudit)

	// Archive endpoints.
	if handlers.Archives != nil {
		api.HandleFunc("GET /api/v1/archives", handlers.Archives.ListArchives)
		api.HandleFunc("GET /api/v1/archives/download", handlers.Archives.GetArchive)
	}

	// Build the API middleware chain, innermost first.
	var apiHandler http.Handler = api
	apiHandler = middleware.Auth(cfg.APIKey)(apiHandler)
	if limiter != nil && cfg.RateLimit > 0 {
		apiHandler = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", apiHandler)
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: newHTTPServer(cfg.Port, h),
		logger:     logger,
	}
}

// NewNodeServer creates the minimal server an execution node runs: the
// close-position endpoint behind shared-secret auth, plus a health check.
func NewNodeServer(
	cfg Config,
	sharedSecret string,
	closeHandler *handler.NodeCloseHandler,
	health *handler.HealthHandler,
	logger *slog.Logger,
) *Server {
	closes := http.NewServeMux()
	closes.HandleFunc("POST /api/v1/close-position", closeHandler.ClosePosition)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", middleware.NodeAuth(sharedSecret)(closes))
	mux.HandleFunc("GET /api/health", health.HealthCheck)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)

	return &Server{
		httpServer: newHTTPServer(cfg.Port, h),
		logger:     logger,
	}
}

func newHTTPServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
