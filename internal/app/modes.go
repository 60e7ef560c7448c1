package app

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianquant/tradecore/internal/archive"
	"github.com/meridianquant/tradecore/internal/exchange"
	"github.com/meridianquant/tradecore/internal/executor"
	"github.com/meridianquant/tradecore/internal/metrics"
	"github.com/meridianquant/tradecore/internal/monitor"
	"github.com/meridianquant/tradecore/internal/oracle"
	"github.com/meridianquant/tradecore/internal/server"
	"github.com/meridianquant/tradecore/internal/server/handler"
	"github.com/meridianquant/tradecore/internal/server/ws"
	"github.com/meridianquant/tradecore/internal/service"
)

// monitorLockKey is the distributed lock behind single-scanner election.
const monitorLockKey = "monitor:scan"

// services bundles the domain services the coordinator modes share.
type services struct {
	positions  *service.PositionService
	ledger     *service.LedgerService
	settlement *service.SettlementCoordinator
	router     *executor.Router
	oracle     *oracle.Oracle
}

// buildServices constructs the settlement and execution stack on top of the
// wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	positionSvc := service.NewPositionService(deps.Positions, deps.Changes, a.logger)
	ledgerSvc := service.NewLedgerService(deps.Accounts, deps.Journal, a.logger)
	settlement := service.NewSettlementCoordinator(
		deps.Transactor,
		deps.Fills,
		deps.Journal,
		positionSvc,
		ledgerSvc,
		deps.Audit,
		deps.SignalBus,
		deps.Metrics,
		a.cfg.Settlement.Currency,
		a.logger,
	)

	nodeClient := executor.NewNodeClient(a.cfg.Node.SharedSecret, a.cfg.Node.Timeout.Duration)
	router := executor.NewRouter(
		deps.ExchangeAccounts,
		deps.Nodes,
		deps.Orders,
		deps.Positions,
		deps.Transactor,
		deps.Exchange,
		nodeClient,
		settlement,
		deps.Cipher,
		deps.Notifier,
		a.logger,
	)

	return &services{
		positions:  positionSvc,
		ledger:     ledgerSvc,
		settlement: settlement,
		router:     router,
		oracle:     oracle.New(deps.Exchange, deps.PriceCache, a.cfg.Monitor.PriceTTL.Duration, a.logger),
	}
}

// buildScheduler constructs the risk monitor scan loop.
func (a *App) buildScheduler(deps *Dependencies, svcs *services) *monitor.Scheduler {
	lockKey := ""
	if a.cfg.Monitor.LeaderLock {
		lockKey = monitorLockKey
	}
	return monitor.NewScheduler(
		monitor.Config{
			ScanInterval: a.cfg.Monitor.ScanInterval.Duration,
			CloseTimeout: a.cfg.Monitor.CloseTimeout.Duration,
			LeaderLock:   lockKey,
			LockTTL:      a.cfg.Monitor.LockTTL.Duration,
		},
		deps.Positions,
		svcs.oracle,
		svcs.router,
		deps.SignalBus,
		deps.LockManager,
		deps.Metrics,
		a.logger,
	)
}

// MonitorMode runs the position risk monitor, plus the API server when
// enabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	sched := a.buildScheduler(deps, svcs)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	a.startArchiveRunner(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, sched)
	}

	return g.Wait()
}

// ServerMode runs the API server without the scan loop, for deployments that
// separate the API tier from the monitor.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startArchiveRunner(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// NodeMode runs a stateless execution node: the close-position endpoint
// backed by this node's own exchange credentials.
func (a *App) NodeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting node mode")

	creds := make(map[string]exchange.Credentials, len(a.cfg.Node.Credentials))
	for name, c := range a.cfg.Node.Credentials {
		creds[strings.ToLower(name)] = exchange.Credentials{
			APIKey:     c.APIKey,
			APISecret:  c.APISecret,
			Passphrase: c.Passphrase,
		}
	}
	closer := executor.NewLocalCloser(deps.Exchange, creds, a.logger)

	srv := server.NewNodeServer(
		server.Config{Port: a.cfg.Server.Port},
		a.cfg.Node.SharedSecret,
		handler.NewNodeCloseHandler(closer, a.logger),
		handler.NewHealthHandler(deps.Health, a.logger),
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// FullMode runs the monitor and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	sched := a.buildScheduler(deps, svcs)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	a.startArchiveRunner(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs, sched)

	return g.Wait()
}

// startArchiveRunner adds the periodic journal archival goroutine when cold
// storage is wired.
func (a *App) startArchiveRunner(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}
	runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.Interval.Duration, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		return runner.Run(ctx)
	})
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// errgroup. sched may be nil when the process runs no scan loop; the monitor
// endpoints then report unavailable.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	sched *monitor.Scheduler,
) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var monitorCtrl handler.MonitorController
	if sched != nil {
		monitorCtrl = sched
	}
	var archives *handler.ArchiveHandler
	if deps.BlobReader != nil {
		archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Positions:   handler.NewPositionHandler(deps.Positions, deps.Changes, svcs.positions, deps.Transactor, a.logger),
		Accounts:    handler.NewAccountHandler(deps.Accounts, deps.Journal, svcs.ledger, deps.Transactor, a.logger),
		Orders:      handler.NewOrderHandler(deps.Orders, deps.Fills, a.logger),
		Monitor:     handler.NewMonitorHandler(monitorCtrl, a.logger),
		Settlements: handler.NewSettlementHandler(svcs.settlement, a.logger),
		Admin:       handler.NewAdminHandler(deps.ExchangeAccounts, deps.Nodes, deps.Audit, deps.Cipher, a.logger),
		Archives:    archives,
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		handlers,
		hub,
		metrics.Handler(),
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
