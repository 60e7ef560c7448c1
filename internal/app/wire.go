package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/meridianquant/tradecore/internal/blob/s3"
	"github.com/meridianquant/tradecore/internal/cache/redis"
	"github.com/meridianquant/tradecore/internal/config"
	"github.com/meridianquant/tradecore/internal/crypto"
	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/exchange"
	"github.com/meridianquant/tradecore/internal/metrics"
	"github.com/meridianquant/tradecore/internal/notify"
	"github.com/meridianquant/tradecore/internal/server/handler"
	"github.com/meridianquant/tradecore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Positions        domain.PositionStore
	Changes          domain.PositionChangeStore
	Accounts         domain.AccountStore
	Journal          domain.TransactionStore
	Orders           domain.OrderStore
	Fills            domain.FillStore
	ExchangeAccounts domain.ExchangeAccountStore
	Nodes            domain.NodeStore
	Audit            domain.AuditStore
	Transactor       domain.Transactor

	// Coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Cold storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Clients and cross-cutting
	Exchange *exchange.Client
	Cipher   *crypto.Cipher
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// Health probes, keyed by dependency name.
	Health map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// Node mode wires only exchange connectivity and notifications; nodes hold no
// financial state and never touch Postgres, Redis, or S3.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Exchange: exchange.NewClient(cfg.Exchange.BaseURLs, cfg.Exchange.Timeout.Duration),
		Cipher:   crypto.NewCipher(cfg.Secrets.CredentialKey),
		Notifier: buildNotifier(cfg, logger),
		Health:   make(map[string]handler.Pinger),
	}

	if mode == "node" {
		return deps, cleanup, nil
	}

	deps.Metrics = metrics.New(prometheus.DefaultRegisterer)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Changes = postgres.NewPositionChangeStore(pool)
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Journal = postgres.NewTransactionStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Fills = postgres.NewFillStore(pool)
	deps.ExchangeAccounts = postgres.NewExchangeAccountStore(pool)
	deps.Nodes = postgres.NewNodeStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	transactor := postgres.NewTransactor(pool, cfg.Settlement.DeadlockRetries, cfg.Settlement.RetryBackoff.Duration)
	transactor.OnRetry = deps.Metrics.DeadlockRetries.Inc
	deps.Transactor = transactor
	deps.Health["postgres"] = pgClient

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// The cache entry expiry only bounds garbage; freshness is decided by the
	// price oracle against the configured TTL.
	deps.PriceCache = redis.NewPriceCache(redisClient, 10*cfg.Monitor.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
	deps.Health["redis"] = redisClient

	// --- S3 cold storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Journal, deps.Changes, deps.Audit, deps.Metrics)
	}

	return deps, cleanup, nil
}

// buildNotifier assembles the notification fan-out from configured channels.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
