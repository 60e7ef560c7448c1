// Package config defines the top-level configuration for the trading core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADECORE_* environment variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Settlement SettlementConfig `toml:"settlement"`
	Node       NodeConfig       `toml:"node"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Secrets    SecretsConfig    `toml:"secrets"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for journal archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExchangeConfig holds exchange connectivity parameters. BaseURLs maps an
// exchange name (e.g. "binance", "okx") to its REST base URL.
type ExchangeConfig struct {
	BaseURLs map[string]string `toml:"base_urls"`
	Timeout  duration          `toml:"timeout"`
}

// MonitorConfig holds position risk monitor parameters.
type MonitorConfig struct {
	ScanInterval duration `toml:"scan_interval"`
	PriceTTL     duration `toml:"price_ttl"`
	CloseTimeout duration `toml:"close_timeout"`
	// LeaderLock enables a Redis lock around each scan cycle so that two
	// replicas never monitor concurrently.
	LeaderLock bool     `toml:"leader_lock"`
	LockTTL    duration `toml:"lock_ttl"`
}

// SettlementConfig holds settlement transaction parameters.
type SettlementConfig struct {
	// DeadlockRetries is how many times a transaction aborted by database
	// lock contention is retried before the failure is surfaced.
	DeadlockRetries int      `toml:"deadlock_retries"`
	RetryBackoff    duration `toml:"retry_backoff"`
	// Currency is the ledger settlement currency.
	Currency string `toml:"currency"`
}

// NodeConfig holds execution-node RPC parameters, used both by the central
// coordinator (as a client) and by node mode (as a server).
type NodeConfig struct {
	SharedSecret string   `toml:"shared_secret"`
	Timeout      duration `toml:"timeout"`
	// Credentials maps an exchange name to fallback API credentials for
	// close requests that carry none. Only node mode reads it; normally each
	// request ships the account's own keys.
	Credentials map[string]NodeCredential `toml:"credentials"`
}

// NodeCredential is one exchange API credential set held by a node.
type NodeCredential struct {
	APIKey     string `toml:"api_key"`
	APISecret  string `toml:"api_secret"`
	Passphrase string `toml:"passphrase"`
}

// ArchiveConfig holds journal archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SecretsConfig holds the key material for encrypting exchange credentials
// at rest. When CredentialKey is empty, credentials are stored as provided.
type SecretsConfig struct {
	CredentialKey string `toml:"credential_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "3s", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "3s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradecore",
			User:          "tradecore",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "",
			Region:         "us-east-1",
			Bucket:         "tradecore-archive",
			UseSSL:         true,
			ForcePathStyle: false,
		},
		Exchange: ExchangeConfig{
			BaseURLs: map[string]string{},
			Timeout:  duration{10 * time.Second},
		},
		Monitor: MonitorConfig{
			ScanInterval: duration{3 * time.Second},
			PriceTTL:     duration{2 * time.Second},
			CloseTimeout: duration{30 * time.Second},
			LeaderLock:   false,
			LockTTL:      duration{30 * time.Second},
		},
		Settlement: SettlementConfig{
			DeadlockRetries: 3,
			RetryBackoff:    duration{100 * time.Millisecond},
			Currency:        "USDT",
		},
		Node: NodeConfig{
			Timeout: duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{},
			RateLimit:       0,
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"close_failed", "close_quantity_mismatch", "settlement_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"server":  true,
	"node":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, server, node, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database — required for every mode except node, which holds no state.
	if mode != "node" {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis — nodes are stateless and never touch it.
	if mode != "node" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Monitor
	if mode == "monitor" || mode == "full" {
		if c.Monitor.ScanInterval.Duration <= 0 {
			errs = append(errs, "monitor: scan_interval must be > 0")
		}
		if c.Monitor.PriceTTL.Duration <= 0 {
			errs = append(errs, "monitor: price_ttl must be > 0")
		}
		if c.Monitor.CloseTimeout.Duration <= 0 {
			errs = append(errs, "monitor: close_timeout must be > 0")
		}
		if c.Monitor.LeaderLock && c.Monitor.LockTTL.Duration <= 0 {
			errs = append(errs, "monitor: lock_ttl must be > 0 when leader_lock is enabled")
		}
	}

	// Settlement
	if c.Settlement.DeadlockRetries < 0 {
		errs = append(errs, "settlement: deadlock_retries must be >= 0")
	}
	if c.Settlement.RetryBackoff.Duration < 0 {
		errs = append(errs, "settlement: retry_backoff must be >= 0")
	}

	// Node — the shared secret is mandatory for node mode and for any mode
	// that may dispatch to remote nodes.
	if mode == "node" && c.Node.SharedSecret == "" {
		errs = append(errs, "node: shared_secret is required for node mode")
	}
	if c.Node.Timeout.Duration <= 0 {
		errs = append(errs, "node: timeout must be > 0")
	}

	// Exchange
	if c.Exchange.Timeout.Duration <= 0 {
		errs = append(errs, "exchange: timeout must be > 0")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0 when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
	}

	// Server
	if c.Server.Enabled || mode == "node" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
