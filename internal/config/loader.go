package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADECORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADECORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "TRADECORE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "TRADECORE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRADECORE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRADECORE_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRADECORE_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRADECORE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRADECORE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "TRADECORE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRADECORE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRADECORE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADECORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADECORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADECORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADECORE_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "TRADECORE_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADECORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADECORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADECORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADECORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADECORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADECORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADECORE_S3_FORCE_PATH_STYLE")

	// ── Exchange ──
	setDuration(&cfg.Exchange.Timeout, "TRADECORE_EXCHANGE_TIMEOUT")

	// ── Monitor ──
	setDuration(&cfg.Monitor.ScanInterval, "TRADECORE_MONITOR_SCAN_INTERVAL")
	setDuration(&cfg.Monitor.PriceTTL, "TRADECORE_MONITOR_PRICE_TTL")
	setDuration(&cfg.Monitor.CloseTimeout, "TRADECORE_MONITOR_CLOSE_TIMEOUT")
	setBool(&cfg.Monitor.LeaderLock, "TRADECORE_MONITOR_LEADER_LOCK")
	setDuration(&cfg.Monitor.LockTTL, "TRADECORE_MONITOR_LOCK_TTL")

	// ── Settlement ──
	setInt(&cfg.Settlement.DeadlockRetries, "TRADECORE_SETTLEMENT_DEADLOCK_RETRIES")
	setDuration(&cfg.Settlement.RetryBackoff, "TRADECORE_SETTLEMENT_RETRY_BACKOFF")
	setStr(&cfg.Settlement.Currency, "TRADECORE_SETTLEMENT_CURRENCY")

	// ── Node ──
	setStr(&cfg.Node.SharedSecret, "TRADECORE_NODE_SHARED_SECRET")
	setDuration(&cfg.Node.Timeout, "TRADECORE_NODE_TIMEOUT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADECORE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TRADECORE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TRADECORE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADECORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADECORE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADECORE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADECORE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TRADECORE_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADECORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADECORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADECORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADECORE_NOTIFY_EVENTS")

	// ── Secrets ──
	setStr(&cfg.Secrets.CredentialKey, "TRADECORE_SECRETS_CREDENTIAL_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADECORE_MODE")
	setStr(&cfg.LogLevel, "TRADECORE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
