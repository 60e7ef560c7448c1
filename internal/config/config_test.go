package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ScanInterval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PriceTTL.Duration)
	assert.Equal(t, 3, cfg.Settlement.DeadlockRetries)
	assert.Equal(t, "USDT", cfg.Settlement.Currency)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "batch" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"empty database host", func(c *Config) { c.Database.Host = "" }, "database: host"},
		{"bad database port", func(c *Config) { c.Database.Port = 0 }, "database: port"},
		{"pool min above max", func(c *Config) { c.Database.PoolMinConns = 50 }, "pool_min_conns"},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"zero scan interval", func(c *Config) { c.Monitor.ScanInterval.Duration = 0 }, "scan_interval"},
		{"zero price ttl", func(c *Config) { c.Monitor.PriceTTL.Duration = 0 }, "price_ttl"},
		{"negative deadlock retries", func(c *Config) { c.Settlement.DeadlockRetries = -1 }, "deadlock_retries"},
		{"lock ttl required with leader lock", func(c *Config) {
			c.Monitor.LeaderLock = true
			c.Monitor.LockTTL.Duration = 0
		}, "lock_ttl"},
		{"archive needs bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDSNReplacesHostParams(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Host = ""
	cfg.Database.Port = 0
	cfg.Database.DSN = "postgres://u:p@db:5432/tradecore"
	require.NoError(t, cfg.Validate())
}

func TestValidateNodeMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "node"
	// Node mode holds no state: database and Redis settings are irrelevant.
	cfg.Database = DatabaseConfig{}
	cfg.Redis = RedisConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared_secret is required")
	assert.NotContains(t, err.Error(), "database:")
	assert.NotContains(t, err.Error(), "redis:")

	// Credentials are optional: close requests carry the account's own keys.
	cfg.Node.SharedSecret = "s3cret"
	cfg.Node.Credentials = nil
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"
log_level = "debug"

[database]
host = "db.internal"
password = "hunter2"

[monitor]
scan_interval = "5s"

[node.credentials.okx]
api_key = "k1"
api_secret = "s1"
passphrase = "p1"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, 5*time.Second, cfg.Monitor.ScanInterval.Duration)
	// Untouched values keep their defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PriceTTL.Duration)

	require.Contains(t, cfg.Node.Credentials, "okx")
	assert.Equal(t, "k1", cfg.Node.Credentials["okx"].APIKey)
	assert.Equal(t, "p1", cfg.Node.Credentials["okx"].Passphrase)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
password = "from-file"
`), 0o600))

	t.Setenv("TRADECORE_DATABASE_PASSWORD", "from-env")
	t.Setenv("TRADECORE_MODE", "server")
	t.Setenv("TRADECORE_MONITOR_SCAN_INTERVAL", "7s")
	t.Setenv("TRADECORE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 7*time.Second, cfg.Monitor.ScanInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
