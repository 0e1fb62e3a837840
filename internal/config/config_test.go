package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBase(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadFrom_DefaultsFillGaps(t *testing.T) {
	dir := writeBase(t, `
db:
  host: localhost
  port: 5432
`)

	cfg, err := LoadFrom("", dir)
	require.NoError(t, err)

	assert.Equal(t, "00:05", cfg.Scheduler.RunAt)
	assert.True(t, cfg.Scheduler.RunOnStartup)
	assert.Equal(t, LedgerPostgres, cfg.Ledger.Backend)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Server.AdminRoutes)
}

func TestLoadFrom_YAMLValues(t *testing.T) {
	dir := writeBase(t, `
scheduler:
  run_at: "03:30"
  timezone: UTC
  run_on_startup: false
outbox:
  interval: 500ms
  batch_size: 10
`)

	cfg, err := LoadFrom("", dir)
	require.NoError(t, err)

	at, err := cfg.RunAt()
	require.NoError(t, err)
	assert.Equal(t, 3, at.Hour)
	assert.Equal(t, 30, at.Minute)
	assert.False(t, cfg.Scheduler.RunOnStartup)
	assert.Equal(t, 500*time.Millisecond, cfg.Outbox.Interval)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	dir := writeBase(t, "redis:\n  addr: localhost:6379\n")
	t.Setenv("UPDATER_RUN_AT", "23:59")
	t.Setenv("UPDATER_TIMEZONE", "Asia/Tokyo")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ADMIN_ROUTES", "true")

	cfg, err := LoadFrom("", dir)
	require.NoError(t, err)

	assert.Equal(t, "23:59", cfg.Scheduler.RunAt)
	assert.Equal(t, "Asia/Tokyo", cfg.Scheduler.Timezone)
	assert.Equal(t, LedgerRedis, cfg.Ledger.Backend)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.AdminRoutes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad run_at", func(c *Config) { c.Scheduler.RunAt = "25:00" }, "invalid run time"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "invalid scheduler timezone"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "etcd" }, "unknown ledger backend"},
		{"redis without addr", func(c *Config) { c.Ledger.Backend = LedgerRedis }, "requires redis.addr"},
		{"zero batch", func(c *Config) { c.Outbox.BatchSize = 0 }, "batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
