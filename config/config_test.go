package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 100000, cfg.Transactions.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Transactions.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Transactions.MonitorTick)
	assert.Equal(t, DriverNull, cfg.Persistence.Driver)
	assert.True(t, cfg.Persistence.Supports1PC)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgtx.yaml")
	writeConfig(t, path, `
logging:
  level: debug
  format: console
transactions:
  max_size: -1
  timeout: 2m
persistence:
  driver: mysql
  supports_1pc: false
  mysql:
    addr: db:3306
    user: msgtx
    database: store
metrics:
  listen: ":9100"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, -1, cfg.Transactions.MaxSize)
	assert.Equal(t, 2*time.Minute, cfg.Transactions.Timeout)
	assert.Equal(t, DriverMySQL, cfg.Persistence.Driver)
	assert.False(t, cfg.Persistence.Supports1PC)
	assert.Equal(t, "db:3306", cfg.Persistence.MySQL.Addr)
	assert.Equal(t, "store", cfg.Persistence.MySQL.Database)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MSGTX_TRANSACTIONS_MAX_SIZE", "42")
	t.Setenv("MSGTX_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Transactions.MaxSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, `
logging:
  level: loud
transactions:
  max_size: 0
persistence:
  driver: oracle
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
	assert.Contains(t, err.Error(), "max_size")
	assert.Contains(t, err.Error(), "invalid persistence driver")
}

func TestValidateSQLitePath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Persistence.Driver = DriverSQLite
	cfg.Persistence.SQLite.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "persistence.sqlite.path")
}

func TestIsReloadable(t *testing.T) {
	assert.True(t, IsReloadable("logging.level"))
	assert.True(t, IsReloadable("transactions.max_size"))
	assert.False(t, IsReloadable("persistence.driver"))
}
