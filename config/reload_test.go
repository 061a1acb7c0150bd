package config

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgtx/log"
)

const baseConfig = `
logging:
  level: info
transactions:
  max_size: 10
persistence:
  driver: sqlite
  sqlite:
    path: /var/lib/msgtx/a.db
`

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msgtx.yaml")
	writeConfig(t, path, baseConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	return NewManager(cfg, path), path
}

func TestReloadableChange(t *testing.T) {
	m, path := newManager(t)
	var got atomic.Int64
	Apply(m, func(n int) { got.Store(int64(n)) })
	t.Cleanup(func() { _ = log.SetLevel("info") })

	writeConfig(t, path, `
logging:
  level: debug
transactions:
  max_size: 20
persistence:
  driver: sqlite
  sqlite:
    path: /var/lib/msgtx/a.db
`)
	require.NoError(t, m.TryReload())
	assert.Equal(t, "debug", m.Get().Logging.Level)
	assert.Equal(t, 20, m.Get().Transactions.MaxSize)
	assert.Equal(t, int64(20), got.Load())
	assert.Equal(t, "debug", log.Level())
}

func TestReloadCallbacksRunInOrder(t *testing.T) {
	m, path := newManager(t)
	var calls []string
	m.OnReload(func(cfg *Config) {
		calls = append(calls, "first")
		// registering from inside a callback must not block the reload
		m.OnReload(func(*Config) { calls = append(calls, "late") })
	})
	m.OnReload(func(cfg *Config) { calls = append(calls, "second") })

	writeConfig(t, path, `
logging:
  level: info
transactions:
  max_size: 30
persistence:
  driver: sqlite
  sqlite:
    path: /var/lib/msgtx/a.db
`)
	require.NoError(t, m.TryReload())
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	require.NoError(t, m.TryReload())
	assert.Equal(t, []string{"first", "second", "late"}, calls)
}

func TestStaticChangeRequiresRestart(t *testing.T) {
	m, path := newManager(t)
	writeConfig(t, path, `
logging:
  level: debug
transactions:
  max_size: 10
persistence:
  driver: sqlite
  sqlite:
    path: /var/lib/msgtx/b.db
`)
	err := m.TryReload()
	assert.ErrorIs(t, err, ErrRequiresRestart)
	// nothing from the rejected file is applied
	assert.Equal(t, "info", m.Get().Logging.Level)
	assert.Equal(t, "/var/lib/msgtx/a.db", m.Get().Persistence.SQLite.Path)
}

func TestInvalidReloadKeepsConfig(t *testing.T) {
	m, path := newManager(t)
	writeConfig(t, path, "logging: [not a map")
	require.Error(t, m.TryReload())
	assert.Equal(t, 10, m.Get().Transactions.MaxSize)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	m, path := newManager(t)
	v := NewViper(path)
	require.NoError(t, v.ReadInConfig())

	w := NewWatcher(v, m)
	w.Start()
	t.Cleanup(w.Stop)

	writeConfig(t, path, `
logging:
  level: info
transactions:
  max_size: 99
persistence:
  driver: sqlite
  sqlite:
    path: /var/lib/msgtx/a.db
`)
	require.Eventually(t, func() bool {
		return m.Get().Transactions.MaxSize == 99
	}, 5*time.Second, 20*time.Millisecond)
}
