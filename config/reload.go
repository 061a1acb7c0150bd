package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"msgtx/log"
)

// ErrRequiresRestart is returned when static configuration changes are detected.
var ErrRequiresRestart = errors.New("configuration change requires application restart")

// Manager holds the current configuration and swaps it on reload.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	onReload   []func(*Config)
}

func NewManager(cfg *Config, configPath string) *Manager {
	return &Manager{config: cfg, configPath: configPath}
}

// OnReload registers fn to be called with the new configuration after every
// successful reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// TryReload re-reads the file. Parse or validation failures and changes to
// static keys keep the current configuration.
func (m *Manager) TryReload() error {
	newCfg, err := Load(m.configPath)
	if err != nil {
		log.L().Error("configuration reload failed",
			zap.Error(err),
			zap.String("reason", "parse_error"),
			zap.Bool("preserved_config", true))
		return fmt.Errorf("parse failed: %w", err)
	}

	m.mu.Lock()
	oldCfg := m.config
	if changes := detectStaticChanges(oldCfg, newCfg); len(changes) > 0 {
		m.mu.Unlock()
		log.L().Warn("configuration change requires restart",
			zap.Strings("changed_keys", changes),
			zap.String("reason", getRestartReason(changes[0])))
		return ErrRequiresRestart
	}
	m.config = newCfg
	callbacks := make([]func(*Config), len(m.onReload))
	copy(callbacks, m.onReload)
	m.mu.Unlock()

	if changed := changedReloadableKeys(oldCfg, newCfg); len(changed) > 0 {
		log.L().Info("configuration reloaded", zap.Strings("changed_keys", changed))
	}
	for _, fn := range callbacks {
		fn(newCfg)
	}
	return nil
}

func changedReloadableKeys(oldCfg, newCfg *Config) []string {
	var keys []string
	if oldCfg.Logging.Level != newCfg.Logging.Level {
		keys = append(keys, "logging.level")
	}
	if oldCfg.Transactions.MaxSize != newCfg.Transactions.MaxSize {
		keys = append(keys, "transactions.max_size")
	}
	return keys
}

func detectStaticChanges(oldCfg, newCfg *Config) []string {
	var changes []string
	if oldCfg.Logging.Format != newCfg.Logging.Format {
		changes = append(changes, "logging.format")
	}
	if oldCfg.Logging.File != newCfg.Logging.File {
		changes = append(changes, "logging.file")
	}
	if oldCfg.Transactions.Timeout != newCfg.Transactions.Timeout {
		changes = append(changes, "transactions.timeout")
	}
	if oldCfg.Transactions.MonitorTick != newCfg.Transactions.MonitorTick {
		changes = append(changes, "transactions.monitor_tick")
	}
	if oldCfg.Persistence.Driver != newCfg.Persistence.Driver {
		changes = append(changes, "persistence.driver")
	}
	if oldCfg.Persistence.Supports1PC != newCfg.Persistence.Supports1PC {
		changes = append(changes, "persistence.supports_1pc")
	}
	if oldCfg.Persistence.SQLite.Path != newCfg.Persistence.SQLite.Path {
		changes = append(changes, "persistence.sqlite.path")
	}
	if !reflect.DeepEqual(oldCfg.Persistence.MySQL, newCfg.Persistence.MySQL) {
		changes = append(changes, "persistence.mysql")
	}
	if oldCfg.Metrics.Listen != newCfg.Metrics.Listen {
		changes = append(changes, "metrics.listen")
	}
	return changes
}
