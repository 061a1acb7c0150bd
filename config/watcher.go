package config

import (
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"msgtx/log"
)

// Watcher reloads the Manager whenever the configuration file changes.
type Watcher struct {
	viper          *viper.Viper
	manager        *Manager
	debounceMu     sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

func NewWatcher(v *viper.Viper, m *Manager) *Watcher {
	return &Watcher{
		viper:          v,
		manager:        m,
		debouncePeriod: 100 * time.Millisecond,
	}
}

// Start begins watching the file viper was configured with.
func (w *Watcher) Start() {
	w.viper.OnConfigChange(w.onConfigChange)
	w.viper.WatchConfig()
	log.L().Info("config watcher started", zap.String("watch_path", w.viper.ConfigFileUsed()))
}

// Stop cancels a pending reload. viper offers no way to stop the watch itself.
func (w *Watcher) Stop() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

func (w *Watcher) onConfigChange(e fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	if e.Has(fsnotify.Remove) {
		log.L().Error("config file removed", zap.String("file", e.Name), zap.Bool("preserved_config", true))
		return
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		// failures are logged by TryReload
		if err := w.manager.TryReload(); err != nil && !errors.Is(err, ErrRequiresRestart) {
			log.L().Debug("reload skipped", zap.Error(err))
		}
	})
}

// Apply wires the reloadable keys to the running process: the log level and
// the transaction size limit applied through setMaxSize.
func Apply(m *Manager, setMaxSize func(int)) {
	m.OnReload(func(cfg *Config) {
		if err := log.SetLevel(cfg.Logging.Level); err != nil {
			log.L().Error("applying reloaded log level", zap.Error(err))
		}
		setMaxSize(cfg.Transactions.MaxSize)
	})
}
