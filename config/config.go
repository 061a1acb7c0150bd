// Package config loads the msgtx configuration file with viper and keeps it
// current while the process runs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"msgtx/log"
	"msgtx/persistence/sqlstore"
)

const envPrefix = "MSGTX"

// Persistence drivers.
const (
	DriverNull   = "null"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Logging      log.Config         `mapstructure:"logging" yaml:"logging"`
	Transactions TransactionsConfig `mapstructure:"transactions" yaml:"transactions"`
	Persistence  PersistenceConfig  `mapstructure:"persistence" yaml:"persistence"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

type TransactionsConfig struct {
	// MaxSize bounds IncrementCurrentSize per transaction; -1 is unlimited
	MaxSize     int           `mapstructure:"max_size" yaml:"max_size"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MonitorTick time.Duration `mapstructure:"monitor_tick" yaml:"monitor_tick"`
}

type PersistenceConfig struct {
	Driver      string               `mapstructure:"driver" yaml:"driver"`
	Supports1PC bool                 `mapstructure:"supports_1pc" yaml:"supports_1pc"`
	SQLite      SQLiteConfig         `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL       sqlstore.MySQLConfig `mapstructure:"mysql" yaml:"mysql"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it
	Listen string `mapstructure:"listen" yaml:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)

	v.SetDefault("transactions.max_size", 100000)
	v.SetDefault("transactions.timeout", 30*time.Second)
	v.SetDefault("transactions.monitor_tick", 10*time.Second)

	v.SetDefault("persistence.driver", DriverNull)
	v.SetDefault("persistence.supports_1pc", true)
	v.SetDefault("persistence.sqlite.path", "msgtx.db")
	v.SetDefault("persistence.mysql.addr", "127.0.0.1:3306")
	v.SetDefault("persistence.mysql.user", "")
	v.SetDefault("persistence.mysql.password", "")
	v.SetDefault("persistence.mysql.database", "msgtx")

	v.SetDefault("metrics.listen", "")
}

// NewViper returns a viper instance reading path with msgtx defaults and
// MSGTX_ environment overrides (MSGTX_TRANSACTIONS_MAX_SIZE and so on).
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads and validates the configuration at path. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := NewViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	errs := []error{
		ValidateLogLevel(c.Logging.Level),
		ValidateLogFormat(c.Logging.Format),
		ValidateMaxSize(c.Transactions.MaxSize),
		ValidateDuration(c.Transactions.Timeout, "transactions.timeout"),
		ValidateDuration(c.Transactions.MonitorTick, "transactions.monitor_tick"),
		ValidateDriver(c.Persistence.Driver),
	}
	switch c.Persistence.Driver {
	case DriverSQLite:
		errs = append(errs, ValidateNonEmpty(c.Persistence.SQLite.Path, "persistence.sqlite.path"))
	case DriverMySQL:
		errs = append(errs,
			ValidateNonEmpty(c.Persistence.MySQL.Addr, "persistence.mysql.addr"),
			ValidateNonEmpty(c.Persistence.MySQL.Database, "persistence.mysql.database"))
	}
	return errors.Join(errs...)
}
