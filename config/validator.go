package config

import (
	"fmt"
	"time"
)

// reloadableKeys may change while the process runs.
var reloadableKeys = map[string]bool{
	"logging.level":         true,
	"transactions.max_size": true,
}

// staticKeys need a restart to take effect.
var staticKeys = map[string]string{
	"logging.format":            "logger rebuild required",
	"logging.file":              "logger rebuild required",
	"transactions.timeout":      "reaper restart required",
	"transactions.monitor_tick": "reaper restart required",
	"persistence.driver":        "persistence manager initialization required",
	"persistence.supports_1pc":  "existing transactions were created with the old capability",
	"persistence.sqlite.path":   "database connection recreation required",
	"persistence.mysql":         "database connection pool recreation required",
	"metrics.listen":            "HTTP listener restart required",
}

// IsReloadable returns true if key can be hot-reloaded.
func IsReloadable(key string) bool {
	return reloadableKeys[key]
}

func getRestartReason(key string) string {
	if reason, ok := staticKeys[key]; ok {
		return reason
	}
	return "unknown configuration requires restart"
}

func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
}

func ValidateLogFormat(format string) error {
	switch format {
	case "json", "console":
		return nil
	}
	return fmt.Errorf("invalid log format: %s (must be json or console)", format)
}

func ValidateDriver(driver string) error {
	switch driver {
	case DriverNull, DriverSQLite, DriverMySQL:
		return nil
	}
	return fmt.Errorf("invalid persistence driver: %s (must be null, sqlite, or mysql)", driver)
}

// ValidateMaxSize accepts -1 for unlimited and any positive size.
func ValidateMaxSize(n int) error {
	if n == -1 || n > 0 {
		return nil
	}
	return fmt.Errorf("transactions.max_size must be positive or -1, got %d", n)
}

func ValidateNonEmpty(value string, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateDuration(duration time.Duration, fieldName string) error {
	if duration <= 0 {
		return fmt.Errorf("%s must be greater than 0", fieldName)
	}
	return nil
}
