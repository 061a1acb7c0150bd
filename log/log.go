// Package log is the process-wide logger, built on zap with an optional
// lumberjack rolling file sink.
package log

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger settings.
type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json or console
	File       string `mapstructure:"file" yaml:"file"`     // empty means stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

var (
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger atomic.Pointer[zap.Logger]
)

func init() {
	logger.Store(zap.New(zapcore.NewCore(newEncoder("json"), zapcore.AddSync(os.Stdout), level)))
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	if cfg.Level != "" {
		if err := SetLevel(cfg.Level); err != nil {
			return err
		}
	}
	core := zapcore.NewCore(newEncoder(cfg.Format), newWriteSyncer(cfg), level)
	logger.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// Set installs l as the global logger. Tests use it with zaptest loggers.
func Set(l *zap.Logger) {
	logger.Store(l)
}

// SetLevel changes the level of the logger built by Init.
func SetLevel(lvl string) error {
	if err := level.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("log: bad level %q: %w", lvl, err)
	}
	return nil
}

// Level returns the current level.
func Level() string {
	return level.String()
}

// L returns the global structured logger.
func L() *zap.Logger {
	return logger.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func newWriteSyncer(cfg Config) zapcore.WriteSyncer {
	switch strings.ToLower(cfg.File) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

type ctxKey struct{}

// WithTranID attaches a transaction id to ctx; the *Contextf helpers log it
// as field "txid".
func WithTranID(ctx context.Context, id fmt.Stringer) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func fromContext(ctx context.Context) *zap.SugaredLogger {
	l := L()
	if ctx != nil {
		if id, ok := ctx.Value(ctxKey{}).(fmt.Stringer); ok {
			l = l.With(zap.Stringer("txid", id))
		}
	}
	return l.Sugar()
}

func DebugContextf(ctx context.Context, format string, args ...interface{}) {
	fromContext(ctx).Debugf(format, args...)
}

func InfoContextf(ctx context.Context, format string, args ...interface{}) {
	fromContext(ctx).Infof(format, args...)
}

func WarnContextf(ctx context.Context, format string, args ...interface{}) {
	fromContext(ctx).Warnf(format, args...)
}

func ErrorContextf(ctx context.Context, format string, args ...interface{}) {
	fromContext(ctx).Errorf(format, args...)
}
