package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"msgtx/config"
	"msgtx/log"
	"msgtx/metrics"
	"msgtx/persistence/nullpm"
	"msgtx/persistence/sqlstore"
	"msgtx/txmanager"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "msgtxctl",
	Short: "Inspect and resolve message store transactions",
	Long: `msgtxctl opens the persistence configured in the msgtx configuration file,
recovers the transactions left prepared by a previous run and lets an operator
list, commit or roll them back. "serve" keeps a coordinator running with its
metrics endpoint and reaper.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = os.Getenv("MSGTX_CONFIG")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default $MSGTX_CONFIG)")
}

// coordinator is a factory over the configured persistence manager with the
// in-doubt transactions of the store already recovered.
type coordinator struct {
	cfg     *config.Config
	factory *txmanager.Factory
	reg     *prometheus.Registry
	close   func() error
}

func openCoordinator(ctx context.Context) (*coordinator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Logging); err != nil {
		return nil, err
	}

	pm, closeFn, err := openPersistence(ctx, cfg.Persistence)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	f := txmanager.NewFactory(pm,
		txmanager.WithTimeout(cfg.Transactions.Timeout),
		txmanager.WithMonitorTick(cfg.Transactions.MonitorTick),
		txmanager.WithMaxTransactionSize(cfg.Transactions.MaxSize),
		txmanager.WithMetrics(metrics.New(reg)))

	if reader, ok := pm.(txmanager.InDoubtReader); ok {
		if _, err := f.XidManager().Restart(ctx, reader); err != nil {
			_ = closeFn()
			return nil, err
		}
	}
	return &coordinator{cfg: cfg, factory: f, reg: reg, close: closeFn}, nil
}

func openPersistence(ctx context.Context, cfg config.PersistenceConfig) (txmanager.PersistenceManager, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLite.Path, cfg.Supports1PC)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverMySQL:
		s, err := sqlstore.OpenMySQL(ctx, cfg.MySQL, cfg.Supports1PC)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverNull:
		return nullpm.New(cfg.Supports1PC), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
}
