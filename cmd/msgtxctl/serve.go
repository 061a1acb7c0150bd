package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"msgtx/config"
	"msgtx/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator with its reaper, metrics endpoint and config watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	c, err := openCoordinator(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	defer log.Sync()

	xids := c.factory.XidManager()
	reaper := xids.StartReaper(ctx)
	defer reaper.Stop()

	if configPath != "" {
		m := config.NewManager(c.cfg, configPath)
		config.Apply(m, c.factory.SetMaximumTransactionSize)
		v := config.NewViper(configPath)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
		w := config.NewWatcher(v, m)
		w.Start()
		defer w.Stop()
	}

	log.L().Info("coordinator running",
		zap.String("driver", c.cfg.Persistence.Driver),
		zap.Int("in_doubt", len(xids.ListRemoteInDoubts())),
		zap.Int("max_transaction_size", c.factory.MaximumTransactionSize()))

	g, ctx := errgroup.WithContext(ctx)
	if addr := c.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.L().Info("metrics endpoint listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	log.L().Info("coordinator stopped")
	return err
}
