package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/api"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/manifest"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/metrics"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the modpack distribution server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Sync()

		logging.Info("ModPackUpdater starting",
			zap.String("listen", cfg.ListenAddr),
			zap.String("metrics", cfg.MetricsAddr),
			zap.String("root", cfg.RootDir))

		store, err := pack.NewStore(cfg.RootDir)
		if err != nil {
			return err
		}

		builder := manifest.NewBuilder(store, cfg.HashWorkers, cfg.ExtractWorkers)
		cache := manifest.NewCache(builder, store, watch.NewFactory(), cfg.CacheTTL, cfg.CacheSlidingTTL)
		defer cache.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Metrics on a separate listener, like the main server but without
		// graceful-shutdown ceremony.
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logging.Error("metrics server stopped", zap.Error(err))
			}
		}()

		server := api.NewServer(store, cache)
		if err := server.Run(ctx, cfg.ListenAddr, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout); err != nil {
			logging.Error("server stopped", zap.Error(err))
			return err
		}
		logging.Info("shutdown complete")
		return nil
	},
}
