// Command storefront runs the storefront backend services with the ops
// listener (health, readiness, metrics) and shuts down cleanly on SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront-backend/internal/config"
	"storefront-backend/internal/di"
	"storefront-backend/internal/ops"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(config.ConfigDir(), config.EnvironmentFromEnv())
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = container.Connect(connectCtx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect backends", zap.Error(err))
	}

	watcher, err := config.NewWatcher(cfg, loader, logger)
	if err != nil {
		logger.Warn("Configuration watcher unavailable", zap.Error(err))
	} else {
		container.AttachWatcher(watcher)
	}

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(cfg.Ops.Addr, container.Ops.Handler(), logger)
		opsServer.Start()
	}

	logger.Info("Storefront started",
		zap.String("environment", string(cfg.Environment)),
		zap.Strings("config_sources", cfg.LoadedFrom),
	)

	<-ctx.Done()
	logger.Info("Shutting down storefront")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Ops server shutdown failed", zap.Error(err))
		}
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}
	log.Println("Storefront stopped")
}
