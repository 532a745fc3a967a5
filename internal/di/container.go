// Package di wires the storefront with google/wire. Provider sets live in
// providers.go, the injector declaration in wire.go and the generated
// injector in wire_gen.go.
package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/cart"
	"storefront-backend/internal/catalog"
	"storefront-backend/internal/config"
	"storefront-backend/internal/events"
	"storefront-backend/internal/graph"
	"storefront-backend/internal/infrastructure/concurrency"
	"storefront-backend/internal/infrastructure/observability"
	"storefront-backend/internal/ops"
	"storefront-backend/internal/order"
	"storefront-backend/internal/ratelimit"
	"storefront-backend/internal/recommendation"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/session"
)

// Container holds the constructed application.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector
	Tracer  *observability.TracerProvider

	Cache        *cache.Store
	Runner       *concurrency.Runner
	Repositories repository.Repositories
	Graph        *graph.Engine
	Publisher    events.Publisher
	Limiter      *ratelimit.Limiter

	Catalog         *catalog.Service
	Sessions        *session.Store
	Carts           *cart.Service
	Orders          *order.Service
	Recommendations *recommendation.Service

	Ops *ops.Router

	// Watcher is attached by the caller when hot reload is wanted.
	Watcher *config.Watcher `wire:"-"`
}

// Connect verifies the backends. The cache must answer; a graph that does not
// only degrades recommendations, so it is logged.
func (c *Container) Connect(ctx context.Context) error {
	if err := c.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache backend unreachable: %w", err)
	}
	if err := c.Graph.Ping(ctx); err != nil {
		c.Logger.Warn("Graph store unreachable; recommendations will be empty", zap.Error(err))
	}
	c.Logger.Info("Backends connected",
		zap.String("environment", string(c.Config.Environment)),
		zap.String("cache", c.Config.Cache.Provider),
		zap.String("database", c.Config.Database.Provider),
		zap.String("graph", c.Config.Graph.Provider),
	)
	return nil
}

// AttachWatcher hot reloads rate-limit policies on configuration changes.
func (c *Container) AttachWatcher(w *config.Watcher) {
	c.Watcher = w
	w.OnChange(c.Limiter.OnConfigChange)
}

// Shutdown drains in-flight best-effort work before closing the backends it
// writes to, then flushes traces.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	if err := c.Runner.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain best-effort work: %w", err))
	}
	if err := c.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := c.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}
