// Package cache implements the cache-aside store shared by carts, rate limits
// and catalog reads. Every operation fails soft: an unreachable backend never
// panics or blocks past the caller's context.
package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefront-backend/internal/config"
)

// Backend is the key-value primitive the Store runs on.
//
// A ttl of 0 means the key never expires. Get reports a missing or expired key
// as (nil, false, nil); errors are reserved for an unreachable backend.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Incr atomically increments the integer at key, creating it at 0 first.
	// An existing expiry is left untouched.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the expiry of an existing key and reports whether it existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewBackend builds the backend selected by cfg.Provider. A memory backend
// starts sweeping expired keys when cfg.CleanupInterval is set; Close stops it.
func NewBackend(cfg config.Cache, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderMemory, "":
		m := NewMemoryBackend(cfg.MaxItems, logger)
		if cfg.CleanupInterval > 0 {
			m.StartCleanup(cfg.CleanupInterval)
		}
		return m, nil
	case config.ProviderRedis:
		return NewRedisBackend(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
}
