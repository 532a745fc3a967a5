package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/infrastructure/observability"
	"storefront-backend/internal/infrastructure/resilience"
)

// Result is the outcome of a read against the backend.
type Result int

const (
	Hit Result = iota
	Miss
	BackendDown
)

func (r Result) String() string {
	switch r {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case BackendDown:
		return "backend_down"
	default:
		return "unknown"
	}
}

// Store is the cache-aside store. Reads against a dead backend look like
// misses to callers that only ask for (value, ok); writes return a
// BackendUnavailable error the caller may ignore.
type Store struct {
	backend Backend
	breaker *resilience.Breaker
	ttl     TTLPolicy
	logger  *zap.Logger
	metrics *observability.Collector
	group   singleflight.Group

	loadTimeout time.Duration
}

// DefaultLoadTimeout bounds a shared Load when no WithLoadTimeout is given.
const DefaultLoadTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(metrics *observability.Collector) Option {
	return func(s *Store) { s.metrics = metrics }
}

func WithBreaker(breaker *resilience.Breaker) Option {
	return func(s *Store) { s.breaker = breaker }
}

// WithLoadTimeout bounds each shared Load. The load runs detached from the
// caller that started it, so this is its only deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) { s.loadTimeout = d }
}

func WithTTLPolicy(policy TTLPolicy) Option {
	return func(s *Store) { s.ttl = policy }
}

// NewStore wraps backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		ttl:         DefaultTTLPolicy(),
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.breaker == nil {
		s.breaker = resilience.NewBreaker("cache", resilience.DefaultSettings(), s.logger, s.metrics)
	}
	return s
}

// TTL returns the expiry policy used by callers of this store.
func (s *Store) TTL() TTLPolicy {
	return s.ttl
}

// Lookup reads key and reports which of hit, miss or backend outage happened.
func (s *Store) Lookup(ctx context.Context, key string) ([]byte, Result) {
	var value []byte
	var found bool
	err := s.call(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, found, err = s.backend.Get(ctx, key)
		return err
	})
	switch {
	case err != nil:
		return nil, BackendDown
	case !found:
		s.metrics.CacheOp("get", "miss")
		s.logger.Debug("Cache miss", zap.String("key", key))
		return nil, Miss
	default:
		s.metrics.CacheOp("get", "hit")
		return value, Hit
	}
}

// Get returns the value at key. An outage reads as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	value, result := s.Lookup(ctx, key)
	return value, result == Hit
}

// Set stores value under key; ttl 0 means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.call(ctx, "set", key, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, value, ttl)
	})
	if err == nil {
		s.metrics.CacheOp("set", "ok")
	}
	return err
}

// Del removes key. Deleting a missing key succeeds.
func (s *Store) Del(ctx context.Context, key string) error {
	err := s.call(ctx, "del", key, func(ctx context.Context) error {
		return s.backend.Del(ctx, key)
	})
	if err == nil {
		s.metrics.CacheOp("del", "ok")
	}
	return err
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.call(ctx, "exists", key, func(ctx context.Context) error {
		var err error
		exists, err = s.backend.Exists(ctx, key)
		return err
	})
	return exists, err
}

// Increment atomically adds one to the counter at key and returns the new
// value. A missing key starts at 0.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.call(ctx, "incr", key, func(ctx context.Context) error {
		var err error
		n, err = s.backend.Incr(ctx, key)
		return err
	})
	if err == nil {
		s.metrics.CacheOp("incr", "ok")
	}
	return n, err
}

// Expire resets the expiry of key and reports whether the key existed.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var existed bool
	err := s.call(ctx, "expire", key, func(ctx context.Context) error {
		var err error
		existed, err = s.backend.Expire(ctx, key, ttl)
		return err
	})
	return existed, err
}

// Ping checks the backend directly, bypassing the breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) call(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.breaker.Do(func() error { return fn(ctx) })
	s.metrics.ObserveBackend(s.backend.Name(), op, time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	s.metrics.CacheOp(op, "error")
	if resilience.IsOpen(err) {
		s.logger.Debug("Cache breaker open", zap.String("operation", op), zap.String("key", key))
	} else {
		s.logger.Warn("Cache backend call failed",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return apperrors.BackendUnavailable(apperrors.CodeCacheUnavailable, "cache backend unavailable").
		WithOperation(op).
		WithResource(key).
		WithCause(err).
		Build()
}
