package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	apperrors "storefront-backend/internal/errors"
)

// LookupJSON decodes the value at key into T. A value that no longer decodes
// is dropped and reported as a miss.
func LookupJSON[T any](ctx context.Context, s *Store, key string) (T, Result) {
	var out T
	raw, result := s.Lookup(ctx, key)
	if result != Hit {
		return out, result
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = s.Del(ctx, key)
		var zero T
		return zero, Miss
	}
	return out, Hit
}

// GetJSON is LookupJSON collapsed to (value, ok).
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool) {
	v, result := LookupJSON[T](ctx, s, key)
	return v, result == Hit
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s *Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperrors.Internal(apperrors.CodeSerializationError, "encode cache value").
			WithResource(key).
			WithCause(err).
			Build()
	}
	return s.Set(ctx, key, raw, ttl)
}

// Load reads key through the cache. On a miss or outage it calls load,
// populates the cache on success and returns the loaded value. Concurrent
// misses for the same key share one load. Errors from load are returned
// unchanged and nothing is cached.
//
// The shared load keeps the first caller's values but not its cancellation:
// it runs under the store's load timeout, so a caller that gives up only
// stops waiting and never fails the others.
func Load[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, result := LookupJSON[T](ctx, s, key); result == Hit {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(shared, s.loadTimeout)
		defer cancel()
		loaded, err := load(lctx)
		if err != nil {
			return nil, err
		}
		// Population is best-effort; the write already logged any failure.
		_ = SetJSON(lctx, s, key, loaded, ttl)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		out, _ := r.Val.(T)
		return out, nil
	}
}
