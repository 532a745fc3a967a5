package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/config"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestCheck_LimitThenDenied(t *testing.T) {
	ctx := context.Background()
	now := testNow
	l := NewLimiter(cache.NewStore(cache.NewMemoryBackend(100, nil)), nil, nil, nil).WithClock(fixedClock(&now))

	for i := 1; i <= 5; i++ {
		d := l.Check(ctx, "1.2.3.4", 5, time.Minute)
		assert.Equal(t, Allowed, d.Outcome, "request %d", i)
		assert.Equal(t, int64(i), d.Count)
	}

	d := l.Check(ctx, "1.2.3.4", 5, time.Minute)
	assert.Equal(t, Denied, d.Outcome)
	assert.False(t, d.Allowed())
	assert.Equal(t, 0, d.Remaining())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), d.ResetAt.UTC())

	// Other identities have their own counter.
	assert.True(t, l.CheckRateLimit(ctx, "5.6.7.8", 5, time.Minute))

	// A new window starts from zero.
	now = now.Add(time.Minute)
	d = l.Check(ctx, "1.2.3.4", 5, time.Minute)
	assert.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, int64(1), d.Count)
}

func TestCheck_ExpirySetOnFirstIncrementOnly(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := cache.NewStore(cache.NewRedisBackend(config.RedisConfig{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	now := testNow
	l := NewLimiter(store, nil, nil, nil).WithClock(fixedClock(&now))

	l.Check(ctx, "u1", 10, time.Minute)
	windowID := testNow.Unix() / 60
	key := cache.RateLimitKey("u1", windowID)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(20 * time.Second)
	l.Check(ctx, "u1", 10, time.Minute)
	assert.Equal(t, 40*time.Second, mr.TTL(key), "later increments must not extend the window")

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestCheck_FailsOpenWhenBackendDown(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryBackend(10, nil)
	require.NoError(t, backend.Close())
	l := NewLimiter(cache.NewStore(backend), nil, nil, nil)

	for i := 0; i < 20; i++ {
		d := l.Check(ctx, "ip", 1, time.Minute)
		assert.Equal(t, BackendDown, d.Outcome)
		assert.True(t, d.Allowed())
	}
}

func TestCheck_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	now := testNow
	l := NewLimiter(cache.NewStore(cache.NewMemoryBackend(100, nil)), nil, nil, nil).WithClock(fixedClock(&now))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckRateLimit(ctx, "burst", 10, time.Minute) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestAllow_Policies(t *testing.T) {
	ctx := context.Background()
	now := testNow
	l := NewLimiter(cache.NewStore(cache.NewMemoryBackend(100, nil)), map[string]config.RateLimitPolicy{
		"default": {Limit: 3, Window: time.Minute},
		"login":   {Limit: 1, Window: 15 * time.Minute},
	}, nil, nil).WithClock(fixedClock(&now))

	assert.True(t, l.Allow(ctx, "login", "ip").Allowed())
	assert.False(t, l.Allow(ctx, "login", "ip").Allowed())

	// Unknown scopes use the default policy and keep a separate counter.
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "search", "ip").Allowed())
	}
	assert.False(t, l.Allow(ctx, "search", "ip").Allowed())

	t.Run("hot reload", func(t *testing.T) {
		l.OnConfigChange(&config.Config{RateLimit: config.RateLimit{Enabled: true, Policies: map[string]config.RateLimitPolicy{
			"default": {Limit: 100, Window: time.Minute},
		}}})

		p, ok := l.Policy("login")
		require.True(t, ok)
		assert.Equal(t, 100, p.Limit)
		assert.True(t, l.Allow(ctx, "search", "ip").Allowed())
	})

	t.Run("no policies means unlimited", func(t *testing.T) {
		l.UpdatePolicies(nil)
		d := l.Allow(ctx, "login", "ip")
		assert.Equal(t, Allowed, d.Outcome)
	})
}

func TestAllow_Disabled(t *testing.T) {
	ctx := context.Background()
	now := testNow
	policies := map[string]config.RateLimitPolicy{"login": {Limit: 1, Window: 15 * time.Minute}}
	backend := cache.NewMemoryBackend(100, nil)
	l := NewLimiter(cache.NewStore(backend), policies, nil, nil).WithClock(fixedClock(&now))

	tests := []struct {
		name    string
		enable  func()
		allowed []bool
	}{
		{
			name:    "disabled admits every request uncounted",
			enable:  func() { l.SetEnabled(false) },
			allowed: []bool{true, true, true},
		},
		{
			name: "reload re-enables enforcement",
			enable: func() {
				l.OnConfigChange(&config.Config{RateLimit: config.RateLimit{Enabled: true, Policies: policies}})
			},
			allowed: []bool{true, false},
		},
		{
			name: "reload can disable",
			enable: func() {
				l.OnConfigChange(&config.Config{RateLimit: config.RateLimit{Enabled: false, Policies: policies}})
			},
			allowed: []bool{true, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(time.Hour)
			tt.enable()
			for i, want := range tt.allowed {
				assert.Equal(t, want, l.Allow(ctx, "login", "ip").Allowed(), "request %d", i)
			}
		})
	}

	l.SetEnabled(false)
	before := backend.Len()
	l.Allow(ctx, "login", "other-ip")
	assert.Equal(t, before, backend.Len(), "disabled limiter must not touch counters")
}
