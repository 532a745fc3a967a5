// Package ratelimit implements a fixed-window request counter on top of the
// cache store. A window admits up to limit requests; requests straddling a
// window boundary may see up to twice that in a short span.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/config"
	"storefront-backend/internal/infrastructure/observability"
)

// DefaultScope is used when a scope has no policy of its own.
const DefaultScope = "default"

// Outcome is the result of a rate-limit check.
type Outcome int

const (
	Allowed Outcome = iota
	Denied
	// BackendDown means the counter store was unreachable and the request
	// was let through.
	BackendDown
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case BackendDown:
		return "backend_down"
	default:
		return "unknown"
	}
}

// Decision describes one check.
type Decision struct {
	Outcome Outcome
	Count   int64
	Limit   int
	ResetAt time.Time
}

// Allowed reports whether the request may proceed. Outages fail open.
func (d Decision) Allowed() bool {
	return d.Outcome != Denied
}

// Remaining is how many more requests the window admits.
func (d Decision) Remaining() int {
	if r := int64(d.Limit) - d.Count; r > 0 {
		return int(r)
	}
	return 0
}

// Policy bounds one scope.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Limiter checks request rates per identity.
type Limiter struct {
	store *cache.Store

	enabled  atomic.Bool
	mu       sync.RWMutex
	policies map[string]Policy

	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewLimiter creates an enabled limiter with the given named policies.
func NewLimiter(store *cache.Store, policies map[string]config.RateLimitPolicy, logger *zap.Logger, metrics *observability.Collector) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		store:   store,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
	l.enabled.Store(true)
	l.UpdatePolicies(policies)
	return l
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// SetEnabled switches policy enforcement. A disabled limiter admits every
// request to Allow without counting it.
func (l *Limiter) SetEnabled(enabled bool) {
	l.enabled.Store(enabled)
}

// Enabled reports whether Allow enforces policies.
func (l *Limiter) Enabled() bool {
	return l.enabled.Load()
}

// UpdatePolicies swaps the policy table.
func (l *Limiter) UpdatePolicies(policies map[string]config.RateLimitPolicy) {
	next := make(map[string]Policy, len(policies))
	for name, p := range policies {
		next[name] = Policy{Limit: p.Limit, Window: p.Window}
	}

	l.mu.Lock()
	l.policies = next
	l.mu.Unlock()
}

// OnConfigChange is registered with the config watcher.
func (l *Limiter) OnConfigChange(cfg *config.Config) {
	l.SetEnabled(cfg.RateLimit.Enabled)
	l.UpdatePolicies(cfg.RateLimit.Policies)
	l.logger.Info("Rate limit policies reloaded",
		zap.Bool("enabled", cfg.RateLimit.Enabled),
		zap.Int("policies", len(cfg.RateLimit.Policies)),
	)
}

// Policy resolves scope, falling back to the default policy.
func (l *Limiter) Policy(scope string) (Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p, ok := l.policies[scope]; ok {
		return p, true
	}
	p, ok := l.policies[DefaultScope]
	return p, ok
}

// Allow checks identity against the policy of scope. Counters are kept per
// scope so a login burst does not eat into the browsing allowance.
// Scopes without any policy, and every scope of a disabled limiter, are not
// limited.
func (l *Limiter) Allow(ctx context.Context, scope, identity string) Decision {
	if !l.Enabled() {
		return Decision{Outcome: Allowed}
	}
	policy, ok := l.Policy(scope)
	if !ok {
		return Decision{Outcome: Allowed}
	}
	d := l.Check(ctx, scope+":"+identity, policy.Limit, policy.Window)
	l.metrics.RateLimitDecision(scope, d.Outcome.String())
	return d
}

// CheckRateLimit reports whether identity may make another request.
func (l *Limiter) CheckRateLimit(ctx context.Context, identity string, limit int, window time.Duration) bool {
	return l.Check(ctx, identity, limit, window).Allowed()
}

// Check counts one request for identity in the current window.
func (l *Limiter) Check(ctx context.Context, identity string, limit int, window time.Duration) Decision {
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	windowID := l.now().Unix() / windowSecs
	resetAt := time.Unix((windowID+1)*windowSecs, 0)
	key := cache.RateLimitKey(identity, windowID)

	count, err := l.store.Increment(ctx, key)
	if err != nil {
		l.logger.Warn("Rate limiter backend unavailable, allowing request",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return Decision{Outcome: BackendDown, Limit: limit, ResetAt: resetAt}
	}

	// Only the first increment of a window arms its expiry.
	if count == 1 {
		if _, err := l.store.Expire(ctx, key, time.Duration(windowSecs)*time.Second); err != nil {
			l.logger.Warn("Failed to set rate limit window expiry",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	d := Decision{Outcome: Allowed, Count: count, Limit: limit, ResetAt: resetAt}
	if count > int64(limit) {
		d.Outcome = Denied
		l.logger.Debug("Rate limit exceeded",
			zap.String("identity", identity),
			zap.Int64("count", count),
			zap.Int("limit", limit),
		)
	}
	return d
}
