// Package resilience wraps calls to external stores in circuit breakers so a
// dead dependency is detected once and later calls short-circuit.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"storefront-backend/internal/config"
	"storefront-backend/internal/infrastructure/observability"
)

// Breaker is a named gobreaker with logging and a state gauge.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// DefaultSettings are used when a component is built without configuration.
func DefaultSettings() config.CircuitBreaker {
	return config.CircuitBreaker{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// NewBreaker builds a breaker that trips once at least MinRequests calls were
// seen in the interval and the failure ratio reaches FailureThreshold.
func NewBreaker(name string, cfg config.CircuitBreaker, logger *zap.Logger, metrics *observability.Collector) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, float64(to))
		},
		// A caller giving up is not the dependency's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	metrics.SetBreakerState(name, float64(gobreaker.StateClosed))
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Do runs fn through the breaker. When the breaker is open or saturated the
// returned error satisfies IsOpen.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// IsOpen reports whether err is a short-circuit rejection.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
