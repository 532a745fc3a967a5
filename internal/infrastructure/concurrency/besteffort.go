// Package concurrency runs side-channel work (graph writes, event
// publishing, cache cleanup) that must never fail or stall the caller.
package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront-backend/internal/infrastructure/observability"
)

// Outcome is the result of a best-effort call.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	TimedOut
	// Dropped means the runner was draining and the call never started.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

const defaultTimeout = 2 * time.Second

// Runner bounds every call by a timeout, absorbs errors and panics, and
// tracks detached calls so shutdown can wait for them.
type Runner struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Collector

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

func NewRunner(timeout time.Duration, logger *zap.Logger, metrics *observability.Collector) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{timeout: timeout, logger: logger, metrics: metrics}
}

// Do runs fn and returns once it finishes or the timeout elapses, whichever
// comes first. A fn that ignores its context is abandoned, not waited on.
func (r *Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	outcome := Succeeded
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = TimedOut
	default:
		outcome = Failed
	}

	if outcome != Succeeded {
		r.logger.Warn("Best-effort call did not succeed",
			zap.String("operation", op),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
	}
	r.metrics.BestEffort(op, outcome.String())
	return outcome
}

// Go runs fn in the background, detached from ctx's cancellation but keeping
// its values. It returns immediately.
func (r *Runner) Go(ctx context.Context, op string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		r.metrics.BestEffort(op, Dropped.String())
		r.logger.Debug("Best-effort call dropped during drain", zap.String("operation", op))
		return
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer r.inflight.Done()
		r.Do(detached, op, fn)
	}()
}

// Drain stops accepting detached calls and waits for running ones or ctx.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
