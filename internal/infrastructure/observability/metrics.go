package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
//
// Every recording method is safe to call on a nil *Collector, so components can
// be constructed without metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	// Cache-aside store
	CacheOperations *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec

	// Rate limiter
	RateLimitDecisions *prometheus.CounterVec

	// Best-effort side channels (graph, events, cart cleanup)
	BestEffortCalls *prometheus.CounterVec

	// Orders
	OrdersPlaced    prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrderFailures   *prometheus.CounterVec

	// Recommendations
	RecommendationQueries *prometheus.CounterVec

	// Circuit breakers: 0 closed, 1 half-open, 2 open
	BreakerState *prometheus.GaugeVec
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Cache-aside operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		BackendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_operation_duration_seconds",
				Help:      "Latency of calls to external stores",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		BestEffortCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "best_effort_calls_total",
				Help:      "Best-effort side-channel calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OrdersPlaced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_placed_total",
				Help:      "Total number of orders placed",
			},
		),
		OrdersCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_cancelled_total",
				Help:      "Total number of orders cancelled",
			},
		),
		OrderFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_failures_total",
				Help:      "Rejected order placements by error type",
			},
			[]string{"reason"},
		),
		RecommendationQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendation_queries_total",
				Help:      "Recommendation queries by kind and whether they returned results",
			},
			[]string{"query", "result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.CacheOperations,
		c.BackendLatency,
		c.RateLimitDecisions,
		c.BestEffortCalls,
		c.OrdersPlaced,
		c.OrdersCancelled,
		c.OrderFailures,
		c.RecommendationQueries,
		c.BreakerState,
	)
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) CacheOp(operation, result string) {
	if c == nil {
		return
	}
	c.CacheOperations.WithLabelValues(operation, result).Inc()
}

func (c *Collector) ObserveBackend(backend, operation string, seconds float64) {
	if c == nil {
		return
	}
	c.BackendLatency.WithLabelValues(backend, operation).Observe(seconds)
}

func (c *Collector) RateLimitDecision(scope, outcome string) {
	if c == nil {
		return
	}
	c.RateLimitDecisions.WithLabelValues(scope, outcome).Inc()
}

func (c *Collector) BestEffort(operation, outcome string) {
	if c == nil {
		return
	}
	c.BestEffortCalls.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) OrderPlaced() {
	if c == nil {
		return
	}
	c.OrdersPlaced.Inc()
}

func (c *Collector) OrderCancelled() {
	if c == nil {
		return
	}
	c.OrdersCancelled.Inc()
}

func (c *Collector) OrderFailed(reason string) {
	if c == nil {
		return
	}
	c.OrderFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) RecommendationQuery(query string, empty bool) {
	if c == nil {
		return
	}
	result := "hit"
	if empty {
		result = "empty"
	}
	c.RecommendationQueries.WithLabelValues(query, result).Inc()
}

func (c *Collector) SetBreakerState(name string, state float64) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(state)
}
