// Package ops serves the operational endpoints: liveness, readiness and
// Prometheus metrics. The storefront's business surface is in-process Go
// services; this router is the only HTTP listener the process opens.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"storefront-backend/internal/infrastructure/observability"
)

const defaultCheckTimeout = 2 * time.Second

// Check is one readiness probe. A failing critical check makes the process
// unready; a failing non-critical one is reported as degraded.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readiness struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

// Router builds the ops http.Handler.
type Router struct {
	checks  []Check
	metrics *observability.Collector
	logger  *zap.Logger
	timeout time.Duration
}

func NewRouter(checks []Check, metrics *observability.Collector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		checks:  checks,
		metrics: metrics,
		logger:  logger,
		timeout: defaultCheckTimeout,
	}
}

// Handler returns the chi mux.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(rt.recoverer)

	r.Get("/healthz", rt.health)
	r.Get("/readyz", rt.ready)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	return r
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.timeout)
	defer cancel()

	report := readiness{Status: "ready", Checks: make(map[string]checkResult, len(rt.checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range rt.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Probe(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				report.Checks[c.Name] = checkResult{Status: "up"}
				return
			}
			report.Checks[c.Name] = checkResult{Status: "down", Error: err.Error()}
			switch {
			case c.Critical:
				report.Status = "unready"
			case report.Status == "ready":
				report.Status = "degraded"
			}
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if report.Status == "unready" {
		code = http.StatusServiceUnavailable
		rt.logger.Warn("Readiness check failed",
			zap.Strings("down", downChecks(report)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	}
	writeJSON(w, code, report)
}

func (rt *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				rt.logger.Error("Panic in ops handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Stack("stack"),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func downChecks(report readiness) []string {
	var out []string
	for name, res := range report.Checks {
		if res.Status == "down" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the ops router on its own listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Ops server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ops server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
