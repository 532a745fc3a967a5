package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/infrastructure/observability"
)

func up(context.Context) error { return nil }

func down(context.Context) error { return errors.New("connection refused") }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, NewRouter(nil, nil, nil).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		checks   []Check
		wantCode int
		want     string
	}{
		{
			name:     "all up",
			checks:   []Check{{Name: "cache", Critical: true, Probe: up}, {Name: "graph", Probe: up}},
			wantCode: http.StatusOK,
			want:     "ready",
		},
		{
			name:     "graph down degrades",
			checks:   []Check{{Name: "cache", Critical: true, Probe: up}, {Name: "graph", Probe: down}},
			wantCode: http.StatusOK,
			want:     "degraded",
		},
		{
			name:     "cache down is unready",
			checks:   []Check{{Name: "cache", Critical: true, Probe: down}, {Name: "graph", Probe: down}},
			wantCode: http.StatusServiceUnavailable,
			want:     "unready",
		},
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			want:     "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewRouter(tt.checks, nil, nil).Handler(), "/readyz")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body readiness
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
			for _, c := range tt.checks {
				if c.Probe(context.Background()) != nil {
					assert.Equal(t, "down", body.Checks[c.Name].Status)
					assert.Equal(t, "connection refused", body.Checks[c.Name].Error)
				}
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector := observability.NewCollector("storefront")
	collector.OrderPlaced()

	rec := get(t, NewRouter(nil, collector, nil).Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_orders_placed_total 1")

	rec = get(t, NewRouter(nil, nil, nil).Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovererHandlesPanic(t *testing.T) {
	rt := NewRouter(nil, nil, nil)
	h := rt.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := get(t, h, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
