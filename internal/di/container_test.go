package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoader(t.TempDir(), config.Test).Load()
	require.NoError(t, err)
	cfg.Cache.Provider = config.ProviderMemory
	cfg.Database.Provider = config.ProviderMemory
	cfg.Graph.Provider = config.ProviderMemory
	cfg.Events.Enabled = false
	cfg.Tracing.Enabled = false
	return cfg
}

func TestContainerEndToEnd(t *testing.T) {
	ctx := context.Background()
	c, err := InitializeContainer(ctx, testConfig(t))
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.Repositories.Products.Save(ctx, &domain.Product{
		ID:       "p1",
		Name:     "Trail shoe",
		Category: "shoes",
		Price:    decimal.RequireFromString("40.00"),
		Stock:    5,
		Rating:   4.5,
		Active:   true,
	}))

	require.NoError(t, c.Carts.AddItem(ctx, "u1", "p1", 2))
	assert.Equal(t, 2, c.Carts.Count(ctx, "u1"))

	placed, err := c.Orders.PlaceOrderFromCart(ctx, "u1", domain.Address{
		Name:       "Ada",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}, "card")
	require.NoError(t, err)
	// 80.00 + 6.40 tax + 10.00 shipping
	assert.True(t, decimal.RequireFromString("96.40").Equal(placed.Total), placed.Total.String())
	assert.Zero(t, c.Carts.Count(ctx, "u1"), "checkout clears the cart")

	p, err := c.Catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	require.True(t, c.Limiter.Allow(ctx, "checkout", "u1").Allowed())

	rec := httptest.NewRecorder()
	c.Ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
}

func TestInitializeContainerRejectsUnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"database", func(cfg *config.Config) { cfg.Database.Provider = "postgres" }},
		{"graph", func(cfg *config.Config) { cfg.Graph.Provider = "neo4j" }},
		{"cache", func(cfg *config.Config) { cfg.Cache.Provider = "memcached" }},
		{"pricing", func(cfg *config.Config) { cfg.Order.TaxRate = "eight percent" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := InitializeContainer(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
