package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/catalog"
	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	catalog  *catalog.Service
	products *memory.ProductStore
	store    *cache.Store
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	products := memory.NewProductStore(
		&domain.Product{ID: "p1", Name: "Runner", Price: decimal.RequireFromString("10.00"), Stock: 10, Active: true},
		&domain.Product{ID: "p2", Name: "Sock", Price: decimal.RequireFromString("7.50"), Stock: 4, Active: true},
		&domain.Product{ID: "off", Name: "Retired", Price: decimal.RequireFromString("1.00"), Stock: 9, Active: false},
	)
	store := cache.NewStore(cache.NewMemoryBackend(100, nil).WithClock(clk.Now))
	cat := catalog.NewService(products, memory.NewUserStore(), store, nil)
	return &fixture{
		svc:      NewService(store, cat, nil).WithClock(clk.Now),
		catalog:  cat,
		products: products,
		store:    store,
		clock:    clk,
	}
}

func TestAddItemMerges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 3))
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 1))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "p1", view.Items[0].ProductID)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, "50.00", view.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, "57.50", view.Subtotal.StringFixed(2))
	assert.Equal(t, 6, view.ItemCount)
	assert.True(t, f.clock.Now().Equal(view.UpdatedAt))
	assert.Equal(t, 6, f.svc.Count(ctx, "u1"))
}

func TestAddItemRules(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture)
		productID string
		quantity  int
		check     func(error) bool
	}{
		{name: "over stock", productID: "p2", quantity: 5, check: apperrors.IsInsufficientStock},
		{
			name:      "merge over stock",
			setup:     func(t *testing.T, f *fixture) { require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 3)) },
			productID: "p2",
			quantity:  2,
			check:     apperrors.IsInsufficientStock,
		},
		{name: "exactly stock", productID: "p2", quantity: 4, check: func(err error) bool { return err == nil }},
		{
			name: "stock sold since the product was cached",
			setup: func(t *testing.T, f *fixture) {
				_, err := f.catalog.GetProduct(ctx, "p2")
				require.NoError(t, err)
				_, err = f.products.UpdateStock(ctx, "p2", -3)
				require.NoError(t, err)
			},
			productID: "p2",
			quantity:  2,
			check:     apperrors.IsInsufficientStock,
		},
		{name: "missing product", productID: "nope", quantity: 1, check: apperrors.IsNotFound},
		{name: "inactive product", productID: "off", quantity: 1, check: apperrors.IsNotFound},
		{name: "zero quantity", productID: "p1", quantity: 0, check: apperrors.IsValidation},
		{name: "negative quantity", productID: "p1", quantity: -2, check: apperrors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			err := f.svc.AddItem(ctx, "u1", tt.productID, tt.quantity)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	t.Run("failed add leaves the cart unchanged", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 3))
		require.Error(t, f.svc.AddItem(ctx, "u1", "p2", 2))
		assert.Equal(t, 3, f.svc.Count(ctx, "u1"))
	})
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites quantity", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 2))
		require.NoError(t, f.svc.UpdateItem(ctx, "u1", "p1", 7))
		assert.Equal(t, 7, f.svc.Count(ctx, "u1"))
	})

	t.Run("zero removes the line", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 2))
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 1))
		require.NoError(t, f.svc.UpdateItem(ctx, "u1", "p1", 0))

		view, err := f.svc.GetCart(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, view.Items, 1)
		assert.Equal(t, "p2", view.Items[0].ProductID)
	})

	t.Run("over stock", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 1))
		err := f.svc.UpdateItem(ctx, "u1", "p2", 5)
		assert.True(t, apperrors.IsInsufficientStock(err))
		assert.Equal(t, 1, f.svc.Count(ctx, "u1"))
	})

	t.Run("missing cart", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.UpdateItem(ctx, "u1", "p1", 1)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("missing line", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 1))
		err := f.svc.UpdateItem(ctx, "u1", "p2", 1)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("negative quantity", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.UpdateItem(ctx, "u1", "p1", -1)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.RemoveItem(ctx, "u1", "p1"), "missing cart")
	require.NoError(t, f.svc.ClearCart(ctx, "u1"), "missing cart")

	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 2))
	require.NoError(t, f.svc.RemoveItem(ctx, "u1", "p1"))
	require.NoError(t, f.svc.RemoveItem(ctx, "u1", "p1"), "missing line")
	assert.Equal(t, 2, f.svc.Count(ctx, "u1"))

	require.NoError(t, f.svc.ClearCart(ctx, "u1"))
	assert.Equal(t, 0, f.svc.Count(ctx, "u1"))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Subtotal.IsZero())
}

func TestGetCartDropsUnavailableProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 1))
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p2", 2))

	retired := &domain.Product{ID: "p1", Name: "Runner", Price: decimal.RequireFromString("10.00"), Stock: 10, Active: false}
	require.NoError(t, f.catalog.SaveProduct(ctx, retired))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "p2", view.Items[0].ProductID)
	assert.Equal(t, 2, view.ItemCount)
	assert.Equal(t, "15.00", view.Subtotal.StringFixed(2))

	// The stored cart still holds the hidden line.
	assert.Equal(t, 3, f.svc.Count(ctx, "u1"))
}

func TestCartTTLRefreshedOnMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 1))

	f.clock.Advance(23 * time.Hour)
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 1))

	f.clock.Advance(23 * time.Hour)
	assert.Equal(t, 2, f.svc.Count(ctx, "u1"))

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, 0, f.svc.Count(ctx, "u1"))
}

func TestCacheOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(ctx, "u1", "p1", 1))
	require.NoError(t, f.store.Close())

	err := f.svc.AddItem(ctx, "u1", "p1", 1)
	assert.True(t, apperrors.IsBackendUnavailable(err))

	err = f.svc.RemoveItem(ctx, "u1", "p1")
	assert.True(t, apperrors.IsBackendUnavailable(err))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, 0, f.svc.Count(ctx, "u1"))
}
