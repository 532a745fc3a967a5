package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository/memory"
)

type fixture struct {
	svc      *Service
	products *memory.ProductStore
	users    *memory.UserStore
	store    *cache.Store
}

func newFixture(t *testing.T, products ...*domain.Product) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewProductStore(products...),
		users:    memory.NewUserStore(&domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}),
		store:    cache.NewStore(cache.NewMemoryBackend(100, nil)),
	}
	f.svc = NewService(f.products, f.users, f.store, nil)
	return f
}

func product(id, category string, price string, rating float64) *domain.Product {
	return &domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    10,
		Rating:   rating,
		Active:   true,
	}
}

func TestGetProductCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "shoes", "19.99", 4.5))

	p, err := f.svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "19.99", p.Price.StringFixed(2))

	ok, err := f.store.Exists(ctx, cache.ProductKey("p1"))
	require.NoError(t, err)
	assert.True(t, ok)

	// A write behind the cache's back is invisible until invalidation.
	updated := product("p1", "shoes", "24.99", 4.5)
	require.NoError(t, f.products.Save(ctx, updated))

	p, err = f.svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "19.99", p.Price.StringFixed(2))

	require.NoError(t, f.svc.InvalidateProduct(ctx, "p1"))
	require.NoError(t, f.svc.InvalidateProduct(ctx, "p1"))

	p, err = f.svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "24.99", p.Price.StringFixed(2))
}

func TestGetProductErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.GetProduct(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	ok, err := f.store.Exists(ctx, cache.ProductKey("missing"))
	require.NoError(t, err)
	assert.False(t, ok, "failures are never cached")

	_, err = f.svc.GetProduct(ctx, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetProductSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "shoes", "5.00", 4))
	require.NoError(t, f.store.Close())

	p, err := f.svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestCurrentProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("reads past a stale cached copy and refreshes it", func(t *testing.T) {
		f := newFixture(t, product("p1", "shoes", "19.99", 4.5))
		_, err := f.svc.GetProduct(ctx, "p1")
		require.NoError(t, err)
		_, err = f.products.UpdateStock(ctx, "p1", -7)
		require.NoError(t, err)

		cached, err := f.svc.GetProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 10, cached.Stock)

		current, err := f.svc.CurrentProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, current.Stock)

		cached, err = f.svc.GetProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, cached.Stock)
	})

	t.Run("cache outage does not matter", func(t *testing.T) {
		f := newFixture(t, product("p1", "shoes", "19.99", 4.5))
		require.NoError(t, f.store.Close())
		p, err := f.svc.CurrentProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 10, p.Stock)
	})

	t.Run("missing and empty ids", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CurrentProduct(ctx, "nope")
		assert.True(t, apperrors.IsNotFound(err))
		_, err = f.svc.CurrentProduct(ctx, "")
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	ok, err := f.store.Exists(ctx, cache.UserKey("u1"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.InvalidateUser(ctx, "u1"))
	ok, err = f.store.Exists(ctx, cache.UserKey("u1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetProductsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "c", "1.00", 1), product("p2", "c", "2.00", 2))

	got, err := f.svc.GetProducts(ctx, []string{"p1", "gone", "p2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "p1")
	assert.Contains(t, got, "p2")

	f.products.SetError("FindByID", errors.New("table offline"))
	require.NoError(t, f.svc.InvalidateProduct(ctx, "p1"))
	_, err = f.svc.GetProducts(ctx, []string{"p1"})
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	inactive := product("p3", "shoes", "1.00", 1)
	inactive.Active = false
	f := newFixture(t, product("p1", "shoes", "1.00", 1), product("p2", "shoes", "1.00", 1), inactive)

	calls := 0
	search := func(ctx context.Context, query string) ([]string, error) {
		calls++
		return []string{"p2", "p3", "p1", "deleted"}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := f.svc.Search(ctx, "red shoes", search)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p2", got[0].ID)
		assert.Equal(t, "p1", got[1].ID)
	}
	assert.Equal(t, 1, calls)

	ok, err := f.store.Exists(ctx, "search:cmVkIHNob2Vz")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("blank query", func(t *testing.T) {
		got, err := f.svc.Search(ctx, "   ", search)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 1, calls)
	})

	t.Run("search backend error", func(t *testing.T) {
		_, err := f.svc.Search(ctx, "boots", func(context.Context, string) ([]string, error) {
			return nil, errors.New("index down")
		})
		assert.Error(t, err)
	})
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		product("a", "shoes", "30.00", 4.0),
		product("b", "shoes", "10.00", 4.9),
		product("c", "shoes", "20.00", 3.0),
		product("d", "hats", "5.00", 5.0),
	)

	tests := []struct {
		name  string
		query ListQuery
		want  []string
	}{
		{name: "default rating order", query: ListQuery{Category: "shoes"}, want: []string{"b", "a", "c"}},
		{name: "price ascending", query: ListQuery{Category: "shoes", Sort: SortPriceAsc}, want: []string{"b", "c", "a"}},
		{name: "price descending", query: ListQuery{Category: "shoes", Sort: SortPriceDesc}, want: []string{"a", "c", "b"}},
		{name: "second page", query: ListQuery{Category: "shoes", Page: 2, PageSize: 2}, want: []string{"c"}},
		{name: "past the end", query: ListQuery{Category: "shoes", Page: 5, PageSize: 2}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.ListProducts(ctx, tt.query, nil)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Items))
			for _, p := range page.Items {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, 3, page.Total)
		})
	}

	t.Run("invalid sort", func(t *testing.T) {
		_, err := f.svc.ListProducts(ctx, ListQuery{Category: "shoes", Sort: "random"}, nil)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("equivalent queries share a key", func(t *testing.T) {
		calls := 0
		load := func(ctx context.Context, q ListQuery) (*ProductPage, error) {
			calls++
			return &ProductPage{Page: q.Page, PageSize: q.PageSize, Items: []*domain.Product{}}, nil
		}
		_, err := f.svc.ListProducts(ctx, ListQuery{Category: "hats"}, load)
		require.NoError(t, err)
		_, err = f.svc.ListProducts(ctx, ListQuery{Category: "hats", Page: 1, PageSize: 20, Sort: SortRating}, load)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "category=shoes&page=1&size=20&sort=rating", ListQuery{Category: "shoes"}.Canonical())
	assert.Equal(t, "category=shoes&page=3&size=100&sort=name", ListQuery{Category: "shoes", Page: 3, PageSize: 500, Sort: SortName}.Canonical())
}
