package recommendation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/catalog"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/graph"
	"storefront-backend/internal/infrastructure/concurrency"
	"storefront-backend/internal/repository/memory"
)

type fixture struct {
	svc      *Service
	engine   *graph.Engine
	graph    *graph.MemoryGraph
	products *memory.ProductStore
	runner   *concurrency.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		graph: graph.NewMemoryGraph(),
		products: memory.NewProductStore(
			&domain.Product{ID: "s1", Category: "shoes", Rating: 4.0, Price: decimal.NewFromInt(50), Active: true},
			&domain.Product{ID: "s2", Category: "shoes", Rating: 4.8, Price: decimal.NewFromInt(60), Active: true},
			&domain.Product{ID: "s3", Category: "shoes", Rating: 4.2, Price: decimal.NewFromInt(70), Active: true},
			&domain.Product{ID: "s4", Category: "shoes", Rating: 3.1, Price: decimal.NewFromInt(80), Active: true},
			&domain.Product{ID: "s5", Category: "shoes", Rating: 5.0, Price: decimal.NewFromInt(90), Active: false},
			&domain.Product{ID: "h1", Category: "hats", Rating: 4.9, Price: decimal.NewFromInt(20), Active: true},
		),
		runner: concurrency.NewRunner(time.Second, nil, nil),
	}
	f.engine = graph.NewEngine(f.graph, f.runner)
	cat := catalog.NewService(f.products, memory.NewUserStore(), cache.NewStore(cache.NewMemoryBackend(100, nil)), nil)
	f.svc = NewService(f.engine, cat, f.products, 10, nil)
	return f
}

func ids(scores []graph.ProductScore) []string {
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.Product.ID
	}
	return out
}

func TestSimilarProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("graph neighbours win", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.products.FindByID(ctx, "h1")
		require.NoError(t, err)
		require.NoError(t, f.engine.SyncProduct(ctx, p))
		require.NoError(t, f.engine.LinkSimilar(ctx, "s1", "h1", 1))

		assert.Equal(t, []string{"h1"}, ids(f.svc.SimilarProducts(ctx, "s1", 5)))
	})

	t.Run("falls back to same category by rating", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, []string{"s2", "s3", "s4"}, ids(f.svc.SimilarProducts(ctx, "s1", 5)))
		assert.Equal(t, []string{"s2", "s3"}, ids(f.svc.SimilarProducts(ctx, "s1", 2)))
		assert.Equal(t, []string{"s3", "s1"}, ids(f.svc.SimilarProducts(ctx, "s2", 2)))
	})

	t.Run("graph outage falls back", func(t *testing.T) {
		f := newFixture(t)
		f.graph.SetError(errors.New("graph down"))
		assert.Equal(t, []string{"s2", "s3", "s4"}, ids(f.svc.SimilarProducts(ctx, "s1", 0)))
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newFixture(t)
		got := f.svc.SimilarProducts(ctx, "missing", 5)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("category read fails", func(t *testing.T) {
		f := newFixture(t)
		f.products.SetError("FindByCategory", errors.New("throttled"))
		assert.Empty(t, f.svc.SimilarProducts(ctx, "s1", 5))
	})
}

func TestTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"s1", "s2", "h1"} {
		p, err := f.products.FindByID(ctx, id)
		require.NoError(t, err)
		require.NoError(t, f.engine.SyncProduct(ctx, p))
	}

	f.svc.TrackView(ctx, "u1", "s1")
	f.svc.TrackView(ctx, "u2", "s1")
	f.svc.TrackView(ctx, "u2", "s2")
	f.svc.TrackSearch(ctx, "u1", []string{"h1", "s2"})

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Drain(drainCtx))

	edges, err := f.graph.UserInteractions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, edges, 3)

	// Searches are not engagement, so only views count.
	assert.Equal(t, []string{"s1", "s2"}, ids(f.svc.Trending(ctx, 5, 0)))

	similar := f.svc.SimilarUsers(ctx, "u1", 0)
	assert.Empty(t, similar, "u2 has no user node")
}

func TestForUserAndAffinity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"s1", "s2", "h1"} {
		p, err := f.products.FindByID(ctx, id)
		require.NoError(t, err)
		require.NoError(t, f.engine.SyncProduct(ctx, p))
	}
	require.NoError(t, f.engine.LinkSimilar(ctx, "s1", "s2", 1))
	require.NoError(t, f.engine.LinkSimilar(ctx, "s1", "h1", 1))
	require.NoError(t, f.engine.RecordView(ctx, "u1", "s1"))

	assert.Equal(t, []string{"h1", "s2"}, ids(f.svc.ForUser(ctx, "u1", 0)))
	assert.Equal(t, []graph.CategoryScore{{Category: "hats", Edges: 1}}, f.svc.CategoryAffinity(ctx, "shoes", 0))
}
