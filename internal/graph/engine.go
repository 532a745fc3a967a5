package graph

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/infrastructure/concurrency"
	"storefront-backend/internal/infrastructure/observability"
	"storefront-backend/internal/infrastructure/resilience"
)

const defaultTrendingWindow = 24 * time.Hour

// Engine records interactions and answers recommendation queries.
type Engine struct {
	store   Store
	breaker *resilience.Breaker
	runner  *concurrency.Runner
	logger  *zap.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
	now     func() time.Time

	trendingWindow time.Duration
	defaultLimit   int
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option { return func(e *Engine) { e.logger = logger } }

func WithMetrics(m *observability.Collector) Option { return func(e *Engine) { e.metrics = m } }

func WithBreaker(b *resilience.Breaker) Option { return func(e *Engine) { e.breaker = b } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithDefaults sets the trending window and result limit used when a query
// passes zero.
func WithDefaults(trendingWindow time.Duration, limit int) Option {
	return func(e *Engine) {
		if trendingWindow > 0 {
			e.trendingWindow = trendingWindow
		}
		if limit > 0 {
			e.defaultLimit = limit
		}
	}
}

// NewEngine builds an engine over store. runner bounds best-effort calls.
func NewEngine(store Store, runner *concurrency.Runner, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		runner:         runner,
		now:            time.Now,
		tracer:         otel.Tracer("storefront/graph"),
		trendingWindow: defaultTrendingWindow,
		defaultLimit:   DefaultSimilarLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.breaker == nil {
		e.breaker = resilience.NewBreaker("graph", resilience.DefaultSettings(), e.logger, e.metrics)
	}
	if e.runner == nil {
		e.runner = concurrency.NewRunner(0, e.logger, e.metrics)
	}
	return e
}

// ============================================================================
// BEST-EFFORT WRAPPERS
// ============================================================================

// Go runs fn in the background, fire-and-forget, bounded by the runner
// timeout. Interaction writes from request paths go through here.
func (e *Engine) Go(ctx context.Context, op string, fn func(ctx context.Context) error) {
	e.runner.Go(ctx, op, fn)
}

// Ping checks the store directly.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// ============================================================================
// WRITES
// ============================================================================

func (e *Engine) SyncProduct(ctx context.Context, p *domain.Product) error {
	return e.guard(ctx, "sync_product", func(ctx context.Context) error {
		return e.store.UpsertProduct(ctx, ProductNodeFrom(p))
	})
}

func (e *Engine) SyncUser(ctx context.Context, u *domain.User) error {
	return e.guard(ctx, "sync_user", func(ctx context.Context) error {
		return e.store.UpsertUser(ctx, UserNodeFrom(u))
	})
}

func (e *Engine) RecordView(ctx context.Context, userID, productID string) error {
	return e.record(ctx, "record_view", Interaction{UserID: userID, ProductID: productID, Type: Viewed, Weight: ViewWeight})
}

func (e *Engine) RecordSearch(ctx context.Context, userID, productID string) error {
	return e.record(ctx, "record_search", Interaction{UserID: userID, ProductID: productID, Type: Searched, Weight: SearchWeight})
}

func (e *Engine) RecordPurchase(ctx context.Context, userID, productID string, quantity int) error {
	return e.record(ctx, "record_purchase", Interaction{
		UserID:    userID,
		ProductID: productID,
		Type:      Purchased,
		Weight:    PurchaseUnitWeight * quantity,
	})
}

func (e *Engine) record(ctx context.Context, op string, in Interaction) error {
	if in.UserID == "" || in.ProductID == "" {
		return apperrors.Validation(apperrors.CodeInvalidInput, "interaction needs a user and a product").
			WithOperation(op).
			Build()
	}
	in.Timestamp = e.now().UTC()
	return e.guard(ctx, op, func(ctx context.Context) error {
		return e.store.AddInteraction(ctx, in)
	})
}

// LinkSimilar creates or reweights the similarity edge between two products.
func (e *Engine) LinkSimilar(ctx context.Context, productID1, productID2 string, weight float64) error {
	if productID1 == "" || productID2 == "" || productID1 == productID2 {
		return apperrors.Validation(apperrors.CodeInvalidInput, "similarity needs two distinct products").
			WithOperation("link_similar").
			Build()
	}
	return e.guard(ctx, "link_similar", func(ctx context.Context) error {
		return e.store.AddSimilarity(ctx, Similarity{ProductID1: productID1, ProductID2: productID2, Weight: weight})
	})
}

func (e *Engine) RemoveProduct(ctx context.Context, id string) error {
	return e.guard(ctx, "remove_product", func(ctx context.Context) error {
		return e.store.DeleteProduct(ctx, id)
	})
}

func (e *Engine) RemoveUser(ctx context.Context, id string) error {
	return e.guard(ctx, "remove_user", func(ctx context.Context) error {
		return e.store.DeleteUser(ctx, id)
	})
}

// ============================================================================
// QUERIES
// ============================================================================

// Similar returns the products linked to productID, best rated first.
func (e *Engine) Similar(ctx context.Context, productID string, limit int) []ProductScore {
	return e.query(ctx, "similar", func(ctx context.Context) ([]ProductScore, error) {
		ids, err := e.store.SimilarTo(ctx, productID)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int, len(ids))
		for _, id := range ids {
			if id != productID {
				counts[id] = 0
			}
		}
		return e.rankProducts(ctx, counts, e.limit(limit))
	})
}

// Collaborative follows user → engaged product → similar product and ranks
// candidates the user has never touched by the number of such paths.
func (e *Engine) Collaborative(ctx context.Context, userID string, limit int) []ProductScore {
	return e.query(ctx, "collaborative", func(ctx context.Context) ([]ProductScore, error) {
		interactions, err := e.store.UserInteractions(ctx, userID)
		if err != nil {
			return nil, err
		}

		touched := make(map[string]bool)
		engagedEdges := make(map[string]int)
		for _, in := range interactions {
			touched[in.ProductID] = true
			if in.Type.Engagement() {
				engagedEdges[in.ProductID]++
			}
		}

		paths := make(map[string]int)
		for productID, edges := range engagedEdges {
			neighbours, err := e.store.SimilarTo(ctx, productID)
			if err != nil {
				return nil, err
			}
			for _, candidate := range neighbours {
				if touched[candidate] {
					continue
				}
				paths[candidate] += edges
			}
		}
		return e.rankProducts(ctx, paths, e.limit(limit))
	})
}

// Trending counts engagement edges newer than now - window per product.
func (e *Engine) Trending(ctx context.Context, limit int, window time.Duration) []ProductScore {
	if window <= 0 {
		window = e.trendingWindow
	}
	return e.query(ctx, "trending", func(ctx context.Context) ([]ProductScore, error) {
		since := e.now().Add(-window)
		interactions, err := e.store.InteractionsSince(ctx, since)
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int)
		for _, in := range interactions {
			if in.Type.Engagement() && in.Timestamp.After(since) {
				counts[in.ProductID]++
			}
		}
		return e.rankProducts(ctx, counts, e.limit(limit))
	})
}

// SimilarUsers ranks other users by the number of distinct engaged products
// they share with userID.
func (e *Engine) SimilarUsers(ctx context.Context, userID string, limit int) []UserScore {
	var out []UserScore
	err := e.guardQuery(ctx, "similar_users", func(ctx context.Context) error {
		mine, err := e.store.UserInteractions(ctx, userID)
		if err != nil {
			return err
		}
		engaged := make(map[string]bool)
		for _, in := range mine {
			if in.Type.Engagement() {
				engaged[in.ProductID] = true
			}
		}

		shared := make(map[string]map[string]bool)
		for productID := range engaged {
			others, err := e.store.ProductInteractions(ctx, productID)
			if err != nil {
				return err
			}
			for _, in := range others {
				if in.UserID == userID || !in.Type.Engagement() {
					continue
				}
				if shared[in.UserID] == nil {
					shared[in.UserID] = make(map[string]bool)
				}
				shared[in.UserID][productID] = true
			}
		}

		ids := make([]string, 0, len(shared))
		for id := range shared {
			ids = append(ids, id)
		}
		nodes, err := e.store.Users(ctx, ids)
		if err != nil {
			return err
		}

		for id, products := range shared {
			node, ok := nodes[id]
			if !ok {
				continue
			}
			out = append(out, UserScore{User: node, Shared: len(products)})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Shared != out[j].Shared {
				return out[i].Shared > out[j].Shared
			}
			return out[i].User.ID < out[j].User.ID
		})
		if n := e.limit(limit); len(out) > n {
			out = out[:n]
		}
		return nil
	})
	if err != nil || out == nil {
		out = []UserScore{}
	}
	e.metrics.RecommendationQuery("similar_users", len(out) == 0)
	return out
}

// CategoryAffinity counts similarity edges from products of category into
// every other category.
func (e *Engine) CategoryAffinity(ctx context.Context, category string, limit int) []CategoryScore {
	var out []CategoryScore
	err := e.guardQuery(ctx, "category_affinity", func(ctx context.Context) error {
		members, err := e.store.ProductsInCategory(ctx, category)
		if err != nil {
			return err
		}

		// Collect each cross-category edge once per unordered pair.
		edges := make(map[[2]string]bool)
		var neighbourIDs []string
		for _, p := range members {
			ids, err := e.store.SimilarTo(ctx, p.ID)
			if err != nil {
				return err
			}
			for _, q := range ids {
				edges[[2]string{p.ID, q}] = true
				neighbourIDs = append(neighbourIDs, q)
			}
		}

		nodes, err := e.store.Products(ctx, neighbourIDs)
		if err != nil {
			return err
		}

		counts := make(map[string]int)
		for pair := range edges {
			q, ok := nodes[pair[1]]
			if !ok || q.Category == category {
				continue
			}
			counts[q.Category]++
		}

		for c, n := range counts {
			out = append(out, CategoryScore{Category: c, Edges: n})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Edges != out[j].Edges {
				return out[i].Edges > out[j].Edges
			}
			return out[i].Category < out[j].Category
		})
		if n := e.limit(limit); len(out) > n {
			out = out[:n]
		}
		return nil
	})
	if err != nil || out == nil {
		out = []CategoryScore{}
	}
	e.metrics.RecommendationQuery("category_affinity", len(out) == 0)
	return out
}

// ============================================================================
// HELPERS
// ============================================================================

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.defaultLimit
	}
	return n
}

// rankProducts resolves ids to nodes, dropping ids without a node, and sorts
// by score desc, rating desc, id asc.
func (e *Engine) rankProducts(ctx context.Context, scores map[string]int, limit int) ([]ProductScore, error) {
	if len(scores) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	nodes, err := e.store.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ProductScore, 0, len(nodes))
	for id, score := range scores {
		if node, ok := nodes[id]; ok {
			out = append(out, ProductScore{Product: node, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Product.Rating != b.Product.Rating {
			return a.Product.Rating > b.Product.Rating
		}
		return a.Product.ID < b.Product.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Engine) query(ctx context.Context, name string, fn func(ctx context.Context) ([]ProductScore, error)) []ProductScore {
	var out []ProductScore
	err := e.guardQuery(ctx, name, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil || out == nil {
		out = []ProductScore{}
	}
	e.metrics.RecommendationQuery(name, len(out) == 0)
	return out
}

// guardQuery runs a read and logs failures; callers turn them into empty results.
func (e *Engine) guardQuery(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := e.guard(ctx, name, fn)
	if err != nil {
		e.logger.Warn("Graph query failed, returning empty result",
			zap.String("query", name),
			zap.Error(err),
		)
	}
	return err
}

// guard runs fn through the breaker inside a span and maps failures to
// BackendUnavailable.
func (e *Engine) guard(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "graph."+op, trace.WithAttributes(attribute.String("graph.operation", op)))
	defer span.End()

	err := e.breaker.Do(func() error { return fn(ctx) })
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return apperrors.BackendUnavailable(apperrors.CodeGraphUnavailable, "graph store unavailable").
		WithOperation(op).
		WithCause(err).
		Build()
}
