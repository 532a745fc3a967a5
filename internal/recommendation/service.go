// Package recommendation is the read API over the graph engine. It adds the
// same-category fallback for product pages and turns page views and searches
// into interaction edges without ever blocking the caller.
package recommendation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/graph"
	"storefront-backend/internal/repository"
)

// Engine is the part of graph.Engine the facade uses.
type Engine interface {
	Similar(ctx context.Context, productID string, limit int) []graph.ProductScore
	Collaborative(ctx context.Context, userID string, limit int) []graph.ProductScore
	Trending(ctx context.Context, limit int, window time.Duration) []graph.ProductScore
	SimilarUsers(ctx context.Context, userID string, limit int) []graph.UserScore
	CategoryAffinity(ctx context.Context, category string, limit int) []graph.CategoryScore
	RecordView(ctx context.Context, userID, productID string) error
	RecordSearch(ctx context.Context, userID, productID string) error
	Go(ctx context.Context, op string, fn func(ctx context.Context) error)
}

// ProductReader reads products for the fallback path.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Service serves recommendations.
type Service struct {
	engine       Engine
	catalog      ProductReader
	products     repository.ProductRepository
	logger       *zap.Logger
	defaultLimit int
}

func NewService(engine Engine, catalog ProductReader, products repository.ProductRepository, defaultLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = graph.DefaultSimilarLimit
	}
	return &Service{
		engine:       engine,
		catalog:      catalog,
		products:     products,
		logger:       logger,
		defaultLimit: defaultLimit,
	}
}

// SimilarProducts returns graph neighbours of productID. When the graph has
// nothing, it falls back to the best rated products of the same category.
func (s *Service) SimilarProducts(ctx context.Context, productID string, limit int) []graph.ProductScore {
	limit = s.limit(limit)
	if got := s.engine.Similar(ctx, productID, limit); len(got) > 0 {
		return got
	}
	return s.sameCategory(ctx, productID, limit)
}

func (s *Service) sameCategory(ctx context.Context, productID string, limit int) []graph.ProductScore {
	out := []graph.ProductScore{}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Debug("No fallback for unknown product", zap.String("product_id", productID), zap.Error(err))
		return out
	}

	// One extra so the product itself can be dropped.
	candidates, err := s.products.FindByCategory(ctx, p.Category, limit+1)
	if err != nil {
		s.logger.Warn("Category fallback failed",
			zap.String("product_id", productID),
			zap.String("category", p.Category),
			zap.Error(err),
		)
		return out
	}
	for _, c := range candidates {
		if c.ID == productID {
			continue
		}
		out = append(out, graph.ProductScore{Product: graph.ProductNodeFrom(c)})
		if len(out) == limit {
			break
		}
	}
	return out
}

// ForUser returns collaborative recommendations for userID.
func (s *Service) ForUser(ctx context.Context, userID string, limit int) []graph.ProductScore {
	return s.engine.Collaborative(ctx, userID, s.limit(limit))
}

// Trending returns the most engaged products in window; zero uses the
// engine's default window.
func (s *Service) Trending(ctx context.Context, limit int, window time.Duration) []graph.ProductScore {
	return s.engine.Trending(ctx, s.limit(limit), window)
}

func (s *Service) SimilarUsers(ctx context.Context, userID string, limit int) []graph.UserScore {
	return s.engine.SimilarUsers(ctx, userID, s.limit(limit))
}

func (s *Service) CategoryAffinity(ctx context.Context, category string, limit int) []graph.CategoryScore {
	return s.engine.CategoryAffinity(ctx, category, s.limit(limit))
}

// TrackView records a product view in the background.
func (s *Service) TrackView(ctx context.Context, userID, productID string) {
	s.engine.Go(ctx, "graph.record_view", func(ctx context.Context) error {
		return s.engine.RecordView(ctx, userID, productID)
	})
}

// TrackSearch records that a search by userID surfaced productIDs.
func (s *Service) TrackSearch(ctx context.Context, userID string, productIDs []string) {
	for _, id := range productIDs {
		s.engine.Go(ctx, "graph.record_search", func(ctx context.Context) error {
			return s.engine.RecordSearch(ctx, userID, id)
		})
	}
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		return s.defaultLimit
	}
	return n
}
