// Package catalog serves product and user reads through the cache-aside
// store. The repository stays authoritative; the cache only ever holds
// copies that expire or are invalidated after a write.
package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

// maxParallelLoads bounds concurrent repository reads in GetProducts.
const maxParallelLoads = 8

// Service reads catalog records cache-first.
type Service struct {
	products repository.ProductRepository
	users    repository.UserRepository
	cache    *cache.Store
	logger   *zap.Logger
}

func NewService(products repository.ProductRepository, users repository.UserRepository, store *cache.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		products: products,
		users:    users,
		cache:    store,
		logger:   logger,
	}
}

// GetProduct returns the product under product:{id}, loading it from the
// repository on a miss. Inactive products are returned as stored; callers
// decide whether they are purchasable.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "product id is required").Build()
	}
	return cache.Load(ctx, s.cache, cache.ProductKey(id), s.cache.TTL().Product,
		func(ctx context.Context) (*domain.Product, error) {
			return s.products.FindByID(ctx, id)
		})
}

// CurrentProduct reads the product from the repository, bypassing the cache,
// and refreshes the cached copy. Stock checks use it; a cached product may
// lag stock sold since it was cached.
func (s *Service) CurrentProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "product id is required").Build()
	}
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, cache.ProductKey(id), p, s.cache.TTL().Product); err != nil {
		s.logger.Debug("Product cache refresh failed", zap.String("product_id", id), zap.Error(err))
	}
	return p, nil
}

// GetProducts resolves ids concurrently. Missing products are left out of the
// result; any other failure aborts the whole call.
func (s *Service) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*domain.Product, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for _, id := range ids {
		g.Go(func() error {
			p, err := s.GetProduct(gctx, id)
			if apperrors.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser returns the user under user:{id}, loading it on a miss.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "user id is required").Build()
	}
	return cache.Load(ctx, s.cache, cache.UserKey(id), s.cache.TTL().User,
		func(ctx context.Context) (*domain.User, error) {
			return s.users.FindByID(ctx, id)
		})
}

// InvalidateProduct drops the cached copy of a product. Deleting an absent
// key succeeds, so repeated calls are harmless.
func (s *Service) InvalidateProduct(ctx context.Context, id string) error {
	return s.cache.Del(ctx, cache.ProductKey(id))
}

// InvalidateUser drops the cached copy of a user.
func (s *Service) InvalidateUser(ctx context.Context, id string) error {
	return s.cache.Del(ctx, cache.UserKey(id))
}

// SaveProduct writes through to the repository and invalidates the cache.
func (s *Service) SaveProduct(ctx context.Context, p *domain.Product) error {
	if err := s.products.Save(ctx, p); err != nil {
		return err
	}
	if err := s.InvalidateProduct(ctx, p.ID); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.String("product_id", p.ID), zap.Error(err))
	}
	return nil
}
