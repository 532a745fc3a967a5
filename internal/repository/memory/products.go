package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

// ProductStore is an in-memory ProductRepository.
type ProductStore struct {
	faults
	mu       sync.RWMutex
	products map[string]domain.Product
}

var _ repository.ProductRepository = (*ProductStore)(nil)

func NewProductStore(products ...*domain.Product) *ProductStore {
	s := &ProductStore{products: make(map[string]domain.Product)}
	for _, p := range products {
		s.products[p.ID] = *p
	}
	return s
}

func (s *ProductStore) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.checkError("FindByID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, productNotFound(id)
	}
	return &p, nil
}

func (s *ProductStore) FindByCategory(ctx context.Context, category string, limit int) ([]*domain.Product, error) {
	if err := s.checkError("FindByCategory"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Product
	for _, p := range s.products {
		if p.Category != category || !p.Active {
			continue
		}
		p := p
		out = append(out, &p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ProductStore) UpdateStock(ctx context.Context, id string, delta int) (int, error) {
	if err := s.checkError("UpdateStock"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return 0, productNotFound(id)
	}
	if p.Stock+delta < 0 {
		return p.Stock, apperrors.InsufficientStock(apperrors.CodeInsufficientStock, "insufficient stock").
			WithResource(id).
			WithOperation("UpdateStock").
			Build()
	}

	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p.Stock, nil
}

func (s *ProductStore) Save(ctx context.Context, product *domain.Product) error {
	if err := s.checkError("Save"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = *product
	return nil
}

// Stock returns the current stock of id, or -1 when missing.
func (s *ProductStore) Stock(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[id]; ok {
		return p.Stock
	}
	return -1
}

func productNotFound(id string) error {
	return apperrors.NotFound(apperrors.CodeProductNotFound, "product not found").
		WithResource(id).
		Build()
}
