package memory

import (
	"context"
	"sort"
	"sync"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

// OrderStore is an in-memory OrderRepository.
type OrderStore struct {
	faults
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

var _ repository.OrderRepository = (*OrderStore)(nil)

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*domain.Order)}
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	if err := s.checkError("Create"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return apperrors.InvalidState(apperrors.CodeOrderAlreadyExists, "order already exists").
			WithResource(order.ID).
			Build()
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := s.checkError("FindByID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeOrderNotFound, "order not found").
			WithResource(id).
			Build()
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) FindByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	if err := s.checkError("FindByUser"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error {
	if err := s.checkError("Update"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeOrderNotFound, "order not found").
			WithResource(order.ID).
			Build()
	}
	if stored.Status != expected {
		return apperrors.InvalidState(apperrors.CodeOrderStatusChanged, "order status changed concurrently").
			WithResource(order.ID).
			WithDetails("status " + string(stored.Status)).
			Build()
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

// Count returns the number of stored orders.
func (s *OrderStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderLine(nil), o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
