// Package repository defines the ports to the authoritative document store.
// Adapters live in the memory and dynamodb subpackages.
package repository

import (
	"context"

	"storefront-backend/internal/domain"
)

// ProductRepository reads and writes catalog records.
type ProductRepository interface {
	// FindByID returns a NotFound error when the product does not exist.
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	// FindByCategory returns active products of category ordered by rating
	// descending, then id. limit <= 0 means no limit.
	FindByCategory(ctx context.Context, category string, limit int) ([]*domain.Product, error)
	// UpdateStock atomically adds delta to the stock count and returns the new
	// count. A result below zero is rejected with InsufficientStock and leaves
	// the record unchanged.
	UpdateStock(ctx context.Context, id string, delta int) (int, error)
	Save(ctx context.Context, product *domain.Product) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	// Create fails with InvalidState when the order id already exists.
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// FindByUser returns the user's orders newest first.
	FindByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	// Update replaces the mutable fields of an existing order whose stored
	// status is still expected. A changed status fails with InvalidState
	// carrying CodeOrderStatusChanged.
	Update(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error
}

// UserRepository reads and writes accounts.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

// Repositories groups the three ports for wiring.
type Repositories struct {
	Products ProductRepository
	Orders   OrderRepository
	Users    UserRepository
}
