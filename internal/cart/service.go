// Package cart implements the shopping cart on top of the cache-aside store.
// A cart is a single cache entry under cart:{userId}; it has no authoritative
// copy and is rewritten whole, with a fresh TTL, on every mutation.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/validation"
)

// ProductReader resolves live product records. CurrentProduct bypasses the
// cache and backs stock checks; the others may serve cached copies.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	CurrentProduct(ctx context.Context, id string) (*domain.Product, error)
}

// LineView is a cart line joined with its live product.
type LineView struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// View is the materialized cart returned to callers.
type View struct {
	UserID    string          `json:"userId"`
	Items     []LineView      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"itemCount"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

type addItemCommand struct {
	UserID    string `json:"userId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type updateItemCommand struct {
	UserID    string `json:"userId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

// Service runs cart transitions.
type Service struct {
	store    *cache.Store
	products ProductReader
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store *cache.Store, products ProductReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for UpdatedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetCart materializes the stored cart against live products. Lines whose
// product is gone or inactive are left out of the view but kept in storage.
// A missing cart, or an unreachable cache, yields an empty view.
func (s *Service) GetCart(ctx context.Context, userID string) (*View, error) {
	c, _ := s.Load(ctx, userID)
	if c == nil {
		return emptyView(userID), nil
	}

	ids := make([]string, len(c.Items))
	for i, line := range c.Items {
		ids[i] = line.ProductID
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := emptyView(userID)
	view.UpdatedAt = c.UpdatedAt
	for _, line := range c.Items {
		p, ok := products[line.ProductID]
		if !ok || !p.Purchasable() {
			continue
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Items = append(view.Items, LineView{
			ProductID: p.ID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			Stock:     p.Stock,
			LineTotal: total,
		})
		view.Subtotal = view.Subtotal.Add(total)
		view.ItemCount += line.Quantity
	}
	return view, nil
}

// Load returns the stored cart, or nil when there is none. The Result tells
// a real miss apart from an unreachable cache.
func (s *Service) Load(ctx context.Context, userID string) (*domain.Cart, cache.Result) {
	c, result := cache.LookupJSON[*domain.Cart](ctx, s.store, cache.CartKey(userID))
	if result != cache.Hit || c == nil {
		return nil, result
	}
	return c, result
}

// AddItem adds quantity units of productID, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	if err := validation.Struct(addItemCommand{UserID: userID, ProductID: productID, Quantity: quantity}); err != nil {
		return err
	}

	p, err := s.purchasable(ctx, productID)
	if err != nil {
		return err
	}

	c, err := s.loadForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if c == nil {
		c = domain.NewCart(userID)
	}

	want := c.Quantity(productID) + quantity
	if !p.HasStock(want) {
		return insufficientStock(p, want)
	}
	c.Merge(productID, quantity)
	return s.save(ctx, c)
}

// UpdateItem sets the quantity of an existing line; 0 removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int) error {
	if err := validation.Struct(updateItemCommand{UserID: userID, ProductID: productID, Quantity: quantity}); err != nil {
		return err
	}

	c, err := s.loadForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if c == nil {
		return apperrors.NotFound(apperrors.CodeCartNotFound, "cart not found").
			WithResource(userID).
			Build()
	}
	if !c.Has(productID) {
		return apperrors.NotFound(apperrors.CodeCartLineNotFound, "product not in cart").
			WithResource(productID).
			Build()
	}

	if quantity > 0 {
		p, err := s.purchasable(ctx, productID)
		if err != nil {
			return err
		}
		if !p.HasStock(quantity) {
			return insufficientStock(p, quantity)
		}
	}
	c.Set(productID, quantity)
	return s.save(ctx, c)
}

// RemoveItem drops the line for productID. Removing from a missing cart or a
// missing line succeeds.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	c, err := s.loadForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if c == nil || !c.Has(productID) {
		return nil
	}
	c.Remove(productID)
	return s.save(ctx, c)
}

// ClearCart deletes the cart. Clearing a missing cart succeeds.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if err := s.store.Del(ctx, cache.CartKey(userID)); err != nil {
		return err
	}
	s.logger.Debug("Cart cleared", zap.String("user_id", userID))
	return nil
}

// Count returns the number of units in the stored cart, 0 if there is none.
func (s *Service) Count(ctx context.Context, userID string) int {
	c, _ := s.Load(ctx, userID)
	if c == nil {
		return 0
	}
	return c.ItemCount()
}

// loadForUpdate distinguishes a missing cart from an unreachable cache so a
// mutation never overwrites a cart it could not read.
func (s *Service) loadForUpdate(ctx context.Context, userID string) (*domain.Cart, error) {
	c, result := s.Load(ctx, userID)
	if result == cache.BackendDown {
		return nil, apperrors.BackendUnavailable(apperrors.CodeCacheUnavailable, "cart storage unavailable").
			WithResource(userID).
			Build()
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *domain.Cart) error {
	c.UpdatedAt = s.now().UTC()
	return cache.SetJSON(ctx, s.store, cache.CartKey(c.UserID), c, s.store.TTL().Cart)
}

// purchasable checks the product against the repository so the stock bound
// is not taken from a stale cached copy.
func (s *Service) purchasable(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := s.products.CurrentProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, apperrors.NotFound(apperrors.CodeProductInactive, "product is not available").
			WithResource(productID).
			Build()
	}
	return p, nil
}

func insufficientStock(p *domain.Product, want int) error {
	return apperrors.InsufficientStock(apperrors.CodeInsufficientStock, "not enough stock").
		WithResource(p.ID).
		WithDetails(fmt.Sprintf("requested %d, available %d", want, p.Stock)).
		Build()
}

func emptyView(userID string) *View {
	return &View{UserID: userID, Items: []LineView{}, Subtotal: decimal.Zero}
}
