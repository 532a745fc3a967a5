// Package order runs checkout and the order lifecycle. It keeps stock counts,
// cart state and interaction history coherent across the document store, the
// cache and the graph, each of which can fail independently.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/events"
	"storefront-backend/internal/infrastructure/concurrency"
	"storefront-backend/internal/infrastructure/observability"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/validation"
)

// CacheInvalidator drops cached product copies after stock changes.
type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, id string) error
}

// CartStore is the slice of the cart service checkout needs.
type CartStore interface {
	Load(ctx context.Context, userID string) (*domain.Cart, cache.Result)
	ClearCart(ctx context.Context, userID string) error
}

// InteractionRecorder receives purchase edges. Go runs a write detached and
// bounded, the way the recorder's other callers do.
type InteractionRecorder interface {
	RecordPurchase(ctx context.Context, userID, productID string, quantity int) error
	Go(ctx context.Context, op string, fn func(ctx context.Context) error)
}

// Item is one requested line of a new order.
type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// PlaceOrderCommand is the input to PlaceOrder.
type PlaceOrderCommand struct {
	UserID          string         `json:"userId" validate:"required"`
	Items           []Item         `json:"items" validate:"required,min=1,dive"`
	ShippingAddress domain.Address `json:"shippingAddress"`
	PaymentMethod   string         `json:"paymentMethod" validate:"required"`
}

// Service is the order fulfillment orchestrator.
type Service struct {
	products  repository.ProductRepository
	orders    repository.OrderRepository
	catalog   CacheInvalidator
	carts     CartStore
	graph     InteractionRecorder
	publisher events.Publisher
	runner    *concurrency.Runner

	pricing domain.PricingPolicy
	logger  *zap.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option { return func(s *Service) { s.logger = logger } }

func WithMetrics(m *observability.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithPricing(p domain.PricingPolicy) Option { return func(s *Service) { s.pricing = p } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides how order ids are minted.
func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func NewService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	catalog CacheInvalidator,
	carts CartStore,
	graph InteractionRecorder,
	publisher events.Publisher,
	runner *concurrency.Runner,
	opts ...Option,
) *Service {
	s := &Service{
		products:  products,
		orders:    orders,
		catalog:   catalog,
		carts:     carts,
		graph:     graph,
		publisher: publisher,
		runner:    runner,
		pricing:   domain.DefaultPricing(),
		tracer:    otel.Tracer("storefront/order"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.runner == nil {
		s.runner = concurrency.NewRunner(0, s.logger, s.metrics)
	}
	return s
}

// ============================================================================
// CHECKOUT
// ============================================================================

// PlaceOrder validates every line against live stock, decrements stock line
// by line, persists the order and then clears the cart. Any failure after the
// first decrement restores the stock already taken; no partial order is
// written. Graph edges, cart clearing and events never fail the call.
func (s *Service) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (order *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.place", trace.WithAttributes(
		attribute.String("user.id", cmd.UserID),
		attribute.Int("order.lines", len(cmd.Items)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.OrderFailed(string(apperrors.TypeOf(err)))
		}
		span.End()
	}()

	if err := validation.Struct(cmd); err != nil {
		return nil, err
	}
	items := mergeItems(cmd.Items)

	products, err := s.fetchProducts(ctx, items)
	if err != nil {
		return nil, err
	}
	if err := checkAvailability(items, products); err != nil {
		return nil, err
	}

	lines, err := s.reserveStock(ctx, items, products)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	totals := s.pricing.Compute(lines)
	order = &domain.Order{
		ID:              s.newID(),
		UserID:          cmd.UserID,
		Items:           lines,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.ShippingCost,
		Total:           totals.Total,
		Status:          domain.OrderPending,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   cmd.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseStock(ctx, lines)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	s.afterPlace(ctx, order)
	s.metrics.OrderPlaced()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// PlaceOrderFromCart checks out the user's stored cart.
func (s *Service) PlaceOrderFromCart(ctx context.Context, userID string, address domain.Address, paymentMethod string) (*domain.Order, error) {
	c, result := s.carts.Load(ctx, userID)
	if result == cache.BackendDown {
		return nil, apperrors.BackendUnavailable(apperrors.CodeCacheUnavailable, "cart storage unavailable").
			WithResource(userID).
			Build()
	}
	if c == nil || c.IsEmpty() {
		return nil, apperrors.Validation(apperrors.CodeCartEmpty, "cart is empty").
			WithResource(userID).
			Build()
	}

	items := make([]Item, len(c.Items))
	for i, line := range c.Items {
		items[i] = Item{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return s.PlaceOrder(ctx, PlaceOrderCommand{
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
	})
}

// mergeItems folds repeated products into one line, keeping first-seen order.
func mergeItems(in []Item) []Item {
	out := make([]Item, 0, len(in))
	index := make(map[string]int, len(in))
	for _, it := range in {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// fetchProducts reads every product from the authoritative store in parallel.
func (s *Service) fetchProducts(ctx context.Context, items []Item) ([]*domain.Product, error) {
	products := make([]*domain.Product, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			p, err := s.products.FindByID(gctx, it.ProductID)
			if err != nil {
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func checkAvailability(items []Item, products []*domain.Product) error {
	for i, it := range items {
		p := products[i]
		if !p.Purchasable() {
			return apperrors.NotFound(apperrors.CodeProductInactive, "product is not available").
				WithResource(p.ID).
				Build()
		}
		if !p.HasStock(it.Quantity) {
			return apperrors.InsufficientStock(apperrors.CodeInsufficientStock, "not enough stock").
				WithResource(p.ID).
				WithDetails(fmt.Sprintf("requested %d, available %d", it.Quantity, p.Stock)).
				Build()
		}
	}
	return nil
}

// reserveStock decrements stock per line in input order and snapshots the
// price. If any decrement fails, the lines already taken are put back.
func (s *Service) reserveStock(ctx context.Context, items []Item, products []*domain.Product) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	for i, it := range items {
		if _, err := s.products.UpdateStock(ctx, it.ProductID, -it.Quantity); err != nil {
			s.releaseStock(ctx, lines)
			return nil, err
		}
		p := products[i]
		lines = append(lines, domain.OrderLine{
			ProductID: p.ID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		})
	}
	s.invalidate(ctx, lines)
	return lines, nil
}

// releaseStock adds the quantities of lines back. It runs detached from the
// request so a cancelled caller still gets its stock restored. Failures are
// logged for reconciliation.
func (s *Service) releaseStock(ctx context.Context, lines []domain.OrderLine) {
	if len(lines) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, line := range lines {
		if _, err := s.products.UpdateStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("Stock compensation failed",
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
		}
	}
	s.invalidate(ctx, lines)
}

func (s *Service) invalidate(ctx context.Context, lines []domain.OrderLine) {
	if s.catalog == nil {
		return
	}
	for _, line := range lines {
		if err := s.catalog.InvalidateProduct(ctx, line.ProductID); err != nil {
			s.logger.Warn("Product cache invalidation failed",
				zap.String("product_id", line.ProductID),
				zap.Error(err),
			)
		}
	}
}

// afterPlace runs the side channels of a committed order.
func (s *Service) afterPlace(ctx context.Context, o *domain.Order) {
	if s.graph != nil {
		for _, line := range o.Items {
			s.graph.Go(ctx, "graph.record_purchase", func(ctx context.Context) error {
				return s.graph.RecordPurchase(ctx, o.UserID, line.ProductID, line.Quantity)
			})
		}
	}
	if s.carts != nil {
		s.runner.Do(ctx, "cart.clear", func(ctx context.Context) error {
			return s.carts.ClearCart(ctx, o.UserID)
		})
	}
	s.publish(ctx, events.OrderPlaced(o))
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	s.runner.Go(ctx, "events.publish", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, e)
	})
}

// ============================================================================
// QUERIES
// ============================================================================

// GetOrder returns the order when it belongs to userID. Orders of other users
// read as not found.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperrors.NotFound(apperrors.CodeOrderNotFound, "order not found").
			WithResource(orderID).
			Build()
	}
	return o, nil
}

// ListOrders returns the user's orders newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, err := s.orders.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, nil
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// cancelAttempts bounds how often Cancel re-reads an order whose status moved
// between its read and its write.
const cancelAttempts = 3

// Cancel marks the order cancelled and then restores stock for every line.
// Cancelling a cancelled order is a no-op; shipped and delivered orders
// cannot be cancelled. The write is conditional on the status that was read,
// so of two concurrent cancellations only one restores stock.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (o *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var from domain.OrderStatus
	for attempt := 1; ; attempt++ {
		o, err = s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status == domain.OrderCancelled {
			return o, nil
		}
		if !o.Cancellable() {
			return nil, apperrors.InvalidState(apperrors.CodeOrderNotCancellable, "order can no longer be cancelled").
				WithResource(orderID).
				WithDetails("status " + string(o.Status)).
				Build()
		}

		from = o.Status
		o.MarkCancelled(reason, s.now().UTC())
		err = s.orders.Update(ctx, o, from)
		if err == nil {
			break
		}
		if !apperrors.HasCode(err, apperrors.CodeOrderStatusChanged) || attempt == cancelAttempts {
			return nil, err
		}
		s.logger.Debug("Order changed during cancel; re-reading",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
		)
	}

	s.releaseStock(ctx, o.Items)

	s.publish(ctx, events.OrderCancelled(o))
	s.metrics.OrderCancelled()
	s.logger.Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.String("previous_status", string(from)),
		zap.String("reason", reason),
	)
	return o, nil
}

// UpdateStatus sets an operator-chosen status. Transitions are not checked
// and stock is left alone. A status changed by someone else since the read
// fails with InvalidState rather than being overwritten.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, trackingNumber string) (o *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.update_status", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(status)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !status.Valid() {
		return nil, apperrors.Validation(apperrors.CodeOrderInvalidStatus, "unknown order status").
			WithDetails(string(status)).
			Build()
	}

	o, err = s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	o.ApplyStatus(status, trackingNumber, s.now().UTC())
	if err := s.orders.Update(ctx, o, from); err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderStatusChanged(o, from))
	return o, nil
}
