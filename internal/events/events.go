// Package events defines the order domain events and the publishers that
// ship them. Publishing is a side channel: order code calls it through the
// best-effort runner and never fails a request because an event was lost.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-backend/internal/domain"
)

// Event types.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderStatusChanged = "order.status_changed"
)

const schemaVersion = 1

// Event is the envelope every domain event travels in.
type Event struct {
	ID          string      `json:"eventId"`
	Type        string      `json:"eventType"`
	AggregateID string      `json:"aggregateId"`
	UserID      string      `json:"userId"`
	OccurredAt  time.Time   `json:"occurredAt"`
	Version     int         `json:"version"`
	Payload     interface{} `json:"payload"`
}

// OrderPlacedPayload summarizes a new order.
type OrderPlacedPayload struct {
	Items int             `json:"items"`
	Units int             `json:"units"`
	Total decimal.Decimal `json:"total"`
}

// OrderCancelledPayload records why an order was cancelled.
type OrderCancelledPayload struct {
	Reason        string `json:"reason,omitempty"`
	RestoredUnits int    `json:"restoredUnits"`
}

// OrderStatusChangedPayload records a status transition.
type OrderStatusChangedPayload struct {
	From           domain.OrderStatus `json:"from"`
	To             domain.OrderStatus `json:"to"`
	TrackingNumber string             `json:"trackingNumber,omitempty"`
}

func newEvent(eventType string, o *domain.Order, at time.Time, payload interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: o.ID,
		UserID:      o.UserID,
		OccurredAt:  at.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
	}
}

func units(o *domain.Order) int {
	n := 0
	for _, line := range o.Items {
		n += line.Quantity
	}
	return n
}

func OrderPlaced(o *domain.Order) Event {
	return newEvent(TypeOrderPlaced, o, o.CreatedAt, OrderPlacedPayload{
		Items: len(o.Items),
		Units: units(o),
		Total: o.Total,
	})
}

func OrderCancelled(o *domain.Order) Event {
	at := o.UpdatedAt
	if o.CancelledAt != nil {
		at = *o.CancelledAt
	}
	return newEvent(TypeOrderCancelled, o, at, OrderCancelledPayload{
		Reason:        o.CancelReason,
		RestoredUnits: units(o),
	})
}

func OrderStatusChanged(o *domain.Order, from domain.OrderStatus) Event {
	return newEvent(TypeOrderStatusChanged, o, o.UpdatedAt, OrderStatusChangedPayload{
		From:           from,
		To:             o.Status,
		TrackingNumber: o.TrackingNumber,
	})
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// LogPublisher writes events to the log instead of a bus.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.Info("Domain event",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.Type),
			zap.String("aggregate_id", e.AggregateID),
			zap.String("user_id", e.UserID),
			zap.Time("occurred_at", e.OccurredAt),
		)
	}
	return nil
}

// MemoryPublisher records events for inspection in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// SetError makes Publish fail with err; nil restores it.
func (p *MemoryPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MemoryPublisher) Publish(ctx context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Types returns the type of every published event in order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
