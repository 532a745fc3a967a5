package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// OrderLine is a priced snapshot of one product at purchase time.
type OrderLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal is UnitPrice × Quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the authoritative purchase record. Lines and totals never change
// after creation; only status and tracking fields do.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Items           []OrderLine     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
}

// Address is a postal shipping address.
type Address struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

// Cancellable reports whether the order may still be cancelled.
func (o *Order) Cancellable() bool {
	switch o.Status {
	case OrderShipped, OrderDelivered, OrderCancelled:
		return false
	}
	return true
}

// MarkCancelled moves the order to cancelled and stamps cancelledAt.
func (o *Order) MarkCancelled(reason string, now time.Time) {
	o.Status = OrderCancelled
	o.CancelReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now
}

// ApplyStatus sets a new status, stamping deliveredAt or cancelledAt when the
// target status calls for it.
func (o *Order) ApplyStatus(status OrderStatus, trackingNumber string, now time.Time) {
	o.Status = status
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	switch status {
	case OrderDelivered:
		o.DeliveredAt = &now
	case OrderCancelled:
		o.CancelledAt = &now
	}
	o.UpdatedAt = now
}
