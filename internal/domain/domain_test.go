package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_Transitions(t *testing.T) {
	t.Run("merge sums quantities of the same product", func(t *testing.T) {
		c := NewCart("u1")
		c.Merge("p1", 2)
		c.Merge("p1", 3)
		c.Merge("p2", 1)

		require.Len(t, c.Items, 2)
		assert.Equal(t, 5, c.Quantity("p1"))
		assert.Equal(t, 6, c.ItemCount())
	})

	t.Run("set overwrites and zero removes", func(t *testing.T) {
		c := NewCart("u1")
		c.Merge("p1", 2)
		c.Merge("p2", 4)

		assert.True(t, c.Set("p1", 7))
		assert.Equal(t, 7, c.Quantity("p1"))

		assert.True(t, c.Set("p2", 0))
		assert.False(t, c.Has("p2"))

		assert.False(t, c.Set("missing", 1))
	})

	t.Run("remove keeps line order", func(t *testing.T) {
		c := NewCart("u1")
		c.Merge("a", 1)
		c.Merge("b", 1)
		c.Merge("c", 1)
		c.Remove("b")
		c.Remove("nope")

		assert.Equal(t, []CartLine{{ProductID: "a", Quantity: 1}, {ProductID: "c", Quantity: 1}}, c.Items)
	})
}

func TestPricing_Compute(t *testing.T) {
	policy := DefaultPricing()

	tests := []struct {
		name     string
		lines    []OrderLine
		subtotal string
		tax      string
		shipping string
		total    string
	}{
		{
			name: "below free shipping threshold",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
				{ProductID: "p2", Quantity: 3, UnitPrice: decimal.RequireFromString("5.00")},
			},
			subtotal: "35", tax: "2.8", shipping: "10", total: "47.8",
		},
		{
			name: "exactly at threshold still pays shipping",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("100.00")},
			},
			subtotal: "100", tax: "8", shipping: "10", total: "118",
		},
		{
			name: "above threshold ships free",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("100.01")},
			},
			subtotal: "100.01", tax: "8", shipping: "0", total: "108.01",
		},
		{
			name: "tax rounds to cents",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 3, UnitPrice: decimal.RequireFromString("0.99")},
			},
			subtotal: "2.97", tax: "0.24", shipping: "10", total: "13.21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Compute(tt.lines)
			assert.True(t, decimal.RequireFromString(tt.subtotal).Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, decimal.RequireFromString(tt.tax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, decimal.RequireFromString(tt.shipping).Equal(got.ShippingCost), "shipping %s", got.ShippingCost)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(got.Total), "total %s", got.Total)
		})
	}
}

func TestParsePricing(t *testing.T) {
	p, err := ParsePricing("0.2", "50", "4.99")
	require.NoError(t, err)
	assert.Equal(t, "0.2", p.TaxRate.String())

	_, err = ParsePricing("x", "50", "4.99")
	assert.Error(t, err)
}

func TestOrder_StatusRules(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, s := range []OrderStatus{OrderPending, OrderProcessing} {
		o := &Order{Status: s}
		assert.True(t, o.Cancellable(), s)
	}
	for _, s := range []OrderStatus{OrderShipped, OrderDelivered, OrderCancelled} {
		o := &Order{Status: s}
		assert.False(t, o.Cancellable(), s)
	}

	o := &Order{Status: OrderShipped}
	o.ApplyStatus(OrderDelivered, "TRK1", now)
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, now, *o.DeliveredAt)
	assert.Equal(t, "TRK1", o.TrackingNumber)
	assert.Nil(t, o.CancelledAt)

	o = &Order{Status: OrderPending}
	o.MarkCancelled("changed mind", now)
	assert.Equal(t, OrderCancelled, o.Status)
	assert.Equal(t, "changed mind", o.CancelReason)
	require.NotNil(t, o.CancelledAt)

	assert.False(t, OrderStatus("lost").Valid())
}
