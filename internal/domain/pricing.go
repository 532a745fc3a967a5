package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingPolicy holds the checkout rules for tax and shipping.
type PricingPolicy struct {
	TaxRate decimal.Decimal
	// Orders with a subtotal strictly above FreeShippingThreshold ship free.
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
}

// Totals are the computed money fields of an order.
type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// DefaultPricing is 8% tax, free shipping above 100, otherwise 10.
func DefaultPricing() PricingPolicy {
	return PricingPolicy{
		TaxRate:               decimal.RequireFromString("0.08"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShipping:          decimal.NewFromInt(10),
	}
}

// ParsePricing builds a policy from decimal strings.
func ParsePricing(taxRate, freeShippingThreshold, flatShipping string) (PricingPolicy, error) {
	var p PricingPolicy
	var err error
	if p.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return p, fmt.Errorf("tax rate: %w", err)
	}
	if p.FreeShippingThreshold, err = decimal.NewFromString(freeShippingThreshold); err != nil {
		return p, fmt.Errorf("free shipping threshold: %w", err)
	}
	if p.FlatShipping, err = decimal.NewFromString(flatShipping); err != nil {
		return p, fmt.Errorf("flat shipping: %w", err)
	}
	return p, nil
}

// Compute prices lines. Tax is rounded to cents.
func (p PricingPolicy) Compute(lines []OrderLine) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}

	tax := subtotal.Mul(p.TaxRate).Round(2)
	shipping := p.FlatShipping
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        subtotal.Add(tax).Add(shipping),
	}
}
