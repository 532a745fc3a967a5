// Package domain holds the retail entities shared by the storefront core:
// products, users, carts and orders, plus the pricing rules applied at checkout.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the authoritative catalog record. Price is carried as a decimal
// and serializes as a string.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Rating      float64         `json:"rating"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Purchasable reports whether the product can be put in a cart or order.
func (p *Product) Purchasable() bool {
	return p != nil && p.Active
}

// HasStock reports whether quantity units are available.
func (p *Product) HasStock(quantity int) bool {
	return quantity <= p.Stock
}

// User is the authoritative account record, used here only for identity.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
