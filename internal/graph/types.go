// Package graph tracks user/product interactions and turns them into ranked
// recommendations. The graph is a projection of the authoritative records:
// nodes may lag or be missing, and every query degrades to an empty result
// rather than an error.
package graph

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

// EdgeType is the kind of an interaction edge.
type EdgeType string

const (
	Viewed    EdgeType = "VIEWED"
	Purchased EdgeType = "PURCHASED"
	Searched  EdgeType = "SEARCHED"
)

// Engagement reports whether the edge counts as engagement for ranking.
// Searches are recorded but never ranked.
func (t EdgeType) Engagement() bool {
	return t == Viewed || t == Purchased
}

// Default edge weights.
const (
	ViewWeight          = 1
	SearchWeight        = 1
	PurchaseUnitWeight  = 5
	DefaultSimilarLimit = 10
)

// ProductNode is the product projection held by the graph.
type ProductNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Brand    string          `json:"brand,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Rating   float64         `json:"rating"`
}

// ProductNodeFrom projects an authoritative product.
func ProductNodeFrom(p *domain.Product) ProductNode {
	return ProductNode{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Brand:    p.Brand,
		Price:    p.Price,
		Rating:   p.Rating,
	}
}

// UserNode is the user projection held by the graph.
type UserNode struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserNodeFrom projects an authoritative user.
func UserNodeFrom(u *domain.User) UserNode {
	return UserNode{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Interaction is one append-only user→product edge.
type Interaction struct {
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Type      EdgeType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Weight    int       `json:"weight"`
}

// Similarity is an undirected product↔product edge.
type Similarity struct {
	ProductID1 string  `json:"productId1"`
	ProductID2 string  `json:"productId2"`
	Weight     float64 `json:"weight"`
}

// ProductScore is a ranked product.
type ProductScore struct {
	Product ProductNode `json:"product"`
	Score   int         `json:"score"`
}

// UserScore is a ranked user with the number of products shared.
type UserScore struct {
	User   UserNode `json:"user"`
	Shared int      `json:"shared"`
}

// CategoryScore counts similarity edges into another category.
type CategoryScore struct {
	Category string `json:"category"`
	Edges    int    `json:"edges"`
}
