package graph

import (
	"context"
	"time"
)

// Store is the graph persistence port. Adapters only answer adjacency
// questions; all ranking happens in the Engine.
type Store interface {
	UpsertProduct(ctx context.Context, node ProductNode) error
	UpsertUser(ctx context.Context, node UserNode) error
	// DeleteProduct removes the node and every edge touching it.
	DeleteProduct(ctx context.Context, id string) error
	// DeleteUser removes the node and every interaction it made.
	DeleteUser(ctx context.Context, id string) error

	AddInteraction(ctx context.Context, in Interaction) error
	// AddSimilarity stores one edge per unordered pair; re-linking updates the weight.
	AddSimilarity(ctx context.Context, s Similarity) error

	Products(ctx context.Context, ids []string) (map[string]ProductNode, error)
	Users(ctx context.Context, ids []string) (map[string]UserNode, error)
	ProductsInCategory(ctx context.Context, category string) ([]ProductNode, error)

	// SimilarTo returns the ids linked to productID from either side.
	SimilarTo(ctx context.Context, productID string) ([]string, error)
	UserInteractions(ctx context.Context, userID string) ([]Interaction, error)
	ProductInteractions(ctx context.Context, productID string) ([]Interaction, error)
	// InteractionsSince returns edges with a timestamp strictly after since.
	InteractionsSince(ctx context.Context, since time.Time) ([]Interaction, error)

	Ping(ctx context.Context) error
}
