package graph

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryGraph is an in-process Store for local runs and tests.
type MemoryGraph struct {
	mu           sync.RWMutex
	products     map[string]ProductNode
	users        map[string]UserNode
	interactions []Interaction
	similar      map[string]map[string]float64

	// err, when set, is returned from every call to simulate an outage.
	err error
}

var _ Store = (*MemoryGraph)(nil)

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		products: make(map[string]ProductNode),
		users:    make(map[string]UserNode),
		similar:  make(map[string]map[string]float64),
	}
}

// SetError makes every call fail with err; nil restores service.
func (g *MemoryGraph) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *MemoryGraph) UpsertProduct(ctx context.Context, node ProductNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.products[node.ID] = node
	return nil
}

func (g *MemoryGraph) UpsertUser(ctx context.Context, node UserNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.users[node.ID] = node
	return nil
}

func (g *MemoryGraph) DeleteProduct(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}

	delete(g.products, id)
	for other := range g.similar[id] {
		delete(g.similar[other], id)
	}
	delete(g.similar, id)
	g.interactions = filterInteractions(g.interactions, func(in Interaction) bool { return in.ProductID != id })
	return nil
}

func (g *MemoryGraph) DeleteUser(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}

	delete(g.users, id)
	g.interactions = filterInteractions(g.interactions, func(in Interaction) bool { return in.UserID != id })
	return nil
}

func (g *MemoryGraph) AddInteraction(ctx context.Context, in Interaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.interactions = append(g.interactions, in)
	return nil
}

func (g *MemoryGraph) AddSimilarity(ctx context.Context, s Similarity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.link(s.ProductID1, s.ProductID2, s.Weight)
	g.link(s.ProductID2, s.ProductID1, s.Weight)
	return nil
}

func (g *MemoryGraph) link(from, to string, weight float64) {
	if g.similar[from] == nil {
		g.similar[from] = make(map[string]float64)
	}
	g.similar[from][to] = weight
}

func (g *MemoryGraph) Products(ctx context.Context, ids []string) (map[string]ProductNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}

	out := make(map[string]ProductNode, len(ids))
	for _, id := range ids {
		if p, ok := g.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (g *MemoryGraph) Users(ctx context.Context, ids []string) (map[string]UserNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}

	out := make(map[string]UserNode, len(ids))
	for _, id := range ids {
		if u, ok := g.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (g *MemoryGraph) ProductsInCategory(ctx context.Context, category string) ([]ProductNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}

	var out []ProductNode
	for _, p := range g.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *MemoryGraph) SimilarTo(ctx context.Context, productID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}

	out := make([]string, 0, len(g.similar[productID]))
	for id := range g.similar[productID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (g *MemoryGraph) UserInteractions(ctx context.Context, userID string) ([]Interaction, error) {
	return g.selectInteractions(func(in Interaction) bool { return in.UserID == userID })
}

func (g *MemoryGraph) ProductInteractions(ctx context.Context, productID string) ([]Interaction, error) {
	return g.selectInteractions(func(in Interaction) bool { return in.ProductID == productID })
}

func (g *MemoryGraph) InteractionsSince(ctx context.Context, since time.Time) ([]Interaction, error) {
	return g.selectInteractions(func(in Interaction) bool { return in.Timestamp.After(since) })
}

func (g *MemoryGraph) Ping(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

func (g *MemoryGraph) selectInteractions(keep func(Interaction) bool) ([]Interaction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	return filterInteractions(append([]Interaction(nil), g.interactions...), keep), nil
}

func filterInteractions(in []Interaction, keep func(Interaction) bool) []Interaction {
	out := in[:0]
	for _, i := range in {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}
