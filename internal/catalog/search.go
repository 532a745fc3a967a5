package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/validation"
)

// SearchFunc runs a full-text query against the search backend and returns
// matching product ids in relevance order.
type SearchFunc func(ctx context.Context, query string) ([]string, error)

// Search caches the ids a query resolved to under search:{base64(query)} and
// hydrates them through GetProduct. Products that disappeared or went
// inactive since the ids were cached are skipped.
func (s *Service) Search(ctx context.Context, query string, search SearchFunc) ([]*domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.Product{}, nil
	}

	ids, err := cache.Load(ctx, s.cache, cache.SearchKey(query), s.cache.TTL().Search,
		func(ctx context.Context) ([]string, error) {
			ids, err := search(ctx, query)
			if ids == nil {
				ids = []string{}
			}
			return ids, err
		})
	if err != nil {
		return nil, err
	}

	found, err := s.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok && p.Purchasable() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Listing sort orders.
const (
	SortRating    = "rating"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListQuery selects one page of a category listing.
type ListQuery struct {
	Category string `json:"category" validate:"required"`
	Page     int    `json:"page" validate:"gte=0"`
	PageSize int    `json:"pageSize" validate:"gte=0,lte=100"`
	Sort     string `json:"sort" validate:"omitempty,oneof=rating price_asc price_desc name"`
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Sort == "" {
		q.Sort = SortRating
	}
	return q
}

// Canonical renders the query with defaults applied so equivalent queries
// share one cache key.
func (q ListQuery) Canonical() string {
	n := q.normalized()
	return fmt.Sprintf("category=%s&page=%d&size=%d&sort=%s", n.Category, n.Page, n.PageSize, n.Sort)
}

// ProductPage is one page of a listing.
type ProductPage struct {
	Items    []*domain.Product `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
}

// ListFunc loads a page from the authoritative store.
type ListFunc func(ctx context.Context, q ListQuery) (*ProductPage, error)

// ListProducts returns a cached page keyed by the canonical query. A nil load
// pages over the repository's category index. Listing entries are not
// invalidated on writes and live until their TTL runs out.
func (s *Service) ListProducts(ctx context.Context, q ListQuery, load ListFunc) (*ProductPage, error) {
	if err := validation.Struct(q); err != nil {
		return nil, err
	}
	q = q.normalized()
	if load == nil {
		load = s.listFromRepository
	}
	return cache.Load(ctx, s.cache, cache.ProductListKey(q.Canonical()), s.cache.TTL().ProductList,
		func(ctx context.Context) (*ProductPage, error) {
			return load(ctx, q)
		})
}

func (s *Service) listFromRepository(ctx context.Context, q ListQuery) (*ProductPage, error) {
	all, err := s.products.FindByCategory(ctx, q.Category, 0)
	if err != nil {
		return nil, err
	}
	sortProducts(all, q.Sort)

	page := &ProductPage{Page: q.Page, PageSize: q.PageSize, Total: len(all), Items: []*domain.Product{}}
	start := (q.Page - 1) * q.PageSize
	if start >= len(all) {
		return page, nil
	}
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	page.Items = all[start:end]
	return page, nil
}

func sortProducts(ps []*domain.Product, order string) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		switch order {
		case SortPriceAsc:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case SortPriceDesc:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		case SortName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		default:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		}
		return a.ID < b.ID
	})
}
