package cache

import (
	"encoding/base64"
	"strconv"
	"time"

	"storefront-backend/internal/config"
)

// Key prefixes. Each entity kind owns one namespace.
const (
	PrefixSession     = "session:"
	PrefixCart        = "cart:"
	PrefixProduct     = "product:"
	PrefixUser        = "user:"
	PrefixSearch      = "search:"
	PrefixProductList = "products:"
	PrefixRateLimit   = "ratelimit:"
)

func SessionKey(id string) string { return PrefixSession + id }

func CartKey(userID string) string { return PrefixCart + userID }

func ProductKey(id string) string { return PrefixProduct + id }

func UserKey(id string) string { return PrefixUser + id }

// SearchKey encodes the raw query so any characters are safe in a key.
func SearchKey(query string) string {
	return PrefixSearch + base64.StdEncoding.EncodeToString([]byte(query))
}

// ProductListKey keys a listing page by its canonical query string. Listing
// keys are unbounded in number and rely on TTL for eviction.
func ProductListKey(canonicalQuery string) string {
	return PrefixProductList + base64.StdEncoding.EncodeToString([]byte(canonicalQuery))
}

// RateLimitKey keys the counter of identity for one fixed window.
func RateLimitKey(identity string, windowID int64) string {
	return PrefixRateLimit + identity + ":" + strconv.FormatInt(windowID, 10)
}

// TTLPolicy is the expiry applied per entity kind.
type TTLPolicy struct {
	Session     time.Duration
	Cart        time.Duration
	Product     time.Duration
	User        time.Duration
	Search      time.Duration
	ProductList time.Duration
}

// DefaultTTLPolicy returns the stock expiries.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Session:     24 * time.Hour,
		Cart:        24 * time.Hour,
		Product:     time.Hour,
		User:        30 * time.Minute,
		Search:      5 * time.Minute,
		ProductList: 10 * time.Minute,
	}
}

// NewTTLPolicy takes configured expiries, keeping defaults for unset ones.
func NewTTLPolicy(cfg config.CacheTTL) TTLPolicy {
	p := DefaultTTLPolicy()
	if cfg.Session > 0 {
		p.Session = cfg.Session
	}
	if cfg.Cart > 0 {
		p.Cart = cfg.Cart
	}
	if cfg.Product > 0 {
		p.Product = cfg.Product
	}
	if cfg.User > 0 {
		p.User = cfg.User
	}
	if cfg.Search > 0 {
		p.Search = cfg.Search
	}
	if cfg.ProductList > 0 {
		p.ProductList = cfg.ProductList
	}
	return p
}
