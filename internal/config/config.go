// Package config defines the storefront configuration model and its validation.
//
// Configuration is assembled by Loader from defaults, YAML files and environment
// variables (see loader.go) and can be hot reloaded in development by Watcher.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Environment names a deployment environment.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Backend provider names shared by the cache, database and graph sections.
const (
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderDynamoDB = "dynamodb"
)

// Config is the root configuration object.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`
	ServiceName string      `yaml:"service_name" json:"service_name"`

	Cache          Cache          `yaml:"cache" json:"cache"`
	Database       Database       `yaml:"database" json:"database"`
	Graph          Graph          `yaml:"graph" json:"graph"`
	RateLimit      RateLimit      `yaml:"rate_limit" json:"rate_limit"`
	Order          Order          `yaml:"order" json:"order"`
	BestEffort     BestEffort     `yaml:"best_effort" json:"best_effort"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker" json:"circuit_breaker"`
	Logging        Logging        `yaml:"logging" json:"logging"`
	Metrics        Metrics        `yaml:"metrics" json:"metrics"`
	Tracing        Tracing        `yaml:"tracing" json:"tracing"`
	Events         Events         `yaml:"events" json:"events"`
	Ops            Ops            `yaml:"ops" json:"ops"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Cache configures the key-value backend behind the cache-aside store.
type Cache struct {
	Provider string      `yaml:"provider" json:"provider"`
	MaxItems int         `yaml:"max_items" json:"max_items"`
	Redis    RedisConfig `yaml:"redis" json:"redis"`
	TTL      CacheTTL    `yaml:"ttl" json:"ttl"`

	// CleanupInterval is how often the memory backend sweeps expired keys.
	// Zero leaves expired keys to be dropped on access or by LRU eviction.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"-"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// CacheTTL is the per-entity expiry policy.
type CacheTTL struct {
	Session     time.Duration `yaml:"session" json:"session"`
	Cart        time.Duration `yaml:"cart" json:"cart"`
	Product     time.Duration `yaml:"product" json:"product"`
	User        time.Duration `yaml:"user" json:"user"`
	Search      time.Duration `yaml:"search" json:"search"`
	ProductList time.Duration `yaml:"product_list" json:"product_list"`
}

// Database configures the authoritative document store.
type Database struct {
	Provider      string        `yaml:"provider" json:"provider"`
	Region        string        `yaml:"region" json:"region"`
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	ProductsTable string        `yaml:"products_table" json:"products_table"`
	OrdersTable   string        `yaml:"orders_table" json:"orders_table"`
	UsersTable    string        `yaml:"users_table" json:"users_table"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// Graph configures the interaction graph store.
type Graph struct {
	Provider  string `yaml:"provider" json:"provider"`
	TableName string `yaml:"table_name" json:"table_name"`
	// TrendingWindow is the default look-back for trending queries.
	TrendingWindow time.Duration `yaml:"trending_window" json:"trending_window"`
	DefaultLimit   int           `yaml:"default_limit" json:"default_limit"`
}

// RateLimit holds named fixed-window policies.
type RateLimit struct {
	Enabled  bool                       `yaml:"enabled" json:"enabled"`
	Policies map[string]RateLimitPolicy `yaml:"policies" json:"policies"`
}

// RateLimitPolicy admits Limit requests per Window.
type RateLimitPolicy struct {
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

// Order holds pricing rules. Amounts are decimal strings.
type Order struct {
	TaxRate               string `yaml:"tax_rate" json:"tax_rate"`
	FreeShippingThreshold string `yaml:"free_shipping_threshold" json:"free_shipping_threshold"`
	FlatShipping          string `yaml:"flat_shipping" json:"flat_shipping"`
}

// BestEffort bounds detached side-channel writes.
type BestEffort struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// CircuitBreaker configures the breakers in front of the cache and graph stores.
type CircuitBreaker struct {
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Metrics configures the prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Events configures domain event publishing.
type Events struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Provider     string `yaml:"provider" json:"provider"`
	EventBusName string `yaml:"event_bus_name" json:"event_bus_name"`
	Source       string `yaml:"source" json:"source"`
}

// Ops configures the operational listener (health, readiness, metrics).
type Ops struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Test, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	switch c.Cache.Provider {
	case ProviderMemory, ProviderRedis:
	default:
		return fmt.Errorf("cache.provider must be %q or %q, got %q", ProviderMemory, ProviderRedis, c.Cache.Provider)
	}
	if c.Cache.Provider == ProviderRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis provider")
	}
	if c.Cache.TTL.Cart <= 0 || c.Cache.TTL.Product <= 0 || c.Cache.TTL.Session <= 0 {
		return fmt.Errorf("cache.ttl session, cart and product must be positive")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval must not be negative")
	}

	for name, p := range map[string]string{"database": c.Database.Provider, "graph": c.Graph.Provider} {
		if p != ProviderMemory && p != ProviderDynamoDB {
			return fmt.Errorf("%s.provider must be %q or %q, got %q", name, ProviderMemory, ProviderDynamoDB, p)
		}
	}
	if c.Database.Provider == ProviderDynamoDB {
		if c.Database.ProductsTable == "" || c.Database.OrdersTable == "" || c.Database.UsersTable == "" {
			return fmt.Errorf("database tables are required for the dynamodb provider")
		}
	}
	if c.Graph.Provider == ProviderDynamoDB && c.Graph.TableName == "" {
		return fmt.Errorf("graph.table_name is required for the dynamodb provider")
	}

	if c.Environment == Production {
		if c.Cache.Provider == ProviderMemory || c.Database.Provider == ProviderMemory {
			return fmt.Errorf("in-memory providers are not allowed in production")
		}
	}

	for name, p := range c.RateLimit.Policies {
		if p.Limit <= 0 || p.Window < time.Second {
			return fmt.Errorf("rate_limit.policies.%s: limit must be positive and window at least 1s", name)
		}
	}

	for field, raw := range map[string]string{
		"order.tax_rate":                c.Order.TaxRate,
		"order.free_shipping_threshold": c.Order.FreeShippingThreshold,
		"order.flat_shipping":           c.Order.FlatShipping,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", field)
		}
	}

	if c.Events.Enabled && c.Events.Provider == "eventbridge" && c.Events.EventBusName == "" {
		return fmt.Errorf("events.event_bus_name is required for eventbridge")
	}
	if c.BestEffort.Timeout <= 0 {
		return fmt.Errorf("best_effort.timeout must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// Policy returns the named rate-limit policy, falling back to "default".
func (c *Config) Policy(name string) (RateLimitPolicy, bool) {
	if p, ok := c.RateLimit.Policies[name]; ok {
		return p, true
	}
	p, ok := c.RateLimit.Policies["default"]
	return p, ok
}
