package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION LOADER
// ============================================================================

// Loader assembles configuration from multiple sources.
type Loader struct {
	basePath    string
	environment Environment
	sources     []string
	fileLoaders []FileLoader
}

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(reader io.Reader, target interface{}) error
	Extension() string
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{
		basePath:    basePath,
		environment: env,
		fileLoaders: []FileLoader{&YAMLLoader{}, &JSONLoader{}},
	}
}

// Load applies, from lowest to highest priority:
//  1. defaults
//  2. base.yaml
//  3. {environment}.yaml
//  4. local.yaml (development only)
//  5. environment variables
func (l *Loader) Load() (*Config, error) {
	l.sources = l.sources[:0]

	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load local config: %v\n", err)
		}
	}

	l.loadEnvironmentVariables(cfg)
	l.sources = append(l.sources, "environment")
	cfg.LoadedFrom = append([]string(nil), l.sources...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads the first existing file named name with a supported extension.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, loader := range l.fileLoaders {
		path := filepath.Join(l.basePath, name+"."+loader.Extension())

		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}

		err = loader.Load(file, cfg)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		l.sources = append(l.sources, path)
		return nil
	}
	return fs.ErrNotExist
}

// loadEnvironmentVariables overlays environment variables on the configuration.
func (l *Loader) loadEnvironmentVariables(cfg *Config) {
	if val := os.Getenv("SERVICE_NAME"); val != "" {
		cfg.ServiceName = val
	}

	// Cache
	if val := os.Getenv("CACHE_PROVIDER"); val != "" {
		cfg.Cache.Provider = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Cache.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Cache.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Cache.Redis.DB = db
		}
	}

	// Database
	if val := os.Getenv("DATABASE_PROVIDER"); val != "" {
		cfg.Database.Provider = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.Database.Region = val
	}
	if val := os.Getenv("DYNAMODB_ENDPOINT"); val != "" {
		cfg.Database.Endpoint = val
	}
	if val := os.Getenv("PRODUCTS_TABLE"); val != "" {
		cfg.Database.ProductsTable = val
	}
	if val := os.Getenv("ORDERS_TABLE"); val != "" {
		cfg.Database.OrdersTable = val
	}
	if val := os.Getenv("USERS_TABLE"); val != "" {
		cfg.Database.UsersTable = val
	}

	// Graph
	if val := os.Getenv("GRAPH_PROVIDER"); val != "" {
		cfg.Graph.Provider = val
	}
	if val := os.Getenv("GRAPH_TABLE"); val != "" {
		cfg.Graph.TableName = val
	}

	// Observability
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("ENABLE_METRICS"); val != "" {
		cfg.Metrics.Enabled = parseBool(val)
	}
	if val := os.Getenv("ENABLE_TRACING"); val != "" {
		cfg.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}

	// Events
	if val := os.Getenv("ENABLE_EVENTS"); val != "" {
		cfg.Events.Enabled = parseBool(val)
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		cfg.Events.EventBusName = val
	}

	if val := os.Getenv("OPS_ADDR"); val != "" {
		cfg.Ops.Addr = val
	}
}

// defaultConfig returns a configuration that runs without any files, backed by
// in-memory stores.
func (l *Loader) defaultConfig() *Config {
	env := strings.ToLower(string(l.environment))
	return &Config{
		Environment: l.environment,
		ServiceName: "storefront-backend",
		Cache: Cache{
			Provider:        ProviderMemory,
			MaxItems:        10000,
			CleanupInterval: time.Minute,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
			},
			TTL: CacheTTL{
				Session:     24 * time.Hour,
				Cart:        24 * time.Hour,
				Product:     time.Hour,
				User:        30 * time.Minute,
				Search:      5 * time.Minute,
				ProductList: 10 * time.Minute,
			},
		},
		Database: Database{
			Provider:      ProviderMemory,
			Region:        "us-east-1",
			ProductsTable: "storefront-products-" + env,
			OrdersTable:   "storefront-orders-" + env,
			UsersTable:    "storefront-users-" + env,
			Timeout:       5 * time.Second,
		},
		Graph: Graph{
			Provider:       ProviderMemory,
			TableName:      "storefront-graph-" + env,
			TrendingWindow: 24 * time.Hour,
			DefaultLimit:   10,
		},
		RateLimit: RateLimit{
			Enabled: true,
			Policies: map[string]RateLimitPolicy{
				"default":  {Limit: 100, Window: time.Minute},
				"login":    {Limit: 5, Window: 15 * time.Minute},
				"checkout": {Limit: 10, Window: time.Minute},
			},
		},
		Order: Order{
			TaxRate:               "0.08",
			FreeShippingThreshold: "100",
			FlatShipping:          "10",
		},
		BestEffort: BestEffort{
			Timeout: 2 * time.Second,
		},
		CircuitBreaker: CircuitBreaker{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "storefront",
		},
		Tracing: Tracing{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
		},
		Events: Events{
			Enabled:      false,
			Provider:     "eventbridge",
			EventBusName: "default",
			Source:       "storefront.orders",
		},
		Ops: Ops{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// ============================================================================
// FILE LOADERS
// ============================================================================

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target interface{}) error {
	err := yaml.NewDecoder(reader).Decode(target)
	if errors.Is(err, io.EOF) {
		// empty file
		return nil
	}
	return err
}

func (y *YAMLLoader) Extension() string {
	return "yaml"
}

// JSONLoader loads configuration from JSON files.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target interface{}) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string {
	return "json"
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}

// EnvironmentFromEnv reads ENVIRONMENT, defaulting to development.
func EnvironmentFromEnv() Environment {
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		return Environment(strings.ToLower(val))
	}
	return Development
}

// ConfigDir reads CONFIG_DIR, defaulting to ./config.
func ConfigDir() string {
	if val := os.Getenv("CONFIG_DIR"); val != "" {
		return val
	}
	return "config"
}

// Load loads configuration for the current process environment.
func Load() (*Config, error) {
	return NewLoader(ConfigDir(), EnvironmentFromEnv()).Load()
}
