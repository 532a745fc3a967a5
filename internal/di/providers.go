package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/wire"
	"go.uber.org/zap"

	"storefront-backend/internal/cache"
	"storefront-backend/internal/cart"
	"storefront-backend/internal/catalog"
	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/events"
	"storefront-backend/internal/graph"
	"storefront-backend/internal/infrastructure/concurrency"
	"storefront-backend/internal/infrastructure/observability"
	"storefront-backend/internal/infrastructure/resilience"
	"storefront-backend/internal/ops"
	"storefront-backend/internal/order"
	"storefront-backend/internal/ratelimit"
	"storefront-backend/internal/recommendation"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/repository/dynamodb"
	"storefront-backend/internal/repository/memory"
	"storefront-backend/internal/session"
)

// SuperSet is everything InitializeContainer needs.
var SuperSet = wire.NewSet(
	InfrastructureProviders,
	RepositoryProviders,
	ServiceProviders,
	provideOpsRouter,
	wire.Struct(new(Container), "*"),
)

// InfrastructureProviders build the clients and cross-cutting components.
var InfrastructureProviders = wire.NewSet(
	provideLogger,
	provideMetrics,
	provideTracing,
	provideAWSConfig,
	provideDynamoDBClient,
	provideCacheStore,
	provideRunner,
	provideGraphStore,
	provideGraphEngine,
	provideEventPublisher,
	provideLimiter,
)

// RepositoryProviders select the authoritative store adapters.
var RepositoryProviders = wire.NewSet(
	provideRepositories,
	wire.FieldsOf(new(repository.Repositories), "Products", "Orders", "Users"),
)

// ServiceProviders build the storefront services.
var ServiceProviders = wire.NewSet(
	catalog.NewService,
	session.NewStore,
	wire.Bind(new(cart.ProductReader), new(*catalog.Service)),
	cart.NewService,
	provideOrderService,
	provideRecommendationService,
)

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Logging, cfg.Environment)
}

// provideMetrics returns nil when metrics are disabled; every Collector
// method tolerates a nil receiver.
func provideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(ctx, cfg.Tracing, cfg.ServiceName, cfg.Environment)
}

func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return dynamodb.LoadAWSConfig(ctx, cfg.Database.Region)
}

func provideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsDynamodb.Client {
	return dynamodb.NewClient(awsCfg, cfg.Database.Endpoint)
}

func provideRepositories(cfg *config.Config, client *awsDynamodb.Client, logger *zap.Logger) (repository.Repositories, error) {
	switch cfg.Database.Provider {
	case config.ProviderDynamoDB:
		return dynamodb.NewRepositories(client, cfg.Database, logger), nil
	case config.ProviderMemory, "":
		logger.Warn("Using in-memory repositories; data is lost on restart")
		return memory.NewRepositories(), nil
	default:
		return repository.Repositories{}, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
}

func provideCacheStore(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) (*cache.Store, error) {
	backend, err := cache.NewBackend(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	return cache.NewStore(backend,
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithBreaker(resilience.NewBreaker("cache", cfg.CircuitBreaker, logger, metrics)),
		cache.WithTTLPolicy(cache.NewTTLPolicy(cfg.Cache.TTL)),
	), nil
}

func provideRunner(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *concurrency.Runner {
	return concurrency.NewRunner(cfg.BestEffort.Timeout, logger, metrics)
}

func provideGraphStore(cfg *config.Config, client *awsDynamodb.Client, logger *zap.Logger) (graph.Store, error) {
	switch cfg.Graph.Provider {
	case config.ProviderDynamoDB:
		return graph.NewDynamoGraph(client, cfg.Graph.TableName, logger), nil
	case config.ProviderMemory, "":
		return graph.NewMemoryGraph(), nil
	default:
		return nil, fmt.Errorf("unknown graph provider %q", cfg.Graph.Provider)
	}
}

func provideGraphEngine(cfg *config.Config, store graph.Store, runner *concurrency.Runner, logger *zap.Logger, metrics *observability.Collector) *graph.Engine {
	return graph.NewEngine(store, runner,
		graph.WithLogger(logger),
		graph.WithMetrics(metrics),
		graph.WithBreaker(resilience.NewBreaker("graph", cfg.CircuitBreaker, logger, metrics)),
		graph.WithDefaults(cfg.Graph.TrendingWindow, cfg.Graph.DefaultLimit),
	)
}

func provideEventPublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) events.Publisher {
	return events.NewPublisher(cfg.Events, awsCfg, logger)
}

func provideLimiter(cfg *config.Config, store *cache.Store, logger *zap.Logger, metrics *observability.Collector) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(store, cfg.RateLimit.Policies, logger, metrics)
	l.SetEnabled(cfg.RateLimit.Enabled)
	return l
}

func provideOrderService(
	cfg *config.Config,
	repos repository.Repositories,
	catalogService *catalog.Service,
	carts *cart.Service,
	engine *graph.Engine,
	publisher events.Publisher,
	runner *concurrency.Runner,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*order.Service, error) {
	pricing, err := domain.ParsePricing(cfg.Order.TaxRate, cfg.Order.FreeShippingThreshold, cfg.Order.FlatShipping)
	if err != nil {
		return nil, fmt.Errorf("invalid order pricing: %w", err)
	}
	return order.NewService(repos.Products, repos.Orders, catalogService, carts, engine, publisher, runner,
		order.WithLogger(logger),
		order.WithMetrics(metrics),
		order.WithPricing(pricing),
	), nil
}

func provideRecommendationService(cfg *config.Config, engine *graph.Engine, catalogService *catalog.Service, products repository.ProductRepository, logger *zap.Logger) *recommendation.Service {
	return recommendation.NewService(engine, catalogService, products, cfg.Graph.DefaultLimit, logger)
}

// provideOpsRouter wires readiness probes. The cache is critical because
// carts live only there; the graph only degrades recommendations.
func provideOpsRouter(store *cache.Store, engine *graph.Engine, metrics *observability.Collector, logger *zap.Logger) *ops.Router {
	return ops.NewRouter([]ops.Check{
		{Name: "cache", Critical: true, Probe: store.Ping},
		{Name: "graph", Probe: engine.Ping},
	}, metrics, logger)
}
