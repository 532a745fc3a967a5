// Package dynamodb implements the repository ports on Amazon DynamoDB.
//
// Each entity lives in its own table keyed by "id":
//   - products: GSI category-rating-index (category, rating) for category listings
//   - orders:   GSI userId-createdAt-index (userId, createdAtMs) for order history
//   - users:    primary key only
//
// Stock changes are single conditional UpdateItem calls so concurrent orders
// can never drive a count below zero.
package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"storefront-backend/internal/config"
	"storefront-backend/internal/repository"
)

// API is the subset of the DynamoDB client used by the adapters.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// LoadAWSConfig resolves credentials and region the standard way, pinning the
// region from cfg when set.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewClient builds a DynamoDB client with adaptive retries. A non-empty
// endpoint targets DynamoDB Local.
func NewClient(awsCfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.RetryMaxAttempts = 3
		o.RetryMode = aws.RetryModeAdaptive
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewRepositories builds all three adapters on one client.
func NewRepositories(client API, cfg config.Database, logger *zap.Logger) repository.Repositories {
	return repository.Repositories{
		Products: NewProductRepository(client, cfg.ProductsTable, logger),
		Orders:   NewOrderRepository(client, cfg.OrdersTable, logger),
		Users:    NewUserRepository(client, cfg.UsersTable, logger),
	}
}
