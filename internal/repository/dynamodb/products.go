package dynamodb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

const categoryIndex = "category-rating-index"

// ProductRepository stores products in their own table.
type ProductRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(client API, tableName string, logger *zap.Logger) *ProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, classify(err, "FindByID", id)
	}
	if result.Item == nil {
		return nil, apperrors.NotFound(apperrors.CodeProductNotFound, "product not found").
			WithResource(id).
			Build()
	}
	return r.parse(result.Item)
}

func (r *ProductRepository) FindByCategory(ctx context.Context, category string, limit int) ([]*domain.Product, error) {
	keyCond := expression.Key("category").Equal(expression.Value(category))
	filter := expression.Name("active").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeDatabaseError, "failed to build expression").WithCause(err).Build()
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(categoryIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}

	var products []*domain.Product
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "FindByCategory", category)
		}
		for _, item := range page.Items {
			p, err := r.parse(item)
			if err != nil {
				return nil, err
			}
			products = append(products, p)
		}
		// Stop once past the rating at the cut so every tie at the boundary is seen.
		if limit > 0 && len(products) > limit && products[len(products)-1].Rating < products[limit-1].Rating {
			break
		}
	}

	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Rating != products[j].Rating {
			return products[i].Rating > products[j].Rating
		}
		return products[i].ID < products[j].ID
	})
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (r *ProductRepository) UpdateStock(ctx context.Context, id string, delta int) (int, error) {
	update := expression.Set(expression.Name("stock"), expression.Name("stock").Plus(expression.Value(delta))).
		Set(expression.Name("updatedAt"), expression.Value(r.now()))
	cond := expression.AttributeExists(expression.Name("id"))
	if delta < 0 {
		cond = cond.And(expression.Name("stock").GreaterThanEqual(expression.Value(-delta)))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return 0, apperrors.Internal(apperrors.CodeDatabaseError, "failed to build expression").WithCause(err).Build()
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 idKey(id),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return 0, apperrors.NotFound(apperrors.CodeProductNotFound, "product not found").
					WithResource(id).
					Build()
			}
			var current struct {
				Stock int `dynamodbav:"stock"`
			}
			_ = attributevalue.UnmarshalMap(ccf.Item, &current)
			return current.Stock, apperrors.InsufficientStock(apperrors.CodeInsufficientStock, "insufficient stock").
				WithResource(id).
				WithOperation("UpdateStock").
				Build()
		}
		return 0, classify(err, "UpdateStock", id)
	}

	var updated struct {
		Stock int `dynamodbav:"stock"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, apperrors.Internal(apperrors.CodeSerializationError, "failed to decode stock").WithCause(err).Build()
	}

	r.logger.Debug("Stock updated",
		zap.String("product_id", id),
		zap.Int("delta", delta),
		zap.Int("stock", updated.Stock),
	)
	return updated.Stock, nil
}

func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	item, err := attributevalue.MarshalMap(toProductItem(product))
	if err != nil {
		return apperrors.Internal(apperrors.CodeSerializationError, "failed to marshal product").WithCause(err).Build()
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return classify(err, "Save", product.ID)
}

func (r *ProductRepository) parse(item map[string]types.AttributeValue) (*domain.Product, error) {
	var pi productItem
	if err := attributevalue.UnmarshalMap(item, &pi); err != nil {
		return nil, apperrors.Internal(apperrors.CodeSerializationError, "failed to unmarshal product").WithCause(err).Build()
	}
	p, err := pi.toDomain()
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeSerializationError, "invalid product price").
			WithResource(pi.ID).
			WithCause(err).
			Build()
	}
	return p, nil
}
