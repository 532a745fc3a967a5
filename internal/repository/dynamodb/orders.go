package dynamodb

import (
	"context"
	"errors"

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

const userOrdersIndex = "userId-createdAt-index"

// OrderRepository stores orders in their own table.
type OrderRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(client API, tableName string, logger *zap.Logger) *OrderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderRepository{client: client, tableName: tableName, logger: logger}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	item, err := attributevalue.MarshalMap(toOrderItem(order))
	if err != nil {
		return apperrors.Internal(apperrors.CodeSerializationError, "failed to marshal order").WithCause(err).Build()
	}

	cond := expression.AttributeNotExists(expression.Name("id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return apperrors.Internal(apperrors.CodeDatabaseError, "failed to build expression").WithCause(err).Build()
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.InvalidState(apperrors.CodeOrderAlreadyExists, "order already exists").
				WithResource(order.ID).
				Build()
		}
		return classify(err, "CreateOrder", order.ID)
	}

	r.logger.Debug("Order created", zap.String("order_id", order.ID), zap.String("user_id", order.UserID))
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify(err, "FindOrder", id)
	}
	if result.Item == nil {
		return nil, apperrors.NotFound(apperrors.CodeOrderNotFound, "order not found").
			WithResource(id).
			Build()
	}
	return parseOrder(result.Item)
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	keyCond := expression.Key("userId").Equal(expression.Value(userID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeDatabaseError, "failed to build expression").WithCause(err).Build()
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(userOrdersIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})

	var orders []*domain.Order
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "FindOrdersByUser", userID)
		}
		for _, item := range page.Items {
			o, err := parseOrder(item)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// Update writes the order only while its stored status is still expected. The
// old item comes back on a failed condition so a missing order and a changed
// status can be told apart.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error {
	update := expression.Set(expression.Name("status"), expression.Value(string(order.Status))).
		Set(expression.Name("updatedAt"), expression.Value(order.UpdatedAt))
	if order.TrackingNumber != "" {
		update = update.Set(expression.Name("trackingNumber"), expression.Value(order.TrackingNumber))
	}
	if order.CancelReason != "" {
		update = update.Set(expression.Name("cancelReason"), expression.Value(order.CancelReason))
	}
	if order.DeliveredAt != nil {
		update = update.Set(expression.Name("deliveredAt"), expression.Value(*order.DeliveredAt))
	}
	if order.CancelledAt != nil {
		update = update.Set(expression.Name("cancelledAt"), expression.Value(*order.CancelledAt))
	}
	cond := expression.AttributeExists(expression.Name("id")).
		And(expression.Name("status").Equal(expression.Value(string(expected))))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return apperrors.Internal(apperrors.CodeDatabaseError, "failed to build expression").WithCause(err).Build()
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 idKey(order.ID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return apperrors.NotFound(apperrors.CodeOrderNotFound, "order not found").
					WithResource(order.ID).
					Build()
			}
			var current struct {
				Status string `dynamodbav:"status"`
			}
			_ = attributevalue.UnmarshalMap(ccf.Item, &current)
			return apperrors.InvalidState(apperrors.CodeOrderStatusChanged, "order status changed concurrently").
				WithResource(order.ID).
				WithDetails("status " + current.Status).
				Build()
		}
		return classify(err, "UpdateOrder", order.ID)
	}
	return nil
}

func parseOrder(item map[string]types.AttributeValue) (*domain.Order, error) {
	var oi orderItem
	if err := attributevalue.UnmarshalMap(item, &oi); err != nil {
		return nil, apperrors.Internal(apperrors.CodeSerializationError, "failed to unmarshal order").WithCause(err).Build()
	}
	o, err := oi.toDomain()
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeSerializationError, "invalid order amount").
			WithResource(oi.ID).
			WithCause(err).
			Build()
	}
	return o, nil
}
