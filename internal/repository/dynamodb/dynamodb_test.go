package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
)

// stubAPI answers each call with the configured function.
type stubAPI struct {
	getItem    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem    func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItem func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	query      func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
}

func (s *stubAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return s.getItem(in)
}
func (s *stubAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return s.putItem(in)
}
func (s *stubAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return s.updateItem(in)
}
func (s *stubAPI) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}
func (s *stubAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return s.query(in)
}
func (s *stubAPI) BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func sampleProduct() *domain.Product {
	return &domain.Product{
		ID:        "p1",
		Name:      "Trail Shoe",
		Category:  "shoes",
		Price:     decimal.RequireFromString("89.99"),
		Stock:     4,
		Rating:    4.6,
		Active:    true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestProductRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	item, err := attributevalue.MarshalMap(toProductItem(sampleProduct()))
	require.NoError(t, err)

	api := &stubAPI{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		assert.Equal(t, "products", *in.TableName)
		if in.Key["id"].(*types.AttributeValueMemberS).Value == "p1" {
			return &dynamodb.GetItemOutput{Item: item}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
	repo := NewProductRepository(api, "products", nil)

	p, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("89.99")))
	assert.Equal(t, 4, p.Stock)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProductRepository_UpdateStock(t *testing.T) {
	ctx := context.Background()

	t.Run("returns new stock", func(t *testing.T) {
		api := &stubAPI{updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			require.NotNil(t, in.ConditionExpression)
			return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
				"stock": &types.AttributeValueMemberN{Value: "2"},
			}}, nil
		}}
		n, err := NewProductRepository(api, "products", nil).UpdateStock(ctx, "p1", -2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("failed condition on existing item is insufficient stock", func(t *testing.T) {
		api := &stubAPI{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Item: map[string]types.AttributeValue{
				"id":    &types.AttributeValueMemberS{Value: "p1"},
				"stock": &types.AttributeValueMemberN{Value: "1"},
			}}
		}}
		n, err := NewProductRepository(api, "products", nil).UpdateStock(ctx, "p1", -2)
		assert.True(t, apperrors.IsInsufficientStock(err))
		assert.Equal(t, 1, n)
	})

	t.Run("failed condition without item is not found", func(t *testing.T) {
		api := &stubAPI{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		}}
		_, err := NewProductRepository(api, "products", nil).UpdateStock(ctx, "p1", 1)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestOrderRepository_CreateDuplicate(t *testing.T) {
	api := &stubAPI{putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{}
	}}
	err := NewOrderRepository(api, "orders", nil).Create(context.Background(), &domain.Order{ID: "o1"})
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestOrderRepository_UpdateConditionalOnStatus(t *testing.T) {
	ctx := context.Background()
	order := &domain.Order{ID: "o1", Status: domain.OrderCancelled, CancelReason: "changed mind"}

	t.Run("condition carries expected status", func(t *testing.T) {
		var got *dynamodb.UpdateItemInput
		api := &stubAPI{updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			got = in
			return &dynamodb.UpdateItemOutput{}, nil
		}}
		require.NoError(t, NewOrderRepository(api, "orders", nil).Update(ctx, order, domain.OrderPending))
		require.NotNil(t, got)
		assert.Contains(t, *got.ConditionExpression, "attribute_exists")
		var values []string
		for _, v := range got.ExpressionAttributeValues {
			if sv, ok := v.(*types.AttributeValueMemberS); ok {
				values = append(values, sv.Value)
			}
		}
		assert.Contains(t, values, string(domain.OrderPending))
		assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, got.ReturnValuesOnConditionCheckFailure)
	})

	tests := []struct {
		name      string
		item      map[string]types.AttributeValue
		wantCheck func(error) bool
		wantCode  apperrors.ErrorCode
	}{
		{
			name:      "missing order",
			wantCheck: apperrors.IsNotFound,
			wantCode:  apperrors.CodeOrderNotFound,
		},
		{
			name: "status moved on",
			item: map[string]types.AttributeValue{
				"id":     &types.AttributeValueMemberS{Value: "o1"},
				"status": &types.AttributeValueMemberS{Value: string(domain.OrderShipped)},
			},
			wantCheck: apperrors.IsInvalidState,
			wantCode:  apperrors.CodeOrderStatusChanged,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubAPI{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{Item: tt.item}
			}}
			err := NewOrderRepository(api, "orders", nil).Update(ctx, order, domain.OrderPending)
			assert.True(t, tt.wantCheck(err))
			assert.True(t, apperrors.HasCode(err, tt.wantCode))
		})
	}
}

func TestOrderItemMapping(t *testing.T) {
	delivered := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:     "o1",
		UserID: "u1",
		Items: []domain.OrderLine{
			{ProductID: "p1", Name: "Trail Shoe", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
		Subtotal:     decimal.RequireFromString("20"),
		Tax:          decimal.RequireFromString("1.6"),
		ShippingCost: decimal.RequireFromString("10"),
		Total:        decimal.RequireFromString("31.6"),
		Status:       domain.OrderDelivered,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DeliveredAt:  &delivered,
	}

	av, err := attributevalue.MarshalMap(toOrderItem(order))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "31.6"}, av["total"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1767225600000"}, av["createdAtMs"])

	got, err := parseOrder(av)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(order.Total))
	assert.True(t, got.Items[0].UnitPrice.Equal(order.Items[0].UnitPrice))
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, delivered.Equal(*got.DeliveredAt))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, apperrors.IsBackendUnavailable},
		{"throughput", &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}, apperrors.IsBackendUnavailable},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException"}, apperrors.IsValidation},
		{"transport", errors.New("dial tcp: i/o timeout"), apperrors.IsBackendUnavailable},
		{"unknown api error", &smithy.GenericAPIError{Code: "AccessDeniedException"}, func(err error) bool {
			return apperrors.TypeOf(err) == apperrors.ErrorTypeInternal
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "op", "res")
			assert.True(t, tt.check(err), err.Error())
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify(nil, "op", "res"))
}
