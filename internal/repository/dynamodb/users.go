package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

// UserRepository stores accounts in their own table.
type UserRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository(client API, tableName string, logger *zap.Logger) *UserRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserRepository{client: client, tableName: tableName, logger: logger}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, classify(err, "FindUser", id)
	}
	if result.Item == nil {
		return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found").
			WithResource(id).
			Build()
	}

	var ui userItem
	if err := attributevalue.UnmarshalMap(result.Item, &ui); err != nil {
		return nil, apperrors.Internal(apperrors.CodeSerializationError, "failed to unmarshal user").WithCause(err).Build()
	}
	return &domain.User{ID: ui.ID, Name: ui.Name, Email: ui.Email, CreatedAt: ui.CreatedAt}, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	item, err := attributevalue.MarshalMap(userItem{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return apperrors.Internal(apperrors.CodeSerializationError, "failed to marshal user").WithCause(err).Build()
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return classify(err, "SaveUser", user.ID)
}
