package memory

import (
	"context"
	"sync"

	"storefront-backend/internal/domain"
	apperrors "storefront-backend/internal/errors"
	"storefront-backend/internal/repository"
)

// UserStore is an in-memory UserRepository.
type UserStore struct {
	faults
	mu    sync.RWMutex
	users map[string]domain.User
}

var _ repository.UserRepository = (*UserStore)(nil)

func NewUserStore(users ...*domain.User) *UserStore {
	s := &UserStore{users: make(map[string]domain.User)}
	for _, u := range users {
		s.users[u.ID] = *u
	}
	return s
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if err := s.checkError("FindByID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found").
			WithResource(id).
			Build()
	}
	return &u, nil
}

func (s *UserStore) Save(ctx context.Context, user *domain.User) error {
	if err := s.checkError("Save"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

// NewRepositories returns empty memory adapters for all three ports.
func NewRepositories() repository.Repositories {
	return repository.Repositories{
		Products: NewProductStore(),
		Orders:   NewOrderStore(),
		Users:    NewUserStore(),
	}
}
