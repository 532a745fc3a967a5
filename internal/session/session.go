// Package session keeps ephemeral login sessions in the cache under
// session:{id}. Sessions slide: every Touch pushes expiry out by the session
// TTL. How sessions are authenticated is up to the caller.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-backend/internal/cache"
	apperrors "storefront-backend/internal/errors"
)

type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type Store struct {
	cache  *cache.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewStore(store *cache.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cache: store, logger: logger, now: time.Now, newID: uuid.NewString}
}

// Create opens a session for userID. Unlike cache reads, a failed write is
// returned: a session that was never stored must not be handed out.
func (s *Store) Create(ctx context.Context, userID string, data map[string]string) (*Session, error) {
	if userID == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "user id is required").
			WithResource("session").
			Build()
	}
	sess := &Session{
		ID:        s.newID(),
		UserID:    userID,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
	if err := cache.SetJSON(ctx, s.cache, cache.SessionKey(sess.ID), sess, s.cache.TTL().Session); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session, or false when it is missing, expired or the cache
// is unreachable.
func (s *Store) Get(ctx context.Context, id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return cache.GetJSON[*Session](ctx, s.cache, cache.SessionKey(id))
}

// Exists reports whether the session is live without decoding it.
func (s *Store) Exists(ctx context.Context, id string) bool {
	ok, err := s.cache.Exists(ctx, cache.SessionKey(id))
	if err != nil {
		s.logger.Debug("Session lookup failed", zap.String("session_id", id), zap.Error(err))
		return false
	}
	return ok
}

// Touch extends the session by the session TTL.
func (s *Store) Touch(ctx context.Context, id string) error {
	ok, err := s.cache.Expire(ctx, cache.SessionKey(id), s.cache.TTL().Session)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound(apperrors.CodeSessionNotFound, "session not found").
			WithResource("session").
			Build()
	}
	return nil
}

// Delete ends the session. Deleting a missing session succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.cache.Del(ctx, cache.SessionKey(id))
}
