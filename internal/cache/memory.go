package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "storefront-backend/internal/errors"
)

const defaultMaxItems = 10000

// MemoryBackend is an in-process backend with LRU eviction and per-key TTL.
// It is used for local development and tests and is safe for concurrent use.
type MemoryBackend struct {
	mu       sync.Mutex
	items    map[string]*memoryItem
	lruList  *list.List
	maxItems int
	now      func() time.Time

	evictions int64
	closed    bool
	stopCh    chan struct{}
	stopOnce  sync.Once

	logger *zap.Logger
}

type memoryItem struct {
	key        string
	value      []byte
	expiry     time.Time // zero means no expiry
	lruElement *list.Element
}

// NewMemoryBackend creates a memory backend holding at most maxItems keys.
func NewMemoryBackend(maxItems int, logger *zap.Logger) *MemoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	return &MemoryBackend{
		items:    make(map[string]*memoryItem),
		lruList:  list.New(),
		maxItems: maxItems,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryBackend) Name() string { return "memory" }

// lookup returns the live item for key, dropping it if expired. Caller holds mu.
func (m *MemoryBackend) lookup(key string) *memoryItem {
	item, ok := m.items[key]
	if !ok {
		return nil
	}
	if !item.expiry.IsZero() && !m.now().Before(item.expiry) {
		m.removeItem(item)
		return nil
	}
	return item
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return nil, false, err
	}

	item := m.lookup(key)
	if item == nil {
		return nil, false, nil
	}
	m.lruList.MoveToFront(item.lruElement)

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return err
	}
	m.put(key, value, m.expiryFor(ttl))
	return nil
}

func (m *MemoryBackend) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return err
	}
	if item, ok := m.items[key]; ok {
		m.removeItem(item)
	}
	return nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return false, err
	}
	return m.lookup(key) != nil, nil
}

func (m *MemoryBackend) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return 0, err
	}

	var current int64
	var expiry time.Time
	if item := m.lookup(key); item != nil {
		n, err := strconv.ParseInt(string(item.value), 10, 64)
		if err != nil {
			return 0, apperrors.Validation(apperrors.CodeInvalidInput, "value is not an integer").
				WithResource(key).
				WithOperation("incr").
				Build()
		}
		current = n
		expiry = item.expiry
	}

	current++
	m.put(key, []byte(strconv.FormatInt(current, 10)), expiry)
	return current, nil
}

func (m *MemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usable(ctx); err != nil {
		return false, err
	}
	item := m.lookup(key)
	if item == nil {
		return false, nil
	}
	item.expiry = m.expiryFor(ttl)
	return true, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usable(ctx)
}

// Close stops the cleanup loop. Later calls fail as if the backend were down.
func (m *MemoryBackend) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys, including expired ones not yet swept.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// StartCleanup sweeps expired keys every interval until Close. A non-positive
// interval is ignored.
func (m *MemoryBackend) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.cleanupExpired()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *MemoryBackend) usable(ctx context.Context) error {
	if m.closed {
		return apperrors.BackendUnavailable(apperrors.CodeCacheUnavailable, "memory backend closed").Build()
	}
	return ctx.Err()
}

func (m *MemoryBackend) expiryFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// put stores value under key, evicting least recently used keys to make room.
// Caller holds mu.
func (m *MemoryBackend) put(key string, value []byte, expiry time.Time) {
	if existing, ok := m.items[key]; ok {
		m.removeItem(existing)
	}

	for len(m.items) >= m.maxItems && m.lruList.Len() > 0 {
		oldest := m.lruList.Back()
		m.removeItem(oldest.Value.(*memoryItem))
		m.evictions++
	}

	item := &memoryItem{
		key:    key,
		value:  make([]byte, len(value)),
		expiry: expiry,
	}
	copy(item.value, value)
	item.lruElement = m.lruList.PushFront(item)
	m.items[key] = item
}

// removeItem must be called with mu held.
func (m *MemoryBackend) removeItem(item *memoryItem) {
	if item.lruElement != nil {
		m.lruList.Remove(item.lruElement)
	}
	delete(m.items, item.key)
}

func (m *MemoryBackend) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, item := range m.items {
		if !item.expiry.IsZero() && !now.Before(item.expiry) {
			m.removeItem(item)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("Cleaned up expired cache items", zap.Int("count", removed))
	}
}
