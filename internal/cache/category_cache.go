package cache

import (
	"context"
	"sync"
	"time"

	"classifieds/internal/models"
	"classifieds/internal/observability"
)

// DefaultCategoryTTL is how long a loaded category list is served before reloading.
const DefaultCategoryTTL = 5 * time.Minute

// CategoryLoader reads the full category list from the store.
type CategoryLoader func(ctx context.Context) ([]models.Category, error)

// CategoryCache serves the category list from memory for a fixed window after each
// load. There is no invalidation: edits become visible once the window expires.
type CategoryCache struct {
	load CategoryLoader
	ttl  time.Duration
	now  func() time.Time

	mu        sync.RWMutex
	value     []models.Category
	expiresAt time.Time
	loaded    bool
}

// CategoryCacheOption customizes a CategoryCache.
type CategoryCacheOption func(*CategoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CategoryCacheOption {
	return func(c *CategoryCache) {
		c.now = now
	}
}

// NewCategoryCache creates a cache around load. A non-positive ttl uses DefaultCategoryTTL.
func NewCategoryCache(load CategoryLoader, ttl time.Duration, opts ...CategoryCacheOption) *CategoryCache {
	if ttl <= 0 {
		ttl = DefaultCategoryTTL
	}
	c := &CategoryCache{load: load, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categories returns the cached list, loading it on first use or after expiry.
// Concurrent callers that find the entry expired trigger a single reload.
// Load errors are returned and not cached.
func (c *CategoryCache) Categories(ctx context.Context) ([]models.Category, error) {
	c.mu.RLock()
	if c.fresh() {
		out := c.copyValue()
		c.mu.RUnlock()
		observability.CategoryCacheLookups.WithLabelValues("hit").Inc()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		observability.CategoryCacheLookups.WithLabelValues("hit").Inc()
		return c.copyValue(), nil
	}

	observability.CategoryCacheLookups.WithLabelValues("miss").Inc()
	categories, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.value = categories
	c.expiresAt = c.now().Add(c.ttl)
	c.loaded = true
	return c.copyValue(), nil
}

// fresh must be called with c.mu held.
func (c *CategoryCache) fresh() bool {
	return c.loaded && c.now().Before(c.expiresAt)
}

func (c *CategoryCache) copyValue() []models.Category {
	out := make([]models.Category, len(c.value))
	copy(out, c.value)
	return out
}
