package storage

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dailytrack/dailytrack/internal/metrics"
	"github.com/dailytrack/dailytrack/internal/model"
)

// UserCache is a read-through cache for user lookups. Session resolution
// hits GetUserByID on every authenticated request, so this sits in front
// of the durable backends.
type UserCache struct {
	byID       *lru.TwoQueueCache
	byEmail    *lru.TwoQueueCache
	mutex      sync.RWMutex
	metrics    *metrics.Metrics
	expiration time.Duration
}

// cacheItem wraps a cached value with its expiration time.
type cacheItem struct {
	user       model.User
	expiration time.Time
}

// NewUserCache creates a cache with the given capacity per index.
func NewUserCache(capacity int, expiration time.Duration) (*UserCache, error) {
	byID, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}
	byEmail, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}

	return &UserCache{
		byID:       byID,
		byEmail:    byEmail,
		metrics:    metrics.GetMetrics(),
		expiration: expiration,
	}, nil
}

// GetByID retrieves a user from the cache by ID.
func (c *UserCache) GetByID(id string) (*model.User, bool) {
	return c.get(c.byID, id)
}

// GetByEmail retrieves a user from the cache by email.
func (c *UserCache) GetByEmail(email string) (*model.User, bool) {
	return c.get(c.byEmail, email)
}

func (c *UserCache) get(cache *lru.TwoQueueCache, key string) (*model.User, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	value, found := cache.Get(key)
	if !found {
		c.metrics.StorageOperations.WithLabelValues("user_cache_miss", "true").Inc()
		return nil, false
	}

	item := value.(cacheItem)
	if time.Now().After(item.expiration) {
		cache.Remove(key)
		c.metrics.StorageOperations.WithLabelValues("user_cache_expired", "true").Inc()
		return nil, false
	}

	c.metrics.StorageOperations.WithLabelValues("user_cache_hit", "true").Inc()
	clone := item.user
	return &clone, true
}

// Set adds a user to both indexes.
func (c *UserCache) Set(user *model.User) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item := cacheItem{user: *user, expiration: time.Now().Add(c.expiration)}
	c.byID.Add(user.ID, item)
	c.byEmail.Add(user.Email, item)
}

// Invalidate drops a user from both indexes after a mutation.
func (c *UserCache) Invalidate(user *model.User) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.byID.Remove(user.ID)
	c.byEmail.Remove(user.Email)
}
