// Package client is the Go client for the tracker API: REST calls, a
// keyed query cache, and a reconnecting realtime subscriber that keeps
// the cache fresh from broadcast events.
package client

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Cache keys mirror the REST resources they hold.
const (
	CacheKeyJobs  = "/api/jobs"
	CacheKeyTasks = "/api/tasks"
	CacheKeyNotes = "/api/notes"
	CacheKeyMe    = "/api/auth/me"
)

// FetchFunc loads fresh data for a cache key from the server.
type FetchFunc func(ctx context.Context) (any, error)

// QueryCache is a keyed cache with registered fetchers. It is passed
// explicitly to whoever needs it rather than living as a package
// singleton, so tests can run isolated instances.
type QueryCache struct {
	mu       sync.RWMutex
	entries  *lru.TwoQueueCache
	fetchers map[string]FetchFunc
	logger   zerolog.Logger
}

// NewQueryCache creates a cache with the given capacity.
func NewQueryCache(capacity int) (*QueryCache, error) {
	entries, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}
	return &QueryCache{
		entries:  entries,
		fetchers: make(map[string]FetchFunc),
		logger:   log.With().Str("component", "query-cache").Logger(),
	}, nil
}

// Register binds a fetcher to a cache key.
func (c *QueryCache) Register(key string, fetch FetchFunc) {
	c.mu.Lock()
	c.fetchers[key] = fetch
	c.mu.Unlock()
}

// Get returns the cached value for the key, fetching it on a miss.
func (c *QueryCache) Get(ctx context.Context, key string) (any, error) {
	c.mu.RLock()
	value, found := c.entries.Get(key)
	c.mu.RUnlock()
	if found {
		return value, nil
	}
	return c.Refetch(ctx, key)
}

// Set stores a value for the key.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	c.entries.Add(key, value)
	c.mu.Unlock()
}

// Invalidate drops the cached value for the key.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	c.entries.Remove(key)
	c.mu.Unlock()
}

// Refetch loads fresh data through the registered fetcher and stores
// it, replacing whatever was cached.
func (c *QueryCache) Refetch(ctx context.Context, key string) (any, error) {
	c.mu.RLock()
	fetch, ok := c.fetchers[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for %s", key)
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value)
	return value, nil
}
