package client

import (
	"context"
)

// Sync bundles the REST client, the query cache, and the realtime
// subscriber into one unit: reads go through the cache, broadcast
// events invalidate and refresh it.
type Sync struct {
	Client *Client
	Cache  *QueryCache

	subscriber *Subscriber
}

// NewSync wires a client against baseURL and a subscriber against
// wsURL, with fetchers registered for every cached resource.
func NewSync(baseURL, wsURL string, cacheCapacity int, options ...SubscriberOption) (*Sync, error) {
	cache, err := NewQueryCache(cacheCapacity)
	if err != nil {
		return nil, err
	}

	client := New(baseURL)
	RegisterFetchers(cache, client)

	router := NewRouter(cache)
	return &Sync{
		Client:     client,
		Cache:      cache,
		subscriber: NewSubscriber(wsURL, router, options...),
	}, nil
}

// RegisterFetchers binds the standard resource fetchers to the cache.
func RegisterFetchers(cache *QueryCache, client *Client) {
	cache.Register(CacheKeyJobs, func(ctx context.Context) (any, error) {
		return client.ListJobs(ctx)
	})
	cache.Register(CacheKeyTasks, func(ctx context.Context) (any, error) {
		return client.ListTasks(ctx)
	})
	cache.Register(CacheKeyNotes, func(ctx context.Context) (any, error) {
		return client.ListNotes(ctx)
	})
	cache.Register(CacheKeyMe, func(ctx context.Context) (any, error) {
		return client.Me(ctx)
	})
}

// Start opens the realtime channel.
func (s *Sync) Start() {
	s.subscriber.Start()
}

// Close tears down the realtime channel.
func (s *Sync) Close() {
	s.subscriber.Close()
}
