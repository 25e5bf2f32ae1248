package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// topicRoutes maps an event's domain prefix to the cache keys that
// must be refreshed when it fires.
var topicRoutes = map[string][]string{
	"job":  {CacheKeyJobs},
	"task": {CacheKeyTasks},
	"note": {CacheKeyNotes},
	"user": {CacheKeyMe},
}

// Router translates inbound realtime messages into cache invalidation
// plus an immediate refetch, so every open client converges on server
// state within one round trip.
type Router struct {
	cache  *QueryCache
	logger zerolog.Logger
}

// NewRouter creates a router writing into the given cache.
func NewRouter(cache *QueryCache) *Router {
	return &Router{
		cache:  cache,
		logger: log.With().Str("component", "event-router").Logger(),
	}
}

// HandleMessage processes one raw text frame from the channel. Pongs
// and frames without an event topic are discarded, they are liveness
// traffic, not domain events.
func (r *Router) HandleMessage(ctx context.Context, raw []byte) {
	var frame struct {
		Type  string          `json:"type"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.logger.Debug().Err(err).Msg("Malformed realtime message dropped")
		return
	}
	if frame.Type == "pong" {
		return
	}
	if frame.Event == "" {
		return
	}

	prefix := frame.Event
	if i := strings.Index(prefix, ":"); i >= 0 {
		prefix = prefix[:i]
	}
	keys, ok := topicRoutes[prefix]
	if !ok {
		r.logger.Debug().Str("event", frame.Event).Msg("Event with unknown domain prefix dropped")
		return
	}

	for _, key := range keys {
		r.cache.Invalidate(key)
		if _, err := r.cache.Refetch(ctx, key); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("Refetch after invalidation failed")
		}
	}
}
