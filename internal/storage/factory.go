package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/storage/badger"
	"github.com/dailytrack/dailytrack/internal/storage/postgres"
)

// NewStorage creates the storage implementation selected by the
// configuration. An unset backend with a DATABASE_URL picks postgres,
// mirroring the original deployment; otherwise badger is the default.
func NewStorage(ctx context.Context, config Config) (domain.Storage, error) {
	backend := config.Backend
	if backend == "" {
		if config.DatabaseURL != "" {
			backend = "postgres"
		} else {
			backend = "badger"
		}
	}

	logger := log.With().Str("component", "storage").Logger()

	var store domain.Storage
	switch backend {
	case "memory":
		logger.Warn().Msg("Using in-memory storage, data will be lost on restart")
		store = NewMemoryStorage()

	case "badger":
		s, err := badger.NewStorage(badger.Config{DataDir: config.DataDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
		}
		store = s

	case "postgres":
		s, err := postgres.NewStorage(ctx, postgres.Config{
			DatabaseURL: config.DatabaseURL,
		})
		if err != nil {
			// The original system fell back to memory when the database
			// was unreachable rather than refusing to start.
			logger.Error().Err(err).Msg("Postgres unavailable, falling back to in-memory storage")
			store = NewMemoryStorage()
		} else {
			store = s
		}

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}

	if config.CacheEnabled {
		cached, err := NewCachedStorage(store, config.RecordCacheSize, config.CacheExpiration)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize user cache: %w", err)
		}
		logger.Info().
			Int("capacity", config.RecordCacheSize).
			Dur("expiration", config.CacheExpiration).
			Msg("User cache enabled")
		return cached, nil
	}

	return store, nil
}
