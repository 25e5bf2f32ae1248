// Package storage provides the persistence implementations behind the
// domain.Storage interface: an in-memory store, a badger-backed store and
// a postgres-backed store, selected by a factory.
package storage

import "time"

// Config contains storage configuration
type Config struct {
	// Backend selects the implementation: badger, postgres or memory
	Backend string

	// DataDir is the base directory for badger data files
	DataDir string

	// DatabaseURL is the postgres connection string
	DatabaseURL string

	// Read cache settings
	CacheEnabled    bool
	RecordCacheSize int
	CacheExpiration time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Backend:         "badger",
		DataDir:         "./data",
		CacheEnabled:    true,
		RecordCacheSize: 10000,
		CacheExpiration: 30 * time.Second,
	}
}
