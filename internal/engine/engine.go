package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dailytrack/dailytrack/internal/api"
	"github.com/dailytrack/dailytrack/internal/auth"
	"github.com/dailytrack/dailytrack/internal/broadcast"
	"github.com/dailytrack/dailytrack/internal/config"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/logging"
	"github.com/dailytrack/dailytrack/internal/metrics"
	"github.com/dailytrack/dailytrack/internal/storage"
)

// Engine is the main coordinator of all tracker components
type Engine struct {
	config   *config.Config
	storage  domain.Storage
	hub      *broadcast.Hub
	sessions *auth.Sessions
	api      *api.API
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// CreateEngine creates a new Engine instance with all components
// initialized from the configuration.
func CreateEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg.Storage.Backend != "postgres" && cfg.Storage.DatabaseURL == "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := storage.NewStorage(ctx, storage.Config{
		Backend:         cfg.Storage.Backend,
		DataDir:         cfg.Storage.DataDir,
		DatabaseURL:     cfg.Storage.DatabaseURL,
		CacheEnabled:    cfg.Storage.CacheEnabled,
		RecordCacheSize: cfg.Storage.RecordCacheSize,
		CacheExpiration: time.Duration(cfg.Storage.CacheExpirationSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	hub := broadcast.NewHub(broadcast.Config{
		MaxConnections: cfg.Broadcast.MaxConnections,
		WriteTimeout:   time.Duration(cfg.Broadcast.WriteTimeoutMs) * time.Millisecond,
	})

	sessions := auth.NewSessions(auth.Config{
		SessionCookie: cfg.Auth.SessionCookie,
		SessionTTL:    time.Duration(cfg.Auth.SessionTTLHours) * time.Hour,
		OTPExpiry:     time.Duration(cfg.Auth.OTPExpiryMinutes) * time.Minute,
	})

	apiServer := api.NewAPI(api.Config{
		Addr: cfg.Server.Addr,
	}, store, hub, sessions, auth.LogSender{})

	// Mount the realtime channel endpoint on the API server.
	hub.RegisterHandler(apiServer.App())

	return NewEngine(cfg, store, hub, sessions, apiServer), nil
}

// NewEngine creates a new Engine instance with the given configuration
// and components.
func NewEngine(cfg *config.Config, store domain.Storage, hub *broadcast.Hub, sessions *auth.Sessions, apiServer *api.API) *Engine {
	return &Engine{
		config:   cfg,
		storage:  store,
		hub:      hub,
		sessions: sessions,
		api:      apiServer,
		logger:   log.With().Str("component", "engine").Logger(),
		metrics:  metrics.GetMetrics(),
	}
}

// Start initializes and runs all components until the context is
// cancelled.
func (e *Engine) Start(ctx context.Context) error {
	loggingConfig := logging.DefaultConfig()
	loggingConfig.Level = logging.LogLevel(e.config.Logging.Level)
	loggingConfig.Format = logging.LogFormat(e.config.Logging.Format)
	loggingConfig.IncludeCaller = e.config.Logging.IncludeCaller
	loggingConfig.GlobalFields = e.config.Logging.GlobalFields
	if err := logging.Setup(loggingConfig); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	e.logger.Info().Str("addr", e.config.Server.Addr).Msg("Starting tracker engine")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.storage.Start(ctx)
	})

	g.Go(func() error {
		return e.sessions.Start(ctx)
	})

	g.Go(func() error {
		return e.api.Start(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("Tracker engine shut down successfully")
	return nil
}

// Shutdown stops the engine components in dependency order.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down tracker engine")

	// API first so no new requests or channel upgrades arrive.
	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down API")
	}

	if err := e.hub.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down broadcast hub")
	}

	if err := e.storage.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down storage")
	}

	return nil
}
