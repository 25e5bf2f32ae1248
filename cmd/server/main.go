package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dailytrack/dailytrack/internal/config"
	"github.com/dailytrack/dailytrack/internal/engine"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML configuration file")
		dataDir    = flag.String("data-dir", "", "Data directory for the badger backend")
		serverAddr = flag.String("addr", "", "HTTP server address")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *dataDir, *serverAddr, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.CreateEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Caught signal, initiating shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := e.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Engine failed")
	}
}
