package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/openrouter"
	"github.com/tensorplex-labs/council/internal/server"
	"github.com/tensorplex-labs/council/internal/storage"
	"github.com/tensorplex-labs/council/internal/utils/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Init()
	defer logger.Logger.Sync() //nolint:errcheck
	log.Info().Msg("Starting council server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	if cfg.OpenRouterAPIKey == "" {
		log.Warn().Msg("OPENROUTER_API_KEY is not set, every model call will be rejected")
	}

	gateway, err := openrouter.NewClient(&cfg.OpenRouterEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init openrouter client")
	}

	c, err := council.NewCouncil(gateway, &cfg.CouncilEnvConfig,
		council.WithThinking(cfg.ThinkingEnvConfig),
		council.WithTimeouts(cfg.TimeoutEnvConfig),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init council")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open conversation store")
	}
	defer store.Close()

	srv, err := server.NewServer(&cfg.ServerEnvConfig, c, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	log.Info().
		Strs("council", c.Models()).
		Str("chairman", c.Chairman()).
		Str("store", cfg.StoreBackend).
		Msg("council ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received, stopping server")
	case err := <-errChan:
		log.Error().Err(err).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
