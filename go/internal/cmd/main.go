package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	rules, err := loadRules(cfg.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RulesFile).Msg("failed to load rules")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := setupDatabase(ctx, cfg.MigrateOnStart)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer store.Close()

	services, err := setupServices(ctx, cfg, store, rules)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	if err := services.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := services.Stop(); err != nil {
		log.Error().Err(err).Msg("service shutdown failed")
	}

	log.Info().Msg("lastround server shutdown complete")
}
