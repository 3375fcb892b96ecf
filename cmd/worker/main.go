// Package main provides the entry point for the retroboard worker service.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/retroboard/internal/config"
	"github.com/thebtf/retroboard/internal/worker"
)

var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		setupLogging("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Str("version", Version).
		Int("port", cfg.WorkerPort).
		Bool("postgres", cfg.DatabaseDSN != "").
		Bool("redis", cfg.RedisURL != "").
		Msg("Starting retroboard worker")

	svc := worker.NewService(Version, cfg)
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Suggestion defaults follow the settings file without a restart.
	err = config.Watch(ctx, config.SettingsPath(), os.LookupEnv, func(c *config.Config) {
		if err := svc.SetSuggestDefaults(c.Suggest); err != nil {
			log.Warn().Err(err).Msg("Ignoring invalid suggestion settings")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher disabled")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}

// setupLogging configures the global logger. format "json" writes one JSON object per
// line, anything else writes human-readable console output.
func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
