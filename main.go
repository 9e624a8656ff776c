package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	service "github.com/gh-ankitgupta/tiktok-live-tracking/internal"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "live-tracker").Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	app, err := service.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start service")
	}

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("service exited with error")
	}
}
