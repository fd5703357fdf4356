package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"forumwatch-go/internal/app"
	"forumwatch-go/internal/config"
	"forumwatch-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "console", os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewBuilder(&cfg, app.WithLogger(logger)).Build(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("app build error")
	}

	logger.Info().Int("sites", len(cfg.Sites)).Str("backend", cfg.StateBackend).Dur("interval", cfg.PollInterval).Msg("starting the bot")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("app stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("bot stopped by user")
}
