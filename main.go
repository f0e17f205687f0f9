package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/daemon"
	"github.com/ibeckermayer/tenshi/internal/logging"
)

func main() {
	// Load or create configuration
	cfg, err := config.Load(os.Getenv(config.EnvConfig))
	if err != nil {
		logging.Setup("info")
		log.Fatal().Err(err).Msg("could not load config")
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		logging.Setup("info")
		log.Warn().Err(err).Msg("falling back to info logging")
	}

	d, err := daemon.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start daemon")
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("tenshi starting...")
	if err := d.Run(ctx); err != nil {
		log.Error().Err(err).Msg("daemon stopped")
		d.Close()
		os.Exit(1)
	}
}
