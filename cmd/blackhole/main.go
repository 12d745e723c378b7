package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/pkg/arr"
	"github.com/westsurname/blackhole/pkg/blackhole"
	"github.com/westsurname/blackhole/pkg/debrid"
)

func main() {
	cfg := config.Get()
	logger.SetLogLevel(cfg.LogLevel)
	log := logger.Default()

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	note := notifier.New(cfg)
	clients := debrid.NewClients(cfg, note)
	for _, client := range clients {
		if err := client.Validate(ctx); err != nil {
			log.Fatal().Err(err).Msgf("Debrid provider %s failed validation", client.Name())
		}
	}

	targets := map[string]*arr.Arr{
		"movies": arr.New(arr.Radarr, cfg.Radarr),
		"series": arr.New(arr.Sonarr, cfg.Sonarr),
	}
	for _, target := range targets {
		if err := target.Validate(); err != nil {
			log.Fatal().Err(err).Msgf("Manager %s failed validation", target.Name)
		}
	}

	processor := blackhole.NewProcessor(cfg, clients, note)
	watcher := blackhole.NewWatcher(cfg, processor)

	log.Info().Msg("Starting blackhole watcher")
	if err := watcher.Start(ctx, targets); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Watcher stopped")
	}
	log.Info().Msg("Shutting down")
}
