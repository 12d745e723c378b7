package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/pkg/arr"
	"github.com/westsurname/blackhole/pkg/debrid"
	"github.com/westsurname/blackhole/pkg/repair"
)

func main() {
	opts := repair.Options{}

	cmd := &cobra.Command{
		Use:           "repair",
		Short:         "Find and re-acquire broken or missing media",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", repair.ModeSymlink, "detection mode: symlink or file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be repaired without changing anything")
	cmd.Flags().BoolVar(&opts.NoConfirm, "no-confirm", false, "repair without prompting")
	cmd.Flags().StringVar(&opts.RepairInterval, "repair-interval", "", "pause between repairs within a pass, e.g. 5m")
	cmd.Flags().StringVar(&opts.RunInterval, "run-interval", "", "interval between passes, e.g. 1d; empty runs once")
	cmd.Flags().BoolVar(&opts.SeasonPacks, "season-packs", false, "search for season packs when a season is fragmented")
	cmd.Flags().BoolVar(&opts.IncludeUnmonitored, "include-unmonitored", false, "also inspect unmonitored children")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts repair.Options) error {
	cfg := config.Get()
	logger.SetLogLevel(cfg.LogLevel)
	log := logger.Default()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.RepairInterval == "" {
		opts.RepairInterval = cfg.Repair.RepairInterval
	}
	if opts.RunInterval == "" {
		opts.RunInterval = cfg.Repair.RunInterval
	}

	arrs := []*arr.Arr{
		arr.New(arr.Radarr, cfg.Radarr),
		arr.New(arr.Sonarr, cfg.Sonarr),
	}
	note := notifier.New(cfg)
	clients := debrid.NewClients(cfg, note)

	engine, err := repair.New(cfg, opts, arrs, clients, note)
	if err != nil {
		return err
	}

	log.Info().Msgf("Starting repair in %s mode", opts.Mode)
	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
