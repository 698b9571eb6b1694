package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gregtusar/synthlong/api"
	"github.com/gregtusar/synthlong/pkg/notify"
	"github.com/gregtusar/synthlong/pkg/screener"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var replay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily screening schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(replay)
		},
	}
	cmd.Flags().BoolVar(&replay, "replay", false, "use recorded market data from the snapshot database")
	return cmd
}

func runServe(replay bool) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	params, err := cfg.StrategyParameters()
	if err != nil {
		return err
	}
	mode, err := screener.ParseMode(cfg.Screener.Mode)
	if err != nil {
		return err
	}

	providers, err := buildProviders(cfg, replay, logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	ctx, cancel := signalContext()
	defer cancel()

	engine := strategy.NewEngine(providers.provider, logger)
	runner := screener.NewRunner(engine, screener.Options{
		Tickers:   cfg.Tickers(),
		Params:    params,
		Notifier:  notify.NewLogNotifier(logger),
		Exporters: exporters(ctx, cfg, logger),
	}, logger)

	if cfg.Screener.ScheduleTime != "" {
		loc, err := loadLocation(cfg.Screener.Timezone)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx, screener.Schedule{
			Time:     cfg.Screener.ScheduleTime,
			Location: loc,
			Mode:     mode,
			Top:      cfg.Screener.Top,
		}); err != nil {
			return err
		}
	}

	server := api.NewServer(engine, runner, params, api.Options{
		Port:          fmt.Sprintf("%d", cfg.Server.Port),
		AllowedOrigin: cfg.Server.AllowedOrigin,
		JWTSecret:     cfg.Server.JWTSecret,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("Screener API is running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	runner.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server did not shut down cleanly")
	}

	logger.Info("Screener stopped")
	return nil
}
