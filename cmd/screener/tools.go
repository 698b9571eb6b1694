package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gregtusar/synthlong/internal/config"
	"github.com/gregtusar/synthlong/pkg/pricing"
	"github.com/spf13/cobra"
)

func newPriceCmd() *cobra.Command {
	var spot, strike, days, rate, vol float64
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a European call/put pair with Black-Scholes",
		RunE: func(cmd *cobra.Command, args []string) error {
			premium, err := pricing.BlackScholes(spot, strike, days/365.0, rate, vol)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Call: %.4f (intrinsic %.4f)\n", premium.Call, pricing.IntrinsicCall(spot, strike))
			fmt.Fprintf(out, "Put:  %.4f (intrinsic %.4f)\n", premium.Put, pricing.IntrinsicPut(spot, strike))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&spot, "spot", 0, "underlying price")
	flags.Float64Var(&strike, "strike", 0, "strike price")
	flags.Float64Var(&days, "days", 0, "days to expiry")
	flags.Float64Var(&rate, "rate", 0.04, "annual risk-free rate")
	flags.Float64Var(&vol, "vol", 0, "annualized volatility, e.g. 0.25")
	for _, name := range []string{"spot", "strike", "days", "vol"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newVolatilityCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "volatility TICKER",
		Short: "Estimate historical volatility from daily closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			providers, err := buildProviders(cfg, false, logger)
			if err != nil {
				return err
			}
			defer providers.Close()
			if providers.history == nil {
				return fmt.Errorf("provider %s has no price history", cfg.Provider.Name)
			}

			tickers := config.NormalizeTickers(args)
			if len(tickers) == 0 {
				return fmt.Errorf("ticker is required")
			}
			ticker := tickers[0]

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			closes, err := providers.history.DailyCloses(ctx, ticker, days)
			if err != nil {
				return err
			}
			est, err := pricing.HistoricalVolatility(closes, pricing.TradingDaysPerYear)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f%% annualized (daily %.4f, %d closes)\n",
				ticker, est.Annualized*100, est.DailyStd, len(closes))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "number of daily closes to use")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
