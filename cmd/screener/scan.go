package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gregtusar/synthlong/internal/config"
	"github.com/gregtusar/synthlong/pkg/notify"
	"github.com/gregtusar/synthlong/pkg/report"
	"github.com/gregtusar/synthlong/pkg/screener"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// strategyFlags are command line overrides for the strategy section. Only
// flags the user set are applied.
type strategyFlags struct {
	putStrikePct  float64
	callStrikePct float64
	minDays       int
	maxDays       int
	expiryStep    int
	riskFreeRate  float64
	putVariation  []float64
}

func (f *strategyFlags) register(flags *pflag.FlagSet) {
	flags.Float64Var(&f.putStrikePct, "put-strike-pct", 0, "put strike as a fraction of spot")
	flags.Float64Var(&f.callStrikePct, "call-strike-pct", 0, "call strike as a fraction of spot")
	flags.IntVar(&f.minDays, "min-days", 0, "minimum days to expiry")
	flags.IntVar(&f.maxDays, "max-days", 0, "maximum days to expiry")
	flags.IntVar(&f.expiryStep, "expiry-step", 0, "minimum spacing in days between selected expiries")
	flags.Float64Var(&f.riskFreeRate, "risk-free-rate", 0, "annual risk-free rate")
	flags.Float64SliceVar(&f.putVariation, "put-variation", nil, "relative put strike variations, e.g. -0.05,0,0.05")
}

func (f *strategyFlags) apply(flags *pflag.FlagSet, s *config.StrategyConfig) {
	if flags.Changed("put-strike-pct") {
		s.PutStrikePct = f.putStrikePct
	}
	if flags.Changed("call-strike-pct") {
		s.CallStrikePct = f.callStrikePct
	}
	if flags.Changed("min-days") {
		s.MinDays = f.minDays
	}
	if flags.Changed("max-days") {
		s.MaxDays = f.maxDays
	}
	if flags.Changed("expiry-step") {
		s.ExpiryStep = f.expiryStep
	}
	if flags.Changed("risk-free-rate") {
		s.RiskFreeRate = f.riskFreeRate
	}
	if flags.Changed("put-variation") {
		s.PutStrikeVariation = f.putVariation
	}
}

type scanOptions struct {
	strategy     strategyFlags
	tickers      []string
	mode         string
	top          int
	format       string
	outputDir    string
	scheduleTime string
	timezone     string
	replay       bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Screen tickers for synthetic long candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func (o *scanOptions) register(flags *pflag.FlagSet) {
	flags.StringSliceVar(&o.tickers, "tickers", nil, "tickers to screen (default from config)")
	flags.StringVar(&o.mode, "mode", "", "automatic (best per ticker) or manual (every candidate)")
	flags.IntVar(&o.top, "top", 0, "number of tickers to show in automatic mode, 0 for all")
	flags.StringVar(&o.format, "format", "summary", "output format: summary, table or json")
	flags.StringVar(&o.outputDir, "output-dir", "", "directory for CSV reports")
	flags.StringVar(&o.scheduleTime, "schedule-time", "", "run daily at HH:MM instead of once")
	flags.StringVar(&o.timezone, "timezone", "", "timezone for --schedule-time")
	flags.BoolVar(&o.replay, "replay", false, "use recorded market data from the snapshot database")
	o.strategy.register(flags)
}

func applyScanFlags(flags *pflag.FlagSet, opts *scanOptions, cfg *config.Config) {
	opts.strategy.apply(flags, &cfg.Strategy)
	if flags.Changed("tickers") {
		cfg.Screener.Tickers = opts.tickers
	}
	if flags.Changed("mode") {
		cfg.Screener.Mode = opts.mode
	}
	if flags.Changed("top") {
		cfg.Screener.Top = opts.top
	}
	if flags.Changed("output-dir") {
		cfg.Screener.OutputDir = opts.outputDir
	}
	if flags.Changed("schedule-time") {
		cfg.Screener.ScheduleTime = opts.scheduleTime
	}
	if flags.Changed("timezone") {
		cfg.Screener.Timezone = opts.timezone
	}
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	applyScanFlags(cmd.Flags(), opts, cfg)

	params, err := cfg.StrategyParameters()
	if err != nil {
		return err
	}
	mode, err := screener.ParseMode(cfg.Screener.Mode)
	if err != nil {
		return err
	}

	providers, err := buildProviders(cfg, opts.replay, logger)
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

	out := cmd.OutOrStdout()
	if cfg.Screener.ScheduleTime == "" {
		run, err := runner.RunOnce(ctx, mode, cfg.Screener.Top)
		if err != nil {
			return err
		}
		return printRun(out, run, opts.format)
	}

	loc, err := loadLocation(cfg.Screener.Timezone)
	if err != nil {
		return err
	}
	runs, unsubscribe := runner.Subscribe()
	defer unsubscribe()
	go func() {
		for run := range runs {
			if err := printRun(out, run, opts.format); err != nil {
				logger.WithError(err).Error("Failed to print run")
			}
		}
	}()

	if err := runner.Start(ctx, screener.Schedule{
		Time:     cfg.Screener.ScheduleTime,
		Location: loc,
		Mode:     mode,
		Top:      cfg.Screener.Top,
	}); err != nil {
		return err
	}
	logger.Info("Screener is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	runner.Stop()
	<-runner.Done()
	logger.Info("Screener stopped")
	return nil
}

// exporters builds the configured run exporters. A Sheets exporter that
// cannot authenticate is logged and skipped.
func exporters(ctx context.Context, cfg *config.Config, log *logrus.Logger) []screener.Exporter {
	var out []screener.Exporter
	if cfg.Screener.OutputDir != "" {
		out = append(out, screener.CSVExporter{Dir: cfg.Screener.OutputDir, Logger: log})
	}
	if cfg.Screener.Sheets.Enabled {
		sheets, err := report.NewSheetsExporter(ctx, cfg.Screener.Sheets.CredentialsFile, []byte(cfg.Screener.Sheets.CredentialsJSON), log)
		if err != nil {
			log.WithError(err).Error("Google Sheets export disabled")
		} else {
			out = append(out, screener.WorkbookExporter{Sheets: sheets})
		}
	}
	return out
}

func printRun(w io.Writer, run *screener.Run, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "table":
		fmt.Fprintf(w, "%s  %s\n", run.Label, run.StartedAt.Format("2006-01-02 15:04:05"))
		report.Table(w, run.Results)
	case "summary", "":
		printSummary(w, run)
	default:
		return fmt.Errorf("unknown format %q (want summary, table or json)", format)
	}
	return nil
}

func printSummary(w io.Writer, run *screener.Run) {
	if run.Mode == screener.ModeManual {
		for _, o := range run.Outcomes {
			fmt.Fprintf(w, "\n%s - showing all qualifying expiries\n", o.Ticker)
			fmt.Fprintln(w, "--------------------------------------------------------------------------------")
			switch {
			case o.Failed():
				fmt.Fprintf(w, "Error: %s\n", o.Error)
			case len(o.Results) == 0:
				fmt.Fprintln(w, "No results.")
			default:
				fmt.Fprintln(w, report.Summarize(o.Results))
			}
		}
		return
	}

	switch {
	case len(run.Results) > 0:
		fmt.Fprintln(w, report.Summarize(run.Results))
	case len(run.Outcomes) == 0 || run.Failures() < len(run.Outcomes):
		fmt.Fprintln(w, report.NoResultMessage)
	}
	for _, o := range run.Outcomes {
		if o.Failed() {
			fmt.Fprintf(w, "%s: Error: %s\n", o.Ticker, o.Error)
		}
	}
}
