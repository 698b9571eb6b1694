package screener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/gregtusar/synthlong/pkg/report"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runAt = time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func candidate(ticker string, yield float64) models.StrategyResult {
	return models.StrategyResult{
		Ticker:          ticker,
		Spot:            100,
		Expiry:          runAt.AddDate(0, 0, 120),
		DaysToExpiry:    120,
		AnnualizedYield: yield,
		CapitalRequired: 9000,
	}
}

type fakeEngine struct {
	results map[string][]models.StrategyResult
	errs    map[string]error
}

func (f fakeEngine) Evaluate(_ context.Context, ticker string, _ strategy.Parameters) ([]models.StrategyResult, error) {
	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	return f.results[ticker], nil
}

func (f fakeEngine) BestResult(ctx context.Context, ticker string, params strategy.Parameters) (*models.StrategyResult, error) {
	results, err := f.Evaluate(ctx, ticker, params)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

func watchlistEngine() fakeEngine {
	return fakeEngine{
		results: map[string][]models.StrategyResult{
			"AAPL": {candidate("AAPL", 0.10), candidate("AAPL", 0.05)},
			"MSFT": {candidate("MSFT", 0.20)},
			"META": {candidate("META", 0.15), candidate("META", 0.01)},
		},
		errs: map[string]error{"GOOGL": errors.New("upstream timeout")},
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type funcExporter func(ctx context.Context, run *Run) error

func (f funcExporter) Export(ctx context.Context, run *Run) error { return f(ctx, run) }

func newTestRunner(engine Evaluator, opts Options) *Runner {
	if opts.Tickers == nil {
		opts.Tickers = []string{"AAPL", "MSFT", "GOOGL", "META"}
	}
	if opts.Params.ContractSize == 0 {
		opts.Params = strategy.DefaultParameters()
	}
	r := NewRunner(engine, opts, quietLogger())
	r.now = func() time.Time { return runAt }
	return r
}

func TestRunOnceAutomaticRanksBestPerTicker(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRunner(watchlistEngine(), Options{Notifier: notifier})

	run, err := r.RunOnce(context.Background(), ModeAutomatic, 2)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "AAPL, MSFT, GOOGL, META [Automatic]", run.Label)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "MSFT", run.Results[0].Ticker)
	assert.Equal(t, "META", run.Results[1].Ticker)

	require.Len(t, run.Outcomes, 4)
	assert.Equal(t, "GOOGL", run.Outcomes[2].Ticker)
	assert.True(t, run.Outcomes[2].Failed())
	assert.Equal(t, "upstream timeout", run.Outcomes[2].Error)
	assert.Equal(t, 1, run.Failures())

	msgs := notifier.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "best MSFT")
}

func TestRunOnceTopZeroKeepsAll(t *testing.T) {
	r := newTestRunner(watchlistEngine(), Options{})
	run, err := r.RunOnce(context.Background(), ModeAutomatic, 0)
	require.NoError(t, err)
	assert.Len(t, run.Results, 3)
}

func TestRunOnceManualKeepsEveryCandidate(t *testing.T) {
	r := newTestRunner(watchlistEngine(), Options{})
	run, err := r.RunOnce(context.Background(), ModeManual, 1)
	require.NoError(t, err)

	assert.Equal(t, "AAPL, MSFT, GOOGL, META [Manual]", run.Label)
	assert.Len(t, run.Results, 5)
	assert.Equal(t, "AAPL", run.Results[0].Ticker, "manual mode keeps per-ticker order")
}

func TestExecuteWithExplicitTickers(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRunner(watchlistEngine(), Options{Notifier: notifier})

	run, err := r.Execute(context.Background(), Request{Tickers: []string{"TSLA"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA"}, run.Tickers)
	assert.Empty(t, run.Results)
	require.Len(t, run.Outcomes, 1)
	assert.False(t, run.Outcomes[0].Failed())
	assert.Equal(t, []string{"TSLA [Automatic]: No qualifying trades found."}, notifier.all())
}

func TestFailedTickersAreNotReportedAsEmpty(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRunner(watchlistEngine(), Options{Notifier: notifier})

	run, err := r.Execute(context.Background(), Request{Tickers: []string{"GOOGL"}})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failures())
	assert.Equal(t, []string{"GOOGL [Automatic]: GOOGL failed: upstream timeout"}, notifier.all())

	_, err = r.Execute(context.Background(), Request{Tickers: []string{"TSLA", "GOOGL"}})
	require.NoError(t, err)
	msgs := notifier.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "TSLA, GOOGL [Automatic]: No qualifying trades found.\n"+
		"TSLA, GOOGL [Automatic]: GOOGL failed: upstream timeout", msgs[1])
}

func TestExportersReceiveEveryRankedResult(t *testing.T) {
	var exported []models.StrategyResult
	var failed []report.Failure
	capture := funcExporter(func(_ context.Context, run *Run) error {
		exported = ranked(run)
		failed = failures(run)
		return nil
	})
	r := newTestRunner(watchlistEngine(), Options{Exporters: []Exporter{capture}})

	run, err := r.RunOnce(context.Background(), ModeAutomatic, 1)
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	require.Len(t, exported, 3)
	assert.Equal(t, []string{"MSFT", "META", "AAPL"}, []string{exported[0].Ticker, exported[1].Ticker, exported[2].Ticker})
	assert.Equal(t, []report.Failure{{Ticker: "GOOGL", Error: "upstream timeout"}}, failed)
}

func TestRunOnceRejectsInvalidParameters(t *testing.T) {
	p := strategy.DefaultParameters()
	p.MinDays = 300
	r := newTestRunner(watchlistEngine(), Options{Params: p})

	_, err := r.RunOnce(context.Background(), ModeAutomatic, 3)
	assert.ErrorIs(t, err, strategy.ErrInvalidParameters)
	_, ok := r.Latest()
	assert.False(t, ok)
}

func TestRunOnceStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(watchlistEngine(), Options{})
	_, err := r.RunOnce(ctx, ModeAutomatic, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestAndSubscribe(t *testing.T) {
	r := newTestRunner(watchlistEngine(), Options{})
	runs, unsubscribe := r.Subscribe()

	run, err := r.RunOnce(context.Background(), ModeAutomatic, 3)
	require.NoError(t, err)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, run.ID, latest.ID)

	select {
	case got := <-runs:
		assert.Equal(t, run.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the run")
	}

	// A full buffer must not block the runner.
	_, err = r.RunOnce(context.Background(), ModeAutomatic, 3)
	require.NoError(t, err)
	_, err = r.RunOnce(context.Background(), ModeAutomatic, 3)
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	for range runs {
	}
}

func TestExportersRunAndFailuresAreNotified(t *testing.T) {
	notifier := &recordingNotifier{}
	var exported []string
	ok := funcExporter(func(_ context.Context, run *Run) error {
		exported = append(exported, run.ID)
		return nil
	})
	broken := funcExporter(func(context.Context, *Run) error { return errors.New("disk full") })

	r := newTestRunner(watchlistEngine(), Options{Notifier: notifier, Exporters: []Exporter{ok, broken}})
	run, err := r.RunOnce(context.Background(), ModeAutomatic, 3)
	require.NoError(t, err, "export failures do not fail the run")

	assert.Equal(t, []string{run.ID}, exported)
	msgs := notifier.all()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "disk full")
}

func TestCSVExporter(t *testing.T) {
	dir := t.TempDir()
	r := newTestRunner(watchlistEngine(), Options{Exporters: []Exporter{CSVExporter{Dir: dir, Logger: quietLogger()}}})

	_, err := r.RunOnce(context.Background(), ModeAutomatic, 3)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "options_20250115_123000.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "MSFT")
}

func TestStartRunsOnScheduleUntilStopped(t *testing.T) {
	r := newTestRunner(watchlistEngine(), Options{})
	var waits []time.Duration
	var mu sync.Mutex
	r.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		ch := make(chan time.Time, 1)
		ch <- runAt
		return ch
	}
	runs, unsubscribe := r.Subscribe()
	defer unsubscribe()

	gst := time.FixedZone("GST", 4*60*60)
	require.NoError(t, r.Start(context.Background(), Schedule{Time: "16:45", Location: gst, Mode: ModeAutomatic, Top: 1}))

	select {
	case run := <-runs:
		require.Len(t, run.Results, 1)
		assert.Equal(t, "MSFT", run.Results[0].Ticker)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not happen")
	}

	r.Stop()
	r.Stop()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, waits)
	assert.Equal(t, 15*time.Minute, waits[0])
}

func TestStartRejectsBadTime(t *testing.T) {
	r := newTestRunner(watchlistEngine(), Options{})
	assert.Error(t, r.Start(context.Background(), Schedule{Time: "25:00"}))
}

func TestNextRun(t *testing.T) {
	gst := time.FixedZone("GST", 4*60*60)
	tests := []struct {
		name  string
		now   time.Time
		clock string
		want  time.Time
	}{
		{"later today", time.Date(2025, 1, 15, 10, 0, 0, 0, gst), "16:45", time.Date(2025, 1, 15, 16, 45, 0, 0, gst)},
		{"already passed", time.Date(2025, 1, 15, 17, 0, 0, 0, gst), "16:45", time.Date(2025, 1, 16, 16, 45, 0, 0, gst)},
		{"exactly now", time.Date(2025, 1, 15, 16, 45, 0, 0, gst), "16:45", time.Date(2025, 1, 16, 16, 45, 0, 0, gst)},
		{"now in another zone", time.Date(2025, 1, 15, 20, 30, 0, 0, time.UTC), "09:00", time.Date(2025, 1, 16, 9, 0, 0, 0, gst)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.now, tt.clock, gst)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := NextRun(runAt, "noon", gst)
	assert.Error(t, err)
}

func TestParseModeAndLabel(t *testing.T) {
	mode, err := ParseMode("Manual")
	require.NoError(t, err)
	assert.Equal(t, ModeManual, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAutomatic, mode)

	_, err = ParseMode("yolo")
	assert.Error(t, err)

	assert.Equal(t, "(no tickers) [Manual]", Label(nil, ModeManual))
}
