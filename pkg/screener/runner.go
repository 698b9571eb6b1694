package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/gregtusar/synthlong/pkg/notify"
	"github.com/gregtusar/synthlong/pkg/report"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/sirupsen/logrus"
)

// Evaluator is the part of strategy.Engine the runner drives.
type Evaluator interface {
	Evaluate(ctx context.Context, ticker string, params strategy.Parameters) ([]models.StrategyResult, error)
	BestResult(ctx context.Context, ticker string, params strategy.Parameters) (*models.StrategyResult, error)
}

type Options struct {
	Tickers   []string
	Params    strategy.Parameters
	Notifier  notify.Notifier
	Exporters []Exporter
}

// Request describes one screening pass. Empty Tickers means the runner's
// watchlist.
type Request struct {
	Tickers []string
	Mode    Mode
	Top     int
}

type Runner struct {
	engine    Evaluator
	params    strategy.Parameters
	tickers   []string
	notifier  notify.Notifier
	exporters []Exporter
	logger    *logrus.Logger
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time

	mu          sync.RWMutex
	latest      *Run
	subscribers map[int]chan *Run
	nextSubID   int

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRunner(engine Evaluator, opts Options, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Runner{
		engine:      engine,
		params:      opts.Params,
		tickers:     append([]string(nil), opts.Tickers...),
		notifier:    notifier,
		exporters:   opts.Exporters,
		logger:      logger,
		now:         time.Now,
		after:       time.After,
		subscribers: make(map[int]chan *Run),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *Runner) Tickers() []string {
	return append([]string(nil), r.tickers...)
}

func (r *Runner) Params() strategy.Parameters {
	return r.params
}

// RunOnce screens the configured watchlist.
func (r *Runner) RunOnce(ctx context.Context, mode Mode, top int) (*Run, error) {
	return r.Execute(ctx, Request{Mode: mode, Top: top})
}

// Execute performs one screening pass. A failing ticker is recorded in its
// outcome and does not stop the others; only invalid parameters and
// cancellation fail the whole run.
func (r *Runner) Execute(ctx context.Context, req Request) (*Run, error) {
	if err := r.params.Validate(); err != nil {
		return nil, err
	}
	tickers := req.Tickers
	if len(tickers) == 0 {
		tickers = r.tickers
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeAutomatic
	}

	run := &Run{
		ID:        uuid.New().String(),
		Label:     Label(tickers, mode),
		Mode:      mode,
		Top:       req.Top,
		Tickers:   append([]string(nil), tickers...),
		StartedAt: r.now(),
	}
	log := r.logger.WithFields(logrus.Fields{"run_id": run.ID, "mode": mode})
	log.WithField("tickers", len(tickers)).Info("Starting screening run")

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := r.evaluate(ctx, ticker, mode)
		if outcome.Failed() {
			if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
				return nil, outcome.Err
			}
			log.WithError(outcome.Err).WithField("ticker", ticker).Error("Failed to evaluate ticker")
		}
		run.Outcomes = append(run.Outcomes, outcome)
		run.Results = append(run.Results, outcome.Results...)
	}

	if mode == ModeAutomatic {
		sort.SliceStable(run.Results, func(i, j int) bool {
			return run.Results[i].AnnualizedYield > run.Results[j].AnnualizedYield
		})
	}
	run.Ranked = run.Results
	if mode == ModeAutomatic && req.Top > 0 && len(run.Results) > req.Top {
		run.Results = run.Results[:req.Top:req.Top]
	}
	run.FinishedAt = r.now()

	log.WithFields(logrus.Fields{
		"results":  len(run.Results),
		"failures": run.Failures(),
	}).Info("Finished screening run")

	r.finish(ctx, run)
	return run, nil
}

func (r *Runner) evaluate(ctx context.Context, ticker string, mode Mode) TickerOutcome {
	outcome := TickerOutcome{Ticker: ticker}
	if mode == ModeManual {
		outcome.Results, outcome.Err = r.engine.Evaluate(ctx, ticker, r.params)
	} else {
		best, err := r.engine.BestResult(ctx, ticker, r.params)
		outcome.Err = err
		if best != nil {
			outcome.Results = []models.StrategyResult{*best}
		}
	}
	if outcome.Err != nil {
		outcome.Error = outcome.Err.Error()
		outcome.Results = nil
	}
	return outcome
}

func (r *Runner) finish(ctx context.Context, run *Run) {
	r.mu.Lock()
	r.latest = run
	for _, ch := range r.subscribers {
		select {
		case ch <- run:
		default:
		}
	}
	r.mu.Unlock()

	for _, exporter := range r.exporters {
		if err := exporter.Export(ctx, run); err != nil {
			r.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to export run")
			r.notify(ctx, fmt.Sprintf("Export failed for %s: %v", run.Label, err))
		}
	}

	r.notify(ctx, runMessage(run))
}

// runMessage names every failed ticker with its error. "No qualifying
// trades" is only reported when some ticker was evaluated without error.
func runMessage(run *Run) string {
	var lines []string
	switch {
	case len(run.Results) > 0:
		best := run.Results[0]
		lines = append(lines, fmt.Sprintf("%s: %d candidates, best %s %s at %.2f%%",
			run.Label, len(run.Results), best.Ticker, best.Expiry.Format("2006-01-02"), best.AnnualizedYield*100))
	case len(run.Outcomes) == 0 || run.Failures() < len(run.Outcomes):
		lines = append(lines, fmt.Sprintf("%s: %s", run.Label, report.NoResultMessage))
	}
	for _, o := range run.Outcomes {
		if o.Failed() {
			lines = append(lines, fmt.Sprintf("%s: %s failed: %s", run.Label, o.Ticker, o.Error))
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Runner) notify(ctx context.Context, message string) {
	if err := r.notifier.Notify(ctx, message); err != nil {
		r.logger.WithError(err).Warn("Failed to send notification")
	}
}

// Latest returns the most recently completed run.
func (r *Runner) Latest() (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.latest != nil
}

// Subscribe returns a channel that receives completed runs and a function
// that unsubscribes and closes it. Runs are dropped for a subscriber that is
// not ready to receive.
func (r *Runner) Subscribe() (<-chan *Run, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubID
	r.nextSubID++
	ch := make(chan *Run, 1)
	r.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Schedule is the daily run slot.
type Schedule struct {
	Time     string
	Location *time.Location
	Mode     Mode
	Top      int
}

// Start runs the watchlist once a day at the scheduled time until Stop is
// called or ctx is cancelled. Failed runs are logged and notified.
func (r *Runner) Start(ctx context.Context, schedule Schedule) error {
	if _, err := NextRun(r.now(), schedule.Time, schedule.Location); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"time":     schedule.Time,
		"timezone": schedule.Location.String(),
	}).Info("Starting scheduled screener")

	go r.loop(ctx, schedule)
	return nil
}

func (r *Runner) loop(ctx context.Context, schedule Schedule) {
	defer close(r.done)

	for {
		now := r.now()
		next, _ := NextRun(now, schedule.Time, schedule.Location)
		r.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Waiting for next scheduled run")

		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-r.after(next.Sub(now)):
		}

		if _, err := r.RunOnce(ctx, schedule.Mode, schedule.Top); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Error("Scheduled run failed")
			r.notify(ctx, fmt.Sprintf("Scheduled run failed: %v", err))
		}
	}
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping scheduled screener")
		close(r.stopCh)
	})
}

// Done is closed when the scheduling loop started by Start exits.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
