// Package monitor runs the baseline-tracking cycle: fetch prices, compare
// them to the stored baselines, rebase on a breach and notify.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/config"
	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/Alessandro1981/etf-checker/internal/notify"
	"github.com/Alessandro1981/etf-checker/internal/storage"
	"github.com/google/uuid"
)

const stopTimeout = 5 * time.Second

var (
	// ErrNoPrices aborts a cycle whose price source answered with nothing.
	ErrNoPrices = errors.New("price source returned no prices")
	// ErrPersistence marks a cycle whose evaluation ran but whose baselines
	// could not be saved.
	ErrPersistence = errors.New("failed to persist baselines")
)

// PriceSource returns current prices. Missing symbols are not an error.
type PriceSource interface {
	Fetch(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OpsNotifier receives cycle failure and recovery notices.
type OpsNotifier interface {
	SendError(ctx context.Context, cycleErr error) error
	SendRecovery(ctx context.Context, failureCount int) error
}

// NotifierFactory builds the alert channel for a configuration.
type NotifierFactory func(cfg config.Config) notify.Notifier

// Deps are the collaborators of an Engine. Ops and Now are optional.
type Deps struct {
	Source   PriceSource
	Store    storage.BaselineStore
	Notifier NotifierFactory
	Ops      OpsNotifier
	Now      func() time.Time
}

// Engine owns the baselines and the active configuration.
type Engine struct {
	source      PriceSource
	store       storage.BaselineStore
	newNotifier NotifierFactory
	ops         OpsNotifier
	now         func() time.Time

	// runMu serializes cycles; failures is guarded by it.
	runMu    sync.Mutex
	failures int

	mu       sync.Mutex
	cfg      config.Config
	notifier notify.Notifier
	state    models.State

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New loads the persisted baselines and returns an idle engine.
func New(cfg config.Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	e := &Engine{
		source:      deps.Source,
		store:       deps.Store,
		newNotifier: deps.Notifier,
		ops:         deps.Ops,
		now:         deps.Now,
		cfg:         cfg,
	}
	e.notifier = e.buildNotifier(cfg)

	e.state = deps.Store.Load()
	if e.state.Baselines == nil {
		e.state.Baselines = make(map[string]float64)
	}
	logger.Info("Loaded %d persisted baselines", len(e.state.Baselines))
	return e
}

func (e *Engine) buildNotifier(cfg config.Config) notify.Notifier {
	if e.newNotifier == nil {
		return notify.NewMulti()
	}
	n := e.newNotifier(cfg)
	if n == nil {
		return notify.NewMulti()
	}
	return n
}

// Snapshot returns a copy of the current baselines.
func (e *Engine) Snapshot() models.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Config returns the active configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig swaps the configuration and rebuilds the notifier. A cycle
// already past its snapshot keeps the old values.
func (e *Engine) UpdateConfig(cfg config.Config) {
	n := e.buildNotifier(cfg)
	e.mu.Lock()
	e.cfg = cfg
	e.notifier = n
	e.mu.Unlock()
	logger.Info("Configuration updated: %d symbols, threshold %.2f%%", len(cfg.UI.Symbols), cfg.UI.ThresholdPercent)
}

// RunOnce runs a single cycle. Cycles never overlap; a caller arriving
// during a cycle waits for it. The returned error reports an aborted cycle
// or a failed save; undelivered alerts are only logged.
func (e *Engine) RunOnce(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	err := e.runCycle(ctx)
	e.reportCycle(ctx, err)
	return err
}

func (e *Engine) runCycle(ctx context.Context) error {
	e.mu.Lock()
	symbols := models.NormalizeSymbols(e.cfg.UI.Symbols)
	threshold := e.cfg.UI.ThresholdPercent
	notifier := e.notifier
	e.mu.Unlock()

	if len(symbols) == 0 {
		logger.Debug("No ETF symbols configured; skipping poll")
		return nil
	}

	cycleID := uuid.NewString()
	start := e.now()
	logger.Debug("Cycle %s: fetching %d symbols", cycleID, len(symbols))

	prices, err := e.source.Fetch(ctx, symbols)
	if err != nil {
		logger.Error("Failed to fetch ETF prices: %v", err)
		return fmt.Errorf("failed to fetch prices: %w", err)
	}
	if len(prices) == 0 {
		logger.Warn("Price provider returned no prices")
		return ErrNoPrices
	}

	alerts, saveErr := e.evaluate(symbols, prices, threshold)
	if saveErr != nil {
		logger.Error("PERSISTENCE: %v", saveErr)
	}

	e.deliver(ctx, notifier, alerts)

	logger.Info("Cycle %s completed in %v: %d priced, %d alerts", cycleID, e.now().Sub(start), len(prices), len(alerts))
	if saveErr != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, saveErr)
	}
	return nil
}

// evaluate seeds or rebases baselines and saves them once, all under the
// state lock.
func (e *Engine) evaluate(symbols []string, prices map[string]float64, threshold float64) ([]models.AlertEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var alerts []models.AlertEvent
	changed := false
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		baseline, seen := e.state.Baselines[symbol]
		if !seen {
			e.state.Baselines[symbol] = price
			changed = true
			logger.Info("Baseline seeded for %s at %.4f", symbol, price)
			continue
		}
		change := PercentChange(baseline, price)
		logger.Debug("%s: baseline %.4f, current %.4f, change %+.3f%%", symbol, baseline, price, change)
		if math.Abs(change) >= threshold {
			alerts = append(alerts, newAlert(symbol, baseline, price, change, threshold, now))
			e.state.Baselines[symbol] = price
			changed = true
		}
	}
	if changed {
		e.state.LastBaselineUpdate = now
	}
	return alerts, e.store.Save(e.state.Clone())
}

// deliver sends each alert on its own; one failure does not stop the rest.
func (e *Engine) deliver(ctx context.Context, n notify.Notifier, alerts []models.AlertEvent) {
	for _, alert := range alerts {
		title, message := formatAlert(alert)
		if !n.Configured() {
			logger.Warn("Notifier not configured; alert not sent: %s", message)
			continue
		}
		var err error
		if dn, ok := n.(notify.DataNotifier); ok {
			err = dn.SendWithData(ctx, title, message, alertData(alert))
		} else {
			err = n.Send(ctx, title, message)
		}
		if err != nil {
			logger.Error("Failed to send alert %s for %s: %v", alert.ID, alert.Symbol, err)
			continue
		}
		logger.Info("Alert sent for %s: %s", alert.Symbol, message)
	}
}

// reportCycle notifies the ops channel on the first failure of a run and on
// the recovery that ends it.
func (e *Engine) reportCycle(ctx context.Context, err error) {
	if err != nil {
		e.failures++
		if e.failures == 1 && e.ops != nil {
			if sendErr := e.ops.SendError(ctx, err); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}
	if e.failures > 0 {
		if e.ops != nil {
			if sendErr := e.ops.SendRecovery(ctx, e.failures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		logger.Info("Monitoring recovered after %d failed cycles", e.failures)
	}
	e.failures = 0
}

func (e *Engine) pollInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Options.PollInterval()
}

// Start launches the cadence loop: a cycle right away, then one per poll
// interval. Calling Start on a running engine does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)
	logger.Info("ETF monitor started")
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		// a cycle already running is allowed to finish after a stop
		_ = e.RunOnce(context.WithoutCancel(ctx))

		timer := time.NewTimer(e.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop ends the cadence loop, waiting a bounded time for an in-flight cycle.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.cancel == nil {
		return
	}
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(stopTimeout):
		logger.Warn("ETF monitor did not stop within %v; leaving cycle to finish", stopTimeout)
	}
	e.cancel = nil
	e.done = nil
	logger.Info("ETF monitor stopped")
}
