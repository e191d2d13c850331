// Package sim drives the event-driven replay loop: one bar at a time through
// strategy, risk, sizing, and the portfolio ledger, with run/pause/stop
// semantics and asynchronous observer delivery.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantsim/internal/market"
	"quantsim/internal/metrics"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	sig "quantsim/internal/signal"
	"quantsim/internal/strategy"
)

// Status enumerates the engine lifecycle.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusStopped   Status = "STOPPED"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// Config tunes one simulation run.
type Config struct {
	Symbol          string
	InitialCapital  float64
	CommissionRate  float64
	SlippageRate    float64
	PositionSize    float64 // fallback fraction when sizing method is unset
	SizingMethod    string
	StopLossPercent float64
	MinTradeQty     float64
	SpeedMultiplier float64
	UpdateInterval  time.Duration
	StepMode        bool
	StopTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	q := c
	if q.Symbol == "" {
		q.Symbol = "BTC-USD"
	}
	if q.InitialCapital == 0 {
		q.InitialCapital = 10000
	}
	if q.PositionSize == 0 {
		q.PositionSize = 0.20
	}
	if q.StopLossPercent == 0 {
		q.StopLossPercent = 0.05
	}
	if q.MinTradeQty == 0 {
		q.MinTradeQty = 0.001
	}
	if q.SpeedMultiplier == 0 {
		q.SpeedMultiplier = 1
	}
	if q.UpdateInterval == 0 {
		q.UpdateInterval = 100 * time.Millisecond
	}
	if q.StopTimeout == 0 {
		q.StopTimeout = time.Second
	}
	return q
}

const pausePoll = 50 * time.Millisecond

type savedState struct {
	ledger *portfolio.Ledger
	cursor int
}

// Engine owns the ledger and cursor exclusively from its simulation thread;
// observers see immutable copies through the event bus.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	series   market.Series
	strategy strategy.Strategy
	ledger   *portfolio.Ledger
	sizer    *risk.Sizer
	manager  *risk.Manager
	recorder portfolio.TradeRecorder

	mu        sync.Mutex
	status    Status
	cursor    int
	lastErr   error
	saved     map[string]savedState
	updateFns []UpdateFunc
	tradeFns  []TradeFunc
	alertFns  []AlertFunc

	paused bool
	stopCh chan struct{}
	doneCh chan struct{}
	bus    *eventBus
}

// New builds an engine with a freshly funded ledger.
func New(cfg Config, sizer *risk.Sizer, manager *risk.Manager, log zerolog.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	ledger, err := portfolio.NewLedger(cfg.InitialCapital)
	if err != nil {
		return nil, err
	}
	if sizer == nil {
		if sizer, err = risk.NewSizer(risk.DefaultSizerConfig()); err != nil {
			return nil, err
		}
	}
	if manager == nil {
		manager = risk.NewManager(risk.DefaultLimits())
	}
	e := &Engine{
		cfg:     cfg,
		log:     log,
		ledger:  ledger,
		sizer:   sizer,
		manager: manager,
		status:  StatusIdle,
		saved:   make(map[string]savedState),
	}
	e.bus = newEventBus(e)
	return e, nil
}

// LoadSeries binds the bar series and rewinds the cursor.
func (e *Engine) LoadSeries(series market.Series) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.series = series
	e.cursor = 0
	e.log.Info().Int("bars", len(series)).Msg("series loaded")
}

// SetStrategy binds the signal source.
func (e *Engine) SetStrategy(s strategy.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
	e.log.Info().Str("strategy", s.Name()).Msg("strategy set")
}

// SetRecorder wires an optional trade recorder.
func (e *Engine) SetRecorder(r portfolio.TradeRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// OnUpdate registers a per-bar state observer.
func (e *Engine) OnUpdate(fn UpdateFunc) {
	e.mu.Lock()
	e.updateFns = append(e.updateFns, fn)
	e.mu.Unlock()
}

// OnTrade registers a trade observer.
func (e *Engine) OnTrade(fn TradeFunc) {
	e.mu.Lock()
	e.tradeFns = append(e.tradeFns, fn)
	e.mu.Unlock()
}

// OnAlert registers a risk/lifecycle alert observer.
func (e *Engine) OnAlert(fn AlertFunc) {
	e.mu.Lock()
	e.alertFns = append(e.alertFns, fn)
	e.mu.Unlock()
}

// Status returns the current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the error recorded when the engine entered StatusError.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Ledger exposes the accounting state. Read it only while the engine is not
// running, or through published State copies.
func (e *Engine) Ledger() *portfolio.Ledger { return e.ledger }

// Start transitions IDLE/STOPPED to RUNNING. In step mode the caller drives
// StepForward; otherwise a dedicated goroutine paces the replay at
// UpdateInterval/SpeedMultiplier.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.series == nil || e.strategy == nil {
		return errors.New("sim: series and strategy must be set before starting")
	}
	switch e.status {
	case StatusIdle, StatusStopped:
	case StatusRunning, StatusPaused:
		return fmt.Errorf("sim: already %s", e.status)
	default:
		return fmt.Errorf("sim: cannot start from %s", e.status)
	}

	e.status = StatusRunning
	e.paused = false
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	if e.cfg.StepMode {
		close(e.doneCh)
		e.log.Info().Msg("simulation started in step mode")
		return nil
	}
	go e.runLoop(e.stopCh, e.doneCh)
	e.log.Info().Float64("speed", e.cfg.SpeedMultiplier).Msg("simulation started")
	return nil
}

// Pause sets the polled pause flag; no state mutates while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		e.paused = true
		e.status = StatusPaused
		e.log.Info().Msg("simulation paused")
	}
}

// Resume clears the pause flag.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusPaused {
		e.paused = false
		e.status = StatusRunning
		e.log.Info().Msg("simulation resumed")
	}
}

// Stop signals cooperative termination and joins the loop with a bounded
// timeout. The loop goroutine is never forcibly killed.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status != StatusRunning && e.status != StatusPaused {
		e.mu.Unlock()
		return
	}
	e.status = StatusStopped
	e.paused = false
	doneCh := e.doneCh
	timeout := e.cfg.StopTimeout
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	e.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		e.log.Warn().Msg("simulation loop did not stop within timeout")
	}
	e.log.Info().Msg("simulation stopped")
}

func (e *Engine) runLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	interval := time.Duration(float64(e.cfg.UpdateInterval) / e.cfg.SpeedMultiplier)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		e.mu.Lock()
		paused := e.paused
		e.mu.Unlock()
		if paused {
			select {
			case <-stopCh:
				return
			case <-time.After(pausePoll):
			}
			continue
		}

		if !e.StepForward() {
			// A false step can mean Pause landed between the flag read above
			// and the step's status check. Keep polling in that case; only
			// completion, stop, or error ends the loop.
			e.mu.Lock()
			paused = e.status == StatusPaused
			e.mu.Unlock()
			if !paused {
				return
			}
			continue
		}

		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}
	}
}

// StepForward advances exactly one bar and returns false once the series is
// exhausted (transitioning to COMPLETED) or the engine leaves the running
// states.
func (e *Engine) StepForward() (advanced bool) {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return false
	}
	if e.cursor >= len(e.series) {
		e.status = StatusCompleted
		e.mu.Unlock()
		e.log.Info().Msg("simulation completed")
		return false
	}
	cursor := e.cursor
	prefix := e.series[:cursor+1]
	bar := e.series[cursor]
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sim: bar %d: %v", cursor, r)
			e.mu.Lock()
			e.status = StatusError
			e.lastErr = err
			e.mu.Unlock()
			e.log.Error().Err(err).Msg("simulation error")
			advanced = false
		}
	}()

	prices := map[string]float64{e.cfg.Symbol: bar.Close}
	e.ledger.MarkToMarket(prices)

	signals, err := e.strategy.GenerateSignals(prefix)
	if err != nil {
		// One bad bar is skipped, never fatal to the run.
		e.log.Warn().Err(err).Time("ts", bar.Ts).Msg("signal generation failed")
	}
	for _, s := range signals {
		metrics.SignalsTotal.WithLabelValues(e.strategy.Name(), string(s.Kind)).Inc()
		if !s.Actionable() {
			continue
		}
		e.processSignal(s, bar, prefix, prices)
	}

	if e.manager.Update(e.ledger.Value(prices)) {
		e.alert("emergency stop: realized drawdown crossed hard threshold")
	}

	e.ledger.TakeSnapshot(bar.Ts)
	metrics.BarsProcessed.Inc()

	e.mu.Lock()
	e.cursor++
	done := e.cursor >= len(e.series)
	if done && e.status == StatusRunning {
		e.status = StatusCompleted
	}
	e.mu.Unlock()

	e.bus.publish(e, event{kind: evUpdate, state: e.snapshotState(bar, prices)})
	if done {
		e.log.Info().Msg("simulation completed")
		return false
	}
	return true
}

// processSignal runs the risk check, sizes the order, clamps it to what the
// ledger can satisfy, and books the trade. Unsatisfiable signals are dropped
// with a warning.
func (e *Engine) processSignal(s sig.Signal, bar market.Bar, prefix market.Series, prices map[string]float64) {
	verdict := e.manager.Check(len(e.ledger.Positions()), append(e.ledger.ValueHistory(), e.ledger.Value(prices)))
	if !verdict.Allowed {
		metrics.RiskRejections.WithLabelValues(string(verdict.Breach)).Inc()
		e.alert(verdict.Reason)
		switch verdict.Breach {
		case risk.BreachDrawdown:
			e.haltFromLoop(StatusStopped)
		case risk.BreachDailyLoss:
			e.Pause()
		}
		return
	}

	value := e.ledger.Value(prices)
	frac := e.cfg.PositionSize
	if e.cfg.SizingMethod != "" {
		stop := bar.Close * (1 - e.cfg.StopLossPercent)
		frac = e.sizer.PositionSize(s.Confidence, bar.Close, stop, value, prefix.Returns(), e.cfg.SizingMethod)
	}
	qty := value * frac / bar.Close

	switch s.Kind {
	case sig.Buy:
		// Clamp to available cash including the fee and slippage buffer.
		affordable := e.ledger.Cash() / (bar.Close * (1 + e.cfg.CommissionRate + e.cfg.SlippageRate))
		if qty > affordable {
			qty = affordable
		}
		if qty < e.cfg.MinTradeQty {
			e.log.Warn().Float64("cash", e.ledger.Cash()).Msg("insufficient cash, signal dropped")
			return
		}
	case sig.Sell:
		pos, held := e.ledger.Position(e.cfg.Symbol)
		if !held || pos.Qty <= 0 {
			e.log.Warn().Msg("no position to sell, signal dropped")
			return
		}
		if qty > pos.Qty {
			qty = pos.Qty
		}
	}

	trade, err := e.ledger.ExecuteTrade(portfolio.Order{
		Ts:             bar.Ts,
		Symbol:         e.cfg.Symbol,
		Side:           portfolio.Side(s.Kind),
		Qty:            qty,
		Price:          bar.Close,
		Strategy:       e.strategy.Name(),
		Reason:         s.Reason,
		Confidence:     s.Confidence,
		CommissionRate: e.cfg.CommissionRate,
		SlippageRate:   e.cfg.SlippageRate,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("trade rejected by ledger")
		return
	}
	if e.recorder != nil {
		if err := e.recorder.Record(trade); err != nil {
			e.log.Error().Err(err).Msg("trade recorder write failed")
		}
	}
	e.log.Info().
		Str("side", string(trade.Side)).
		Float64("qty", trade.Qty).
		Float64("px", trade.Price).
		Float64("confidence", trade.Confidence).
		Msg("trade executed")
	e.bus.publish(e, event{kind: evTrade, trade: trade, signal: s})
}

// haltFromLoop transitions out of RUNNING from inside the step pipeline
// without joining the loop goroutine (the loop observes the status change).
func (e *Engine) haltFromLoop(to Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning || e.status == StatusPaused {
		e.status = to
		if e.stopCh != nil {
			select {
			case <-e.stopCh:
			default:
				close(e.stopCh)
			}
		}
	}
}

func (e *Engine) alert(msg string) {
	e.log.Warn().Msg(msg)
	e.bus.publish(e, event{kind: evAlert, msg: msg})
}

func (e *Engine) snapshotState(bar market.Bar, prices map[string]float64) State {
	e.mu.Lock()
	status := e.status
	cursor := e.cursor
	total := len(e.series)
	e.mu.Unlock()

	progress := 0.0
	if total > 0 {
		progress = float64(cursor) / float64(total)
	}
	return State{
		Ts:             bar.Ts,
		Price:          bar.Close,
		PortfolioValue: e.ledger.Value(prices),
		Cash:           e.ledger.Cash(),
		Positions:      e.ledger.Positions(),
		TotalReturn:    e.ledger.TotalReturn(prices),
		Drawdown:       e.ledger.Drawdown(prices),
		TradeStats:     e.ledger.TradeStats(),
		Performance:    e.ledger.PerformanceMetrics(),
		Status:         status,
		Progress:       progress,
	}
}

// CurrentState builds an observer view at the cursor without advancing.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	cursor := e.cursor
	series := e.series
	e.mu.Unlock()

	if len(series) == 0 {
		return State{Status: e.Status()}
	}
	if cursor >= len(series) {
		cursor = len(series) - 1
	}
	bar := series[cursor]
	return e.snapshotState(bar, map[string]float64{e.cfg.Symbol: bar.Close})
}

// SaveState deep-copies the ledger and cursor into a named in-memory slot.
func (e *Engine) SaveState(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved[name] = savedState{ledger: e.ledger.Clone(), cursor: e.cursor}
	e.log.Info().Str("name", name).Msg("state saved")
}

// LoadState restores a previously saved slot. The slot itself stays intact,
// so the same branch point can be revisited.
func (e *Engine) LoadState(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.saved[name]
	if !ok {
		return fmt.Errorf("sim: no saved state named %q", name)
	}
	e.ledger = st.ledger.Clone()
	e.cursor = st.cursor
	e.log.Info().Str("name", name).Msg("state loaded")
	return nil
}

// Reset stops the engine and restores the initial funded state.
func (e *Engine) Reset() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Reset()
	e.cursor = 0
	e.status = StatusIdle
	e.lastErr = nil
	e.log.Info().Msg("simulation reset")
}

// Close shuts the observer dispatcher down. Call once the engine is no
// longer needed.
func (e *Engine) Close() {
	e.Stop()
	e.bus.close()
}
