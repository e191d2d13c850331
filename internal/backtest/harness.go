// Package backtest replays a bar series through the strategy, risk, and
// ledger pipeline deterministically: no pacing, no observers, same inputs
// always produce the same results.
package backtest

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	sig "quantsim/internal/signal"
	"quantsim/internal/strategy"
)

const periodsPerYear = 252.0

// Config tunes one backtest run.
type Config struct {
	Symbol          string
	InitialCapital  float64
	CommissionRate  float64
	SlippageRate    float64
	PositionSize    float64
	SizingMethod    string
	StopLossPercent float64
	MinTradeQty     float64
	Limits          risk.Limits
	Sizer           risk.SizerConfig
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
	if q.Sizer == (risk.SizerConfig{}) {
		q.Sizer = risk.DefaultSizerConfig()
	}
	return q
}

// Results summarizes one completed backtest.
type Results struct {
	Start             time.Time
	End               time.Time
	Bars              int
	TotalReturn       float64
	AnnualizedReturn  float64
	Volatility        float64
	Sharpe            float64
	MaxDrawdown       float64
	Calmar            float64
	WinRate           float64
	TotalTrades       int
	RoundTrips        int
	AvgWin            float64
	AvgLoss           float64
	ProfitFactor      float64
	VaR95             float64
	ExpectedShortfall float64
	FinalValue        float64
	EquityCurve       []portfolio.Snapshot
	Trades            []portfolio.Trade
}

// Harness runs strategies over historical bars with fresh state per run.
type Harness struct {
	cfg Config
	log zerolog.Logger
}

// NewHarness builds a harness. The logger is used for per-run progress only;
// results carry all figures.
func NewHarness(cfg Config, log zerolog.Logger) *Harness {
	return &Harness{cfg: cfg.withDefaults(), log: log}
}

// Run replays the series restricted to [start, end) through the strategy and
// returns aggregate results. A zero start or end leaves that bound open.
func (h *Harness) Run(series market.Series, strat strategy.Strategy, start, end time.Time) (Results, error) {
	if strat == nil {
		return Results{}, errors.New("backtest: strategy is required")
	}
	window := series.Between(start, end)
	if len(window) == 0 {
		return Results{}, errors.New("backtest: no bars in the requested window")
	}

	ledger, err := portfolio.NewLedger(h.cfg.InitialCapital)
	if err != nil {
		return Results{}, err
	}
	sizer, err := risk.NewSizer(h.cfg.Sizer)
	if err != nil {
		return Results{}, err
	}
	manager := risk.NewManager(h.cfg.Limits)

	h.log.Info().
		Str("strategy", strat.Name()).
		Int("bars", len(window)).
		Time("start", window[0].Ts).
		Time("end", window[len(window)-1].Ts).
		Msg("backtest started")

	for i := range window {
		prefix := window[:i+1]
		bar := window[i]
		prices := map[string]float64{h.cfg.Symbol: bar.Close}
		ledger.MarkToMarket(prices)

		signals, err := strat.GenerateSignals(prefix)
		if err != nil {
			h.log.Warn().Err(err).Time("ts", bar.Ts).Msg("signal generation failed")
		}
		for _, s := range signals {
			if !s.Actionable() {
				continue
			}
			h.processSignal(ledger, sizer, manager, strat.Name(), s, bar, prefix, prices)
		}

		manager.Update(ledger.Value(prices))
		ledger.TakeSnapshot(bar.Ts)
	}

	res := h.summarize(ledger, window)
	h.log.Info().
		Float64("return", res.TotalReturn).
		Float64("sharpe", res.Sharpe).
		Int("trades", res.TotalTrades).
		Msg("backtest finished")
	return res, nil
}

func (h *Harness) processSignal(ledger *portfolio.Ledger, sizer *risk.Sizer, manager *risk.Manager, name string, s sig.Signal, bar market.Bar, prefix market.Series, prices map[string]float64) {
	verdict := manager.Check(len(ledger.Positions()), append(ledger.ValueHistory(), ledger.Value(prices)))
	if !verdict.Allowed {
		return
	}

	value := ledger.Value(prices)
	frac := h.cfg.PositionSize
	if h.cfg.SizingMethod != "" {
		stop := bar.Close * (1 - h.cfg.StopLossPercent)
		frac = sizer.PositionSize(s.Confidence, bar.Close, stop, value, prefix.Returns(), h.cfg.SizingMethod)
	}
	qty := value * frac / bar.Close

	switch s.Kind {
	case sig.Buy:
		affordable := ledger.Cash() / (bar.Close * (1 + h.cfg.CommissionRate + h.cfg.SlippageRate))
		if qty > affordable {
			qty = affordable
		}
		if qty < h.cfg.MinTradeQty {
			return
		}
	case sig.Sell:
		pos, held := ledger.Position(h.cfg.Symbol)
		if !held || pos.Qty <= 0 {
			return
		}
		if qty > pos.Qty {
			qty = pos.Qty
		}
	}

	_, err := ledger.ExecuteTrade(portfolio.Order{
		Ts:             bar.Ts,
		Symbol:         h.cfg.Symbol,
		Side:           portfolio.Side(s.Kind),
		Qty:            qty,
		Price:          bar.Close,
		Strategy:       name,
		Reason:         s.Reason,
		Confidence:     s.Confidence,
		CommissionRate: h.cfg.CommissionRate,
		SlippageRate:   h.cfg.SlippageRate,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("trade rejected by ledger")
	}
}

func (h *Harness) summarize(ledger *portfolio.Ledger, window market.Series) Results {
	history := ledger.History()
	stats := ledger.TradeStats()
	perf := ledger.PerformanceMetrics()

	res := Results{
		Start:        window[0].Ts,
		End:          window[len(window)-1].Ts,
		Bars:         len(window),
		TotalReturn:  perf.TotalReturn,
		Sharpe:       perf.Sharpe,
		MaxDrawdown:  perf.MaxDrawdown,
		Calmar:       perf.Calmar,
		WinRate:      stats.WinRate,
		TotalTrades:  stats.TotalTrades,
		RoundTrips:   stats.RoundTrips,
		AvgWin:       stats.AvgWin,
		AvgLoss:      stats.AvgLoss,
		ProfitFactor: stats.ProfitFactor,
		FinalValue:   perf.CurrentValue,
		EquityCurve:  history,
		Trades:       ledger.Trades(),
	}
	if len(history) == 0 {
		res.FinalValue = ledger.Cash()
	}

	returns := snapshotReturns(history)
	res.Volatility = sampleStd(returns) * math.Sqrt(periodsPerYear)
	if years := float64(len(window)) / periodsPerYear; years > 0 && res.FinalValue > 0 && h.cfg.InitialCapital > 0 {
		res.AnnualizedReturn = math.Pow(res.FinalValue/h.cfg.InitialCapital, 1/years) - 1
	}
	res.VaR95, res.ExpectedShortfall = tailRisk(returns, 0.95)
	return res
}

// snapshotReturns converts the equity curve to per-bar simple returns.
func snapshotReturns(history []portfolio.Snapshot) []float64 {
	if len(history) < 2 {
		return nil
	}
	out := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].TotalValue
		if prev > 0 {
			out = append(out, history[i].TotalValue/prev-1)
		}
	}
	return out
}

// tailRisk returns historical VaR at the given confidence and the expected
// shortfall beyond it. Both are reported as (typically negative) returns.
func tailRisk(returns []float64, confidence float64) (varX, es float64) {
	if len(returns) < 2 {
		return 0, 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * (1 - confidence))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	varX = sorted[idx]

	sum, n := 0.0, 0
	for _, r := range sorted[:idx+1] {
		sum += r
		n++
	}
	if n > 0 {
		es = sum / float64(n)
	}
	return varX, es
}

func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := 0.0
	for _, v := range values {
		m += v
	}
	m /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
