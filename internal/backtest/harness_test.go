package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantsim/internal/market"
	"quantsim/internal/risk"
	sig "quantsim/internal/signal"
)

func makeSeries(closes ...float64) market.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Ts:     base.Add(time.Duration(i) * 24 * time.Hour),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return market.Series(bars)
}

func trendSeries(n int) market.Series {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		if i%7 == 3 {
			price *= 0.99
		} else {
			price *= 1.005
		}
		closes[i] = price
	}
	return makeSeries(closes...)
}

// scriptedStrategy buys or sells at fixed prefix lengths.
type scriptedStrategy struct {
	script map[int]sig.Kind
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	kind, ok := s.script[len(bars)]
	if !ok {
		return nil, nil
	}
	latest, _ := bars.Last()
	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       kind,
		Confidence: 0.9,
		Price:      latest.Close,
		Reason:     "scripted",
	}}, nil
}

func testHarness(t *testing.T) *Harness {
	t.Helper()
	return NewHarness(Config{
		Symbol:         "BTC-USD",
		InitialCapital: 10000,
		CommissionRate: 0.001,
		PositionSize:   0.2,
		Limits: risk.Limits{
			MaxPositions:    5,
			MaxDrawdown:     0.9,
			DailyLossLimit:  0.9,
			EmergencyStopDD: 0.9,
		},
	}, zerolog.Nop())
}

func TestRunRequiresStrategyAndBars(t *testing.T) {
	h := testHarness(t)
	if _, err := h.Run(trendSeries(50), nil, time.Time{}, time.Time{}); err == nil {
		t.Fatalf("expected error for nil strategy")
	}
	if _, err := h.Run(nil, &scriptedStrategy{}, time.Time{}, time.Time{}); err == nil {
		t.Fatalf("expected error for empty series")
	}
}

func TestRunProducesResults(t *testing.T) {
	h := testHarness(t)
	series := trendSeries(60)
	strat := &scriptedStrategy{script: map[int]sig.Kind{10: sig.Buy, 40: sig.Sell}}

	res, err := h.Run(series, strat, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Bars != 60 {
		t.Fatalf("expected 60 bars, got %d", res.Bars)
	}
	if res.TotalTrades != 2 {
		t.Fatalf("expected 2 trades, got %d", res.TotalTrades)
	}
	if len(res.EquityCurve) != 60 {
		t.Fatalf("expected one equity point per bar, got %d", len(res.EquityCurve))
	}
	if res.Start != series[0].Ts || res.End != series[59].Ts {
		t.Fatalf("unexpected window bounds: %v .. %v", res.Start, res.End)
	}
	// Upward drift plus a buy-low sell-high script ends positive.
	if res.TotalReturn <= 0 {
		t.Fatalf("expected positive return, got %f", res.TotalReturn)
	}
	if res.FinalValue <= 10000 {
		t.Fatalf("expected final value above initial capital, got %f", res.FinalValue)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	h := testHarness(t)
	series := trendSeries(80)
	build := func() *scriptedStrategy {
		return &scriptedStrategy{script: map[int]sig.Kind{10: sig.Buy, 30: sig.Sell, 50: sig.Buy, 70: sig.Sell}}
	}

	first, err := h.Run(series, build(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := h.Run(series, build(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.TotalReturn != second.TotalReturn {
		t.Fatalf("returns differ across identical runs: %f vs %f", first.TotalReturn, second.TotalReturn)
	}
	if first.TotalTrades != second.TotalTrades {
		t.Fatalf("trade counts differ: %d vs %d", first.TotalTrades, second.TotalTrades)
	}
	if first.Sharpe != second.Sharpe {
		t.Fatalf("sharpe differs: %f vs %f", first.Sharpe, second.Sharpe)
	}
}

func TestRunHonorsWindow(t *testing.T) {
	h := testHarness(t)
	series := trendSeries(60)

	start := series[10].Ts
	end := series[50].Ts
	res, err := h.Run(series, &scriptedStrategy{}, start, end)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Bars != 40 {
		t.Fatalf("expected 40 bars inside the window, got %d", res.Bars)
	}
	if res.Start != start {
		t.Fatalf("window should start at the requested bar, got %v", res.Start)
	}
}

func TestTailRisk(t *testing.T) {
	returns := []float64{0.01, -0.05, 0.02, -0.01, 0.03, -0.04, 0.01, 0.02, -0.02, 0.01,
		0.01, -0.03, 0.02, 0.01, -0.01, 0.02, 0.01, -0.02, 0.03, 0.01}
	varX, es := tailRisk(returns, 0.95)
	if math.Abs(varX-(-0.04)) > 1e-12 {
		t.Fatalf("expected var -0.04, got %f", varX)
	}
	if math.Abs(es-(-0.045)) > 1e-12 {
		t.Fatalf("shortfall should average the tail beyond var, got %f", es)
	}
	if es > varX {
		t.Fatalf("expected shortfall should be at least as severe as var: es %f var %f", es, varX)
	}

	if v, e := tailRisk(nil, 0.95); v != 0 || e != 0 {
		t.Fatalf("empty sample should yield zeros, got %f %f", v, e)
	}
}
