package backtest

import (
	"testing"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
	"quantsim/internal/strategy"
)

// cycleStrategy alternates buys and sells every few bars so every fold trades.
type cycleStrategy struct{}

func (cycleStrategy) Name() string { return "cycle" }

func (cycleStrategy) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	latest, _ := bars.Last()
	var kind sig.Kind
	switch len(bars) % 4 {
	case 0:
		kind = sig.Buy
	case 2:
		kind = sig.Sell
	default:
		return nil, nil
	}
	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       kind,
		Confidence: 0.9,
		Price:      latest.Close,
		Reason:     "cycle",
	}}, nil
}

type silentStrategy struct{}

func (silentStrategy) Name() string { return "silent" }

func (silentStrategy) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	return nil, nil
}

func TestWalkForwardFoldAccounting(t *testing.T) {
	h := testHarness(t)
	series := trendSeries(120)

	build := func() (strategy.Strategy, error) { return cycleStrategy{}, nil }
	res, err := h.WalkForward(series, build, WalkForwardConfig{Folds: 4, MinTrades: 2, MinTrainBars: 40})
	if err != nil {
		t.Fatalf("WalkForward returned error: %v", err)
	}
	if len(res.Folds) != 4 {
		t.Fatalf("expected 4 folds, got %d", len(res.Folds))
	}

	// Test slices tile the post-training span without gaps or overlap.
	for i, fold := range res.Folds {
		if !fold.TrainEnd.Before(fold.TestStart) {
			t.Fatalf("fold %d trains into its own test slice", i)
		}
		if i > 0 && !res.Folds[i-1].TestEnd.Before(fold.TestStart) {
			t.Fatalf("fold %d overlaps the previous test slice", i)
		}
	}
	if res.Folds[0].TrainStart != series[0].Ts {
		t.Fatalf("expanding window should always train from the first bar")
	}
	if res.Scored == 0 {
		t.Fatalf("cycling strategy should score at least one fold")
	}
	if res.Scored != len(res.Folds)-countDiscarded(res.Folds) {
		t.Fatalf("scored count disagrees with discard flags")
	}
}

func TestWalkForwardDiscardsQuietFolds(t *testing.T) {
	h := testHarness(t)
	series := trendSeries(120)

	build := func() (strategy.Strategy, error) { return silentStrategy{}, nil }
	res, err := h.WalkForward(series, build, WalkForwardConfig{Folds: 3, MinTrades: 1, MinTrainBars: 30})
	if err != nil {
		t.Fatalf("WalkForward returned error: %v", err)
	}
	if res.Scored != 0 {
		t.Fatalf("silent strategy should score nothing, got %d", res.Scored)
	}
	for i, fold := range res.Folds {
		if !fold.Discarded {
			t.Fatalf("fold %d should be discarded", i)
		}
	}
	if res.MeanSharpe != 0 || res.MeanReturn != 0 {
		t.Fatalf("aggregates should stay zero with no scored folds: %+v", res)
	}
}

func TestWalkForwardRejectsShortSeries(t *testing.T) {
	h := testHarness(t)
	build := func() (strategy.Strategy, error) { return silentStrategy{}, nil }
	if _, err := h.WalkForward(trendSeries(10), build, WalkForwardConfig{Folds: 5, MinTrainBars: 60}); err == nil {
		t.Fatalf("expected error for short series")
	}
}

func countDiscarded(folds []Fold) int {
	n := 0
	for _, f := range folds {
		if f.Discarded {
			n++
		}
	}
	return n
}
