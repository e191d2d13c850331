package strategy

import (
	"math"
	"testing"

	sig "quantsim/internal/signal"
)

func TestNewMomentumValidation(t *testing.T) {
	if _, err := NewMomentum(0, 0.02); err == nil {
		t.Fatalf("expected error for zero lookback")
	}
	if _, err := NewMomentum(5, 0); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
}

func TestMomentumBuy(t *testing.T) {
	strat, err := NewMomentum(5, 0.02)
	if err != nil {
		t.Fatalf("NewMomentum returned error: %v", err)
	}

	closes := []float64{100, 100, 100, 100, 100, 101, 102, 103, 104, 105}
	signals, err := strat.GenerateSignals(seriesFromCloses(closes...))
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	if len(signals) != 1 || signals[0].Kind != sig.Buy {
		t.Fatalf("rising series should buy, got %+v", signals)
	}
	// 5% move over a 2% threshold caps confidence at strength/(2*threshold).
	want := math.Min(1, 0.05/0.04)
	if math.Abs(signals[0].Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, signals[0].Confidence)
	}
}

func TestMomentumSell(t *testing.T) {
	strat, _ := NewMomentum(5, 0.02)

	closes := []float64{105, 105, 105, 105, 105, 104, 103, 102, 101, 100}
	signals, err := strat.GenerateSignals(seriesFromCloses(closes...))
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	if len(signals) != 1 || signals[0].Kind != sig.Sell {
		t.Fatalf("falling series should sell, got %+v", signals)
	}
}

func TestMomentumAbstainsBelowThreshold(t *testing.T) {
	strat, _ := NewMomentum(5, 0.02)

	signals, err := strat.GenerateSignals(seriesFromCloses(flatCloses(12, 100)...))
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	if signals != nil {
		t.Fatalf("flat series should abstain, got %+v", signals)
	}
}

func TestMomentumShortPrefixAbstains(t *testing.T) {
	strat, _ := NewMomentum(5, 0.02)
	signals, err := strat.GenerateSignals(seriesFromCloses(flatCloses(9, 100)...))
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	if signals != nil {
		t.Fatalf("prefix shorter than lookback+5 should abstain, got %+v", signals)
	}
}
