package strategy

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 3); got != 4 {
		t.Fatalf("expected SMA 4, got %f", got)
	}
	if got := SMA(values, 6); !math.IsNaN(got) {
		t.Fatalf("expected NaN for short sample, got %f", got)
	}
	if got := SMA(values, 0); !math.IsNaN(got) {
		t.Fatalf("expected NaN for zero period, got %f", got)
	}
}

func TestEMA(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	if got := EMA(flat, 3); math.Abs(got-100) > 1e-9 {
		t.Fatalf("EMA of constant series should be the constant, got %f", got)
	}
	if got := EMA([]float64{1, 2}, 3); !math.IsNaN(got) {
		t.Fatalf("expected NaN for short sample, got %f", got)
	}

	rising := []float64{100, 101, 102, 103, 104}
	ema := EMA(rising, 3)
	sma := SMA(rising, 3)
	if math.IsNaN(ema) || ema <= 100 || ema > 104 {
		t.Fatalf("EMA out of expected range: %f", ema)
	}
	if ema <= sma-2 || ema >= sma+2 {
		t.Fatalf("EMA %f implausibly far from SMA %f", ema, sma)
	}
}

func TestWilderRSI(t *testing.T) {
	rising := []float64{100, 101, 102, 103, 104, 105, 106}
	if got := WilderRSI(rising, 5); got != 100 {
		t.Fatalf("all-gain series should score 100, got %f", got)
	}

	falling := []float64{106, 105, 104, 103, 102, 101, 100}
	if got := WilderRSI(falling, 5); got != 0 {
		t.Fatalf("all-loss series should score 0, got %f", got)
	}

	flat := []float64{100, 100, 100, 100, 100, 100}
	if got := WilderRSI(flat, 5); got != 50 {
		t.Fatalf("flat series should score 50, got %f", got)
	}

	mixed := []float64{100, 102, 101, 103, 102, 104, 103, 105}
	got := WilderRSI(mixed, 5)
	if math.IsNaN(got) || got <= 0 || got >= 100 {
		t.Fatalf("mixed series should land strictly inside (0, 100), got %f", got)
	}

	if got := WilderRSI([]float64{100, 101}, 5); !math.IsNaN(got) {
		t.Fatalf("expected NaN for short sample, got %f", got)
	}
}

func TestPctChange(t *testing.T) {
	values := []float64{100, 105, 110}
	if got := PctChange(values, 2); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("expected 0.1, got %f", got)
	}
	if got := PctChange(values, 3); !math.IsNaN(got) {
		t.Fatalf("expected NaN for out-of-range lookback, got %f", got)
	}
	if got := PctChange([]float64{0, 1}, 1); !math.IsNaN(got) {
		t.Fatalf("expected NaN for zero anchor, got %f", got)
	}
}

func TestStdDev(t *testing.T) {
	if got := StdDev([]float64{5, 5, 5, 5}, 4); got != 0 {
		t.Fatalf("constant series should have zero deviation, got %f", got)
	}
	if got := StdDev([]float64{5}, 4); !math.IsNaN(got) {
		t.Fatalf("expected NaN for a single sample, got %f", got)
	}
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	if math.Abs(got-2.138) > 0.01 {
		t.Fatalf("unexpected sample deviation: %f", got)
	}
}
