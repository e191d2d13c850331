package strategy

import (
	"errors"
	"fmt"
	"math"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
)

// MACrossover emits a buy when the fast moving average crosses above the slow
// one and a sell on the inverse cross. Confidence scales with the normalized
// crossover gap plus trend and volume agreement.
type MACrossover struct {
	fast        int
	slow        int
	maType      string
	minStrength float64
}

// NewMACrossover validates the period relationship and builds the strategy.
func NewMACrossover(fast, slow int, maType string, minStrength float64) (*MACrossover, error) {
	if fast <= 0 || slow <= 0 {
		return nil, errors.New("ma crossover: periods must be positive")
	}
	if fast >= slow {
		return nil, fmt.Errorf("ma crossover: fast period %d must be less than slow period %d", fast, slow)
	}
	switch maType {
	case "sma", "ema":
	default:
		return nil, fmt.Errorf("ma crossover: unsupported ma type %q", maType)
	}
	if minStrength < 0 {
		return nil, errors.New("ma crossover: min crossover strength must be non-negative")
	}
	return &MACrossover{fast: fast, slow: slow, maType: maType, minStrength: minStrength}, nil
}

// Name returns the configured identifier for logging and ensemble weighting.
func (m *MACrossover) Name() string { return "ma_crossover" }

func (m *MACrossover) average(closes []float64, period int) float64 {
	if m.maType == "ema" {
		return EMA(closes, period)
	}
	return SMA(closes, period)
}

// GenerateSignals evaluates the latest bar of the prefix for a crossover.
func (m *MACrossover) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	if len(bars) < m.slow+1 {
		return nil, nil
	}
	latest := bars[len(bars)-1]
	closes := bars.Closes()
	prev := closes[:len(closes)-1]

	fastNow := m.average(closes, m.fast)
	slowNow := m.average(closes, m.slow)
	fastPrev := m.average(prev, m.fast)
	slowPrev := m.average(prev, m.slow)
	if math.IsNaN(fastNow) || math.IsNaN(slowNow) || math.IsNaN(fastPrev) || math.IsNaN(slowPrev) || slowNow == 0 {
		return nil, nil
	}

	strength := math.Abs(fastNow-slowNow) / slowNow
	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	hold := sig.Signal{
		Ts:         latest.Ts,
		Kind:       sig.Hold,
		Confidence: 0.5,
		Price:      latest.Close,
		Reason:     "no ma crossover",
		Metadata:   map[string]any{"fast_ma": fastNow, "slow_ma": slowNow},
	}

	if (!crossedUp && !crossedDown) || strength < m.minStrength {
		return []sig.Signal{hold}, nil
	}

	trend := PctChange(closes, 5) // slow-side slope proxy over five bars
	confidence := 0.5 + math.Min(0.3, strength*10)
	kind := sig.Buy
	if crossedUp {
		if trend > 0 {
			confidence += math.Min(0.2, trend*5)
		}
		// Elevated recent volatility argues against chasing the cross.
		if vol := StdDev(bars.Returns(), 10); !math.IsNaN(vol) && vol > 0.05 {
			confidence -= 0.1
		}
	} else {
		kind = sig.Sell
		if trend < 0 {
			confidence += math.Min(0.2, -trend*5)
		}
	}
	if bonus := volumeBonus(bars); bonus > 0 {
		confidence += bonus
	}
	confidence = clamp(confidence, 0, 1)
	if confidence <= 0.5 {
		return []sig.Signal{hold}, nil
	}

	direction := "bullish"
	if kind == sig.Sell {
		direction = "bearish"
	}
	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       kind,
		Confidence: confidence,
		Price:      latest.Close,
		Reason:     fmt.Sprintf("ma %s crossover (strength %.3f)", direction, strength),
		Metadata: map[string]any{
			"fast_ma":            fastNow,
			"slow_ma":            slowNow,
			"crossover_strength": strength,
			"trend_strength":     trend,
		},
	}}, nil
}

// volumeBonus rewards signals printed on above-average volume.
func volumeBonus(bars market.Series) float64 {
	if len(bars) < 20 {
		return 0
	}
	sum := 0.0
	for _, b := range bars[len(bars)-20:] {
		sum += b.Volume
	}
	avg := sum / 20
	if avg > 0 && bars[len(bars)-1].Volume > avg*1.2 {
		return 0.1
	}
	return 0
}
