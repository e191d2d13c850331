package strategy

import (
	"errors"
	"fmt"
	"math"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
)

// Momentum signals when the absolute return over a lookback window clears a
// threshold; direction follows the sign of the move.
type Momentum struct {
	lookback  int
	threshold float64
}

// NewMomentum validates the lookback and threshold and builds the strategy.
func NewMomentum(lookback int, threshold float64) (*Momentum, error) {
	if lookback <= 0 {
		return nil, errors.New("momentum: lookback must be positive")
	}
	if threshold <= 0 {
		return nil, errors.New("momentum: threshold must be positive")
	}
	return &Momentum{lookback: lookback, threshold: threshold}, nil
}

// Name returns the configured identifier for logging and ensemble weighting.
func (m *Momentum) Name() string { return "momentum" }

// GenerateSignals evaluates the lookback return of the latest bar. Below the
// threshold the strategy abstains entirely rather than voting hold.
func (m *Momentum) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	if len(bars) < m.lookback+5 {
		return nil, nil
	}
	latest := bars[len(bars)-1]
	momentum := PctChange(bars.Closes(), m.lookback)
	if math.IsNaN(momentum) {
		return nil, nil
	}
	strength := math.Abs(momentum)
	if strength <= m.threshold {
		return nil, nil
	}

	kind := sig.Buy
	if momentum < 0 {
		kind = sig.Sell
	}
	confidence := math.Min(1, strength/(2*m.threshold))
	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       kind,
		Confidence: confidence,
		Price:      latest.Close,
		Reason:     fmt.Sprintf("momentum %s (strength %.3f)", kind, strength),
		Metadata: map[string]any{
			"momentum":        momentum,
			"lookback_period": m.lookback,
		},
	}}, nil
}
