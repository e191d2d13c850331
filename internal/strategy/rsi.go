package strategy

import (
	"errors"
	"fmt"
	"math"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
)

// RSIMeanReversion buys oversold bars and sells overbought ones using a
// Wilder-smoothed RSI. Confidence grows with distance past the threshold and
// with RSI momentum agreeing with the signal direction; extreme readings add
// a further boost.
type RSIMeanReversion struct {
	period            int
	oversold          float64
	overbought        float64
	extremeOversold   float64
	extremeOverbought float64
}

// NewRSIMeanReversion validates the threshold relationships and builds the
// strategy.
func NewRSIMeanReversion(period int, oversold, overbought, extremeOversold, extremeOverbought float64) (*RSIMeanReversion, error) {
	if period <= 1 {
		return nil, errors.New("rsi: period must be greater than one")
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi: oversold threshold %.1f must be less than overbought threshold %.1f", oversold, overbought)
	}
	if oversold <= 0 || overbought >= 100 {
		return nil, errors.New("rsi: thresholds must lie inside (0, 100)")
	}
	if extremeOversold > oversold || extremeOverbought < overbought {
		return nil, errors.New("rsi: extreme thresholds must sit beyond the base thresholds")
	}
	return &RSIMeanReversion{
		period:            period,
		oversold:          oversold,
		overbought:        overbought,
		extremeOversold:   extremeOversold,
		extremeOverbought: extremeOverbought,
	}, nil
}

// Name returns the configured identifier for logging and ensemble weighting.
func (r *RSIMeanReversion) Name() string { return "rsi_mean_reversion" }

// GenerateSignals evaluates the latest bar of the prefix against the RSI
// bands.
func (r *RSIMeanReversion) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	if len(bars) < r.period+2 {
		return nil, nil
	}
	latest := bars[len(bars)-1]
	closes := bars.Closes()

	rsi := WilderRSI(closes, r.period)
	rsiPrev := WilderRSI(closes[:len(closes)-1], r.period)
	if math.IsNaN(rsi) {
		return nil, nil
	}
	momentum := 0.0
	if !math.IsNaN(rsiPrev) {
		momentum = rsi - rsiPrev
	}

	switch {
	case rsi < r.oversold:
		confidence := 0.5 + math.Min(0.3, (r.oversold-rsi)/r.oversold*0.5)
		if momentum > 0 {
			confidence += 0.1
		}
		if pm := PctChange(closes, 5); !math.IsNaN(pm) && pm > 0 {
			confidence += 0.1
		}
		confidence += volumeBonus(bars)
		// A deep sustained downtrend makes a bounce less likely.
		if trend := PctChange(closes, 20); !math.IsNaN(trend) && trend < -0.1 {
			confidence -= 0.1
		}
		reason := fmt.Sprintf("rsi oversold: %.1f", rsi)
		if rsi < r.extremeOversold {
			reason = fmt.Sprintf("rsi extremely oversold: %.1f", rsi)
			confidence += 0.2
		}
		confidence = clamp(confidence, 0, 1)
		if confidence <= 0.5 {
			break
		}
		return []sig.Signal{{
			Ts:         latest.Ts,
			Kind:       sig.Buy,
			Confidence: confidence,
			Price:      latest.Close,
			Reason:     reason,
			Metadata:   map[string]any{"rsi": rsi, "rsi_momentum": momentum, "extreme": rsi < r.extremeOversold},
		}}, nil

	case rsi > r.overbought:
		confidence := 0.5 + math.Min(0.3, (rsi-r.overbought)/(100-r.overbought)*0.5)
		if momentum < 0 {
			confidence += 0.1
		}
		if pm := PctChange(closes, 5); !math.IsNaN(pm) && pm < 0 {
			confidence += 0.1
		}
		confidence += volumeBonus(bars)
		reason := fmt.Sprintf("rsi overbought: %.1f", rsi)
		if rsi > r.extremeOverbought {
			reason = fmt.Sprintf("rsi extremely overbought: %.1f", rsi)
			confidence += 0.2
		}
		confidence = clamp(confidence, 0, 1)
		if confidence <= 0.5 {
			break
		}
		return []sig.Signal{{
			Ts:         latest.Ts,
			Kind:       sig.Sell,
			Confidence: confidence,
			Price:      latest.Close,
			Reason:     reason,
			Metadata:   map[string]any{"rsi": rsi, "rsi_momentum": momentum, "extreme": rsi > r.extremeOverbought},
		}}, nil
	}

	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       sig.Hold,
		Confidence: 0.5,
		Price:      latest.Close,
		Reason:     fmt.Sprintf("rsi neutral: %.1f", rsi),
		Metadata:   map[string]any{"rsi": rsi},
	}}, nil
}
