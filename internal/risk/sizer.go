// Package risk converts signals into position sizes and vetoes trades that
// would breach portfolio-level limits.
package risk

import (
	"fmt"
	"math"
)

// Sizing methods accepted by PositionSize.
const (
	MethodKelly        = "kelly"
	MethodFixedRisk    = "fixed_risk"
	MethodVolAdjusted  = "volatility_adjusted"
	periodsPerYear     = 252.0
	baselineAnnualVol  = 0.20
	kellyScaling       = 0.25
	kellyMinSamples    = 10
	volRegimeShortLook = 20
	volRegimeLongLook  = 60
)

// SizerConfig bounds and tunes position sizing.
type SizerConfig struct {
	MinPositionSize  float64 `yaml:"min_position_size"`
	MaxPositionSize  float64 `yaml:"max_position_size"`
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk"`
	KellyLookback    int     `yaml:"kelly_lookback"`
	VolLookback      int     `yaml:"vol_lookback"`
	ConfidenceScale  bool    `yaml:"confidence_scaling"`
	VolatilityScale  bool    `yaml:"volatility_scaling"`
}

// DefaultSizerConfig returns conservative sizing bounds.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		MinPositionSize:  0.01,
		MaxPositionSize:  0.25,
		MaxPortfolioRisk: 0.02,
		KellyLookback:    60,
		VolLookback:      20,
		ConfidenceScale:  true,
		VolatilityScale:  true,
	}
}

// Sizer computes the fraction of capital to commit to a trade.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates bounds and builds a sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.MinPositionSize <= 0 || cfg.MaxPositionSize <= 0 {
		return nil, fmt.Errorf("risk: position size bounds must be positive")
	}
	if cfg.MinPositionSize > cfg.MaxPositionSize {
		return nil, fmt.Errorf("risk: min position size %.3f exceeds max %.3f", cfg.MinPositionSize, cfg.MaxPositionSize)
	}
	if cfg.MaxPortfolioRisk <= 0 {
		return nil, fmt.Errorf("risk: max portfolio risk must be positive")
	}
	return &Sizer{cfg: cfg}, nil
}

// PositionSize returns the fraction of portfolio value to commit, clamped to
// the configured bounds. Returns are close-to-close portfolio or asset
// returns used by the kelly and volatility methods.
func (s *Sizer) PositionSize(confidence, price, stopLoss, portfolioValue float64, returns []float64, method string) float64 {
	var base float64
	switch method {
	case MethodKelly:
		base = s.kelly(returns, confidence)
	case MethodFixedRisk:
		base = s.fixedRisk(price, stopLoss)
	case MethodVolAdjusted:
		base = s.volAdjusted(returns)
	default:
		base = s.cfg.MaxPositionSize / 4
	}

	if s.cfg.ConfidenceScale {
		base *= confidence
	}
	if s.cfg.VolatilityScale {
		base *= volRegimeFactor(returns)
	}
	return clamp(base, s.cfg.MinPositionSize, s.cfg.MaxPositionSize)
}

// kelly estimates f = (bp - q)/b from a trailing returns window, scaled by a
// conservative factor and the signal confidence. Fails open to the minimum
// size on a thin sample or a degenerate win/loss profile.
func (s *Sizer) kelly(returns []float64, confidence float64) float64 {
	if len(returns) < kellyMinSamples {
		return s.cfg.MinPositionSize
	}
	window := tail(returns, s.cfg.KellyLookback)

	var wins, losses []float64
	for _, r := range window {
		if r > 0 {
			wins = append(wins, r)
		} else if r < 0 {
			losses = append(losses, r)
		}
	}
	if len(wins) == 0 || len(losses) == 0 {
		return s.cfg.MinPositionSize
	}

	avgWin := mean(wins)
	avgLoss := math.Abs(mean(losses))
	if avgLoss == 0 {
		return s.cfg.MinPositionSize
	}

	b := avgWin / avgLoss
	p := float64(len(wins)) / float64(len(window)) * confidence
	q := 1 - p
	kelly := (b*p - q) / b

	return clamp(kelly*kellyScaling, 0.01, 0.25)
}

// fixedRisk sizes so a stop-out loses at most MaxPortfolioRisk of capital.
func (s *Sizer) fixedRisk(price, stopLoss float64) float64 {
	if price <= 0 || stopLoss <= 0 {
		return s.cfg.MinPositionSize
	}
	riskFrac := math.Abs(price-stopLoss) / price
	if riskFrac == 0 {
		return s.cfg.MinPositionSize
	}
	return clamp(s.cfg.MaxPortfolioRisk/riskFrac, 0.01, 0.25)
}

// volAdjusted shrinks size as trailing annualized volatility rises above a
// 20% baseline.
func (s *Sizer) volAdjusted(returns []float64) float64 {
	if len(returns) < kellyMinSamples {
		return s.cfg.MinPositionSize
	}
	window := tail(returns, s.cfg.VolLookback)
	vol := stddev(window) * math.Sqrt(periodsPerYear)
	ratio := baselineAnnualVol / math.Max(vol, 0.05)
	return clamp(s.cfg.MaxPositionSize/4*ratio, 0.01, 0.25)
}

// volRegimeFactor compares short- and long-horizon volatility; calm regimes
// relative to history allow modestly larger positions. Clamped to [0.5, 1.5].
func volRegimeFactor(returns []float64) float64 {
	if len(returns) < kellyMinSamples {
		return 1.0
	}
	shortVol := stddev(tail(returns, volRegimeShortLook)) * math.Sqrt(periodsPerYear)
	longVol := stddev(tail(returns, volRegimeLongLook)) * math.Sqrt(periodsPerYear)
	if longVol == 0 || shortVol == 0 {
		return 1.0
	}
	return clamp(longVol/shortVol, 0.5, 1.5)
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
