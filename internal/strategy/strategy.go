// Package strategy contains trading signal generation logic evaluated over
// bar-series prefixes.
package strategy

import (
	"fmt"
	"strings"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
)

// Strategy defines behaviour shared by signal generators. GenerateSignals is
// a pure function of the bar prefix: no hidden state beyond construction
// parameters, and prefixes shorter than the minimum lookback yield an empty
// list rather than an error.
type Strategy interface {
	Name() string
	GenerateSignals(bars market.Series) ([]sig.Signal, error)
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	// Moving-average crossover.
	FastPeriod   int     `yaml:"fast_period"`
	SlowPeriod   int     `yaml:"slow_period"`
	MAType       string  `yaml:"ma_type"`
	MinCrossover float64 `yaml:"min_crossover_strength"`

	// RSI mean reversion.
	RSIPeriod         int     `yaml:"rsi_period"`
	Oversold          float64 `yaml:"oversold_threshold"`
	Overbought        float64 `yaml:"overbought_threshold"`
	ExtremeOversold   float64 `yaml:"extreme_oversold"`
	ExtremeOverbought float64 `yaml:"extreme_overbought"`

	// Momentum.
	LookbackPeriod    int     `yaml:"lookback_period"`
	MomentumThreshold float64 `yaml:"momentum_threshold"`

	// Ensemble.
	EnsembleMethod      string             `yaml:"ensemble_method"`
	MinConsensus        float64            `yaml:"min_consensus"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	Weights             map[string]float64 `yaml:"strategy_weights"`
}

func (p Params) withDefaults() Params {
	q := p
	if q.FastPeriod == 0 {
		q.FastPeriod = 10
	}
	if q.SlowPeriod == 0 {
		q.SlowPeriod = 30
	}
	if q.MAType == "" {
		q.MAType = "sma"
	}
	if q.RSIPeriod == 0 {
		q.RSIPeriod = 14
	}
	if q.Oversold == 0 {
		q.Oversold = 30
	}
	if q.Overbought == 0 {
		q.Overbought = 70
	}
	if q.ExtremeOversold == 0 {
		q.ExtremeOversold = 20
	}
	if q.ExtremeOverbought == 0 {
		q.ExtremeOverbought = 80
	}
	if q.LookbackPeriod == 0 {
		q.LookbackPeriod = 20
	}
	if q.MomentumThreshold == 0 {
		q.MomentumThreshold = 0.02
	}
	if q.EnsembleMethod == "" {
		q.EnsembleMethod = MethodWeighted
	}
	if q.MinConsensus == 0 {
		q.MinConsensus = 0.6
	}
	if q.ConfidenceThreshold == 0 {
		q.ConfidenceThreshold = 0.5
	}
	if q.Weights == nil {
		q.Weights = map[string]float64{
			"ma_crossover":       0.4,
			"rsi_mean_reversion": 0.3,
			"momentum":           0.3,
		}
	}
	return q
}

// Build returns a strategy implementation matching the configured mode. An
// invalid parameter relationship is a configuration error returned before any
// simulation starts.
func Build(mode string, params Params) (Strategy, error) {
	p := params.withDefaults()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "ma_crossover", "ma", "crossover":
		return NewMACrossover(p.FastPeriod, p.SlowPeriod, p.MAType, p.MinCrossover)
	case "rsi_mean_reversion", "rsi":
		return NewRSIMeanReversion(p.RSIPeriod, p.Oversold, p.Overbought, p.ExtremeOversold, p.ExtremeOverbought)
	case "momentum":
		return NewMomentum(p.LookbackPeriod, p.MomentumThreshold)
	case "", "ensemble":
		return buildEnsemble(p)
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}

func buildEnsemble(p Params) (Strategy, error) {
	ma, err := NewMACrossover(p.FastPeriod, p.SlowPeriod, p.MAType, p.MinCrossover)
	if err != nil {
		return nil, err
	}
	rsi, err := NewRSIMeanReversion(p.RSIPeriod, p.Oversold, p.Overbought, p.ExtremeOversold, p.ExtremeOverbought)
	if err != nil {
		return nil, err
	}
	mom, err := NewMomentum(p.LookbackPeriod, p.MomentumThreshold)
	if err != nil {
		return nil, err
	}
	members := []Member{
		{Strategy: ma, Weight: p.Weights["ma_crossover"]},
		{Strategy: rsi, Weight: p.Weights["rsi_mean_reversion"]},
		{Strategy: mom, Weight: p.Weights["momentum"]},
	}
	return NewEnsemble(p.EnsembleMethod, p.MinConsensus, p.ConfidenceThreshold, members)
}
