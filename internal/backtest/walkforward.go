package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	"quantsim/internal/strategy"
)

// WalkForwardConfig splits a series into expanding-window folds: each fold
// trains on all bars before its test slice and is scored on the test slice
// only.
type WalkForwardConfig struct {
	Folds     int `yaml:"folds"`
	MinTrades int `yaml:"min_trades"`
	// MinTrainBars is the smallest training prefix allowed for the first fold.
	MinTrainBars int `yaml:"min_train_bars"`
}

func (c WalkForwardConfig) withDefaults() WalkForwardConfig {
	q := c
	if q.Folds == 0 {
		q.Folds = 5
	}
	if q.MinTrades == 0 {
		q.MinTrades = 3
	}
	if q.MinTrainBars == 0 {
		q.MinTrainBars = 60
	}
	return q
}

// Fold is the outcome of one out-of-sample test slice.
type Fold struct {
	Index      int
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
	Results    Results
	Discarded  bool // too few trades to score
}

// WalkForwardResults aggregates scored folds.
type WalkForwardResults struct {
	Folds       []Fold
	Scored      int
	MeanSharpe  float64
	StdSharpe   float64
	MeanReturn  float64
	WorstReturn float64
}

// WalkForward runs expanding-window validation: fold k tests on slice k while
// the strategy is rebuilt fresh for each fold, so no state leaks across
// boundaries. Folds producing fewer than MinTrades trades are kept in the
// report but excluded from the aggregate score.
func (h *Harness) WalkForward(series market.Series, build func() (strategy.Strategy, error), cfg WalkForwardConfig) (WalkForwardResults, error) {
	cfg = cfg.withDefaults()
	if build == nil {
		return WalkForwardResults{}, errors.New("backtest: strategy builder is required")
	}
	if len(series) < cfg.MinTrainBars+cfg.Folds {
		return WalkForwardResults{}, fmt.Errorf("backtest: need at least %d bars for %d folds, have %d",
			cfg.MinTrainBars+cfg.Folds, cfg.Folds, len(series))
	}

	testSpan := len(series) - cfg.MinTrainBars
	foldSize := testSpan / cfg.Folds
	if foldSize == 0 {
		return WalkForwardResults{}, errors.New("backtest: series too short to form folds")
	}

	out := WalkForwardResults{}
	var sharpes, rets []float64
	for k := 0; k < cfg.Folds; k++ {
		testFrom := cfg.MinTrainBars + k*foldSize
		testTo := testFrom + foldSize
		if k == cfg.Folds-1 {
			testTo = len(series)
		}

		strat, err := build()
		if err != nil {
			return WalkForwardResults{}, err
		}

		// The strategy sees the full expanding prefix; only the test slice
		// contributes trades and score.
		res, err := h.runSlice(series, strat, testFrom, testTo)
		if err != nil {
			return WalkForwardResults{}, fmt.Errorf("fold %d: %w", k, err)
		}

		fold := Fold{
			Index:      k,
			TrainStart: series[0].Ts,
			TrainEnd:   series[testFrom-1].Ts,
			TestStart:  series[testFrom].Ts,
			TestEnd:    series[testTo-1].Ts,
			Results:    res,
			Discarded:  res.TotalTrades < cfg.MinTrades,
		}
		out.Folds = append(out.Folds, fold)
		if fold.Discarded {
			h.log.Info().Int("fold", k).Int("trades", res.TotalTrades).Msg("fold discarded, too few trades")
			continue
		}
		sharpes = append(sharpes, res.Sharpe)
		rets = append(rets, res.TotalReturn)
	}

	out.Scored = len(sharpes)
	if out.Scored > 0 {
		out.MeanSharpe = meanFloat(sharpes)
		out.StdSharpe = sampleStd(sharpes)
		out.MeanReturn = meanFloat(rets)
		out.WorstReturn = math.Inf(1)
		for _, r := range rets {
			if r < out.WorstReturn {
				out.WorstReturn = r
			}
		}
	}
	h.log.Info().
		Int("folds", cfg.Folds).
		Int("scored", out.Scored).
		Float64("mean_sharpe", out.MeanSharpe).
		Msg("walk-forward finished")
	return out, nil
}

// runSlice replays the whole prefix through the strategy but only books
// trades and snapshots inside [testFrom, testTo), so fold scores reflect
// out-of-sample bars alone.
func (h *Harness) runSlice(series market.Series, strat strategy.Strategy, testFrom, testTo int) (Results, error) {
	ledger, err := portfolio.NewLedger(h.cfg.InitialCapital)
	if err != nil {
		return Results{}, err
	}
	sizer, err := risk.NewSizer(h.cfg.Sizer)
	if err != nil {
		return Results{}, err
	}
	manager := risk.NewManager(h.cfg.Limits)

	for i := testFrom; i < testTo; i++ {
		prefix := series[:i+1]
		bar := series[i]
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
	return h.summarize(ledger, series[testFrom:testTo]), nil
}

func meanFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
