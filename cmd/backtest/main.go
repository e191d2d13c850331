package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"quantsim/internal/backtest"
	"quantsim/internal/config"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
	"quantsim/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	_ = godotenv.Load() // best-effort

	configPath := flag.String("config", configPathFromEnv(), "path to config yaml")
	dataPath := flag.String("data", "", "override bar CSV path")
	walkforward := flag.Bool("walkforward", false, "run walk-forward validation instead of a single pass")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	path := cfg.Simulation.DataPath
	if *dataPath != "" {
		path = *dataPath
	}
	series, err := market.LoadCSV(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("load bars")
	}

	harness := backtest.NewHarness(backtest.Config{
		Symbol:          cfg.Simulation.Symbol,
		InitialCapital:  cfg.Simulation.InitialCapital,
		CommissionRate:  cfg.Simulation.CommissionRate,
		SlippageRate:    cfg.Simulation.SlippageRate,
		PositionSize:    cfg.Simulation.PositionSize,
		SizingMethod:    cfg.Simulation.SizingMethod,
		StopLossPercent: cfg.Simulation.StopLossPercent,
		MinTradeQty:     cfg.Simulation.MinTradeQty,
		Limits:          cfg.Limits,
		Sizer:           cfg.Sizing,
	}, log)

	if *walkforward {
		runWalkForward(harness, series, cfg, log)
		return
	}

	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.Strategy.Params)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}

	start, end := parseWindow(cfg)
	res, err := harness.Run(series, strat, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
	printResults(res)
}

func runWalkForward(harness *backtest.Harness, series market.Series, cfg *config.Config, log zerolog.Logger) {
	build := func() (strategy.Strategy, error) {
		return strategy.Build(cfg.Strategy.Mode, cfg.Strategy.Params)
	}
	res, err := harness.WalkForward(series, build, backtest.WalkForwardConfig{
		Folds:        cfg.Backtest.Folds,
		MinTrades:    cfg.Backtest.MinTrades,
		MinTrainBars: cfg.Backtest.MinTrainBars,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("walk-forward failed")
	}

	fmt.Println("\n--- Walk-Forward Validation ---")
	for _, fold := range res.Folds {
		status := "scored"
		if fold.Discarded {
			status = "discarded"
		}
		fmt.Printf("Fold %d: test %s .. %s | return %.2f%% | sharpe %.2f | trades %d (%s)\n",
			fold.Index,
			fold.TestStart.Format("2006-01-02"),
			fold.TestEnd.Format("2006-01-02"),
			fold.Results.TotalReturn*100,
			fold.Results.Sharpe,
			fold.Results.TotalTrades,
			status)
	}
	fmt.Printf("Scored folds:  %d/%d\n", res.Scored, len(res.Folds))
	fmt.Printf("Mean sharpe:   %.2f (std %.2f)\n", res.MeanSharpe, res.StdSharpe)
	fmt.Printf("Mean return:   %.2f%%\n", res.MeanReturn*100)
	fmt.Printf("Worst return:  %.2f%%\n", res.WorstReturn*100)
}

func parseWindow(cfg *config.Config) (time.Time, time.Time) {
	var start, end time.Time
	if cfg.Backtest.Start != "" {
		if t, err := time.Parse(time.RFC3339, cfg.Backtest.Start); err == nil {
			start = t
		}
	}
	if cfg.Backtest.End != "" {
		if t, err := time.Parse(time.RFC3339, cfg.Backtest.End); err == nil {
			end = t
		}
	}
	return start, end
}

func printResults(res backtest.Results) {
	fmt.Println("\n--- Backtest Results ---")
	fmt.Printf("Window:            %s .. %s (%d bars)\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.Bars)
	fmt.Printf("Total return:      %.2f%%\n", res.TotalReturn*100)
	fmt.Printf("Annualized return: %.2f%%\n", res.AnnualizedReturn*100)
	fmt.Printf("Volatility:        %.2f%%\n", res.Volatility*100)
	fmt.Printf("Sharpe:            %.2f\n", res.Sharpe)
	fmt.Printf("Max drawdown:      %.2f%%\n", res.MaxDrawdown*100)
	fmt.Printf("Calmar:            %.2f\n", res.Calmar)
	fmt.Printf("Trades:            %d (round trips %d)\n", res.TotalTrades, res.RoundTrips)
	fmt.Printf("Win rate:          %.2f%%\n", res.WinRate*100)
	fmt.Printf("Avg win / loss:    %.2f / %.2f\n", res.AvgWin, res.AvgLoss)
	fmt.Printf("Profit factor:     %.2f\n", res.ProfitFactor)
	fmt.Printf("VaR(95):           %.2f%%\n", res.VaR95*100)
	fmt.Printf("Expected shortfall: %.2f%%\n", res.ExpectedShortfall*100)
	fmt.Printf("Final value:       $%.2f\n", res.FinalValue)
}

func configPathFromEnv() string {
	if path := os.Getenv("QUANTSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
