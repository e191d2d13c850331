package main

import (
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantsim/internal/config"
	"quantsim/internal/market"
	"quantsim/internal/metrics"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	sig "quantsim/internal/signal"
	"quantsim/internal/sim"
	"quantsim/internal/strategy"
	"quantsim/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	_ = godotenv.Load() // best-effort

	configPath := flag.String("config", configPathFromEnv(), "path to config yaml")
	dataPath := flag.String("data", "", "override bar CSV path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(logLevel(cfg))

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	path := cfg.Simulation.DataPath
	if *dataPath != "" {
		path = *dataPath
	}
	series, err := market.LoadCSV(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("load bars")
	}

	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.Strategy.Params)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}

	sizer, err := risk.NewSizer(cfg.Sizing)
	if err != nil {
		log.Fatal().Err(err).Msg("build sizer")
	}
	manager := risk.NewManager(cfg.Limits)

	engine, err := sim.New(sim.Config{
		Symbol:          cfg.Simulation.Symbol,
		InitialCapital:  cfg.Simulation.InitialCapital,
		CommissionRate:  cfg.Simulation.CommissionRate,
		SlippageRate:    cfg.Simulation.SlippageRate,
		PositionSize:    cfg.Simulation.PositionSize,
		SizingMethod:    cfg.Simulation.SizingMethod,
		StopLossPercent: cfg.Simulation.StopLossPercent,
		MinTradeQty:     cfg.Simulation.MinTradeQty,
		SpeedMultiplier: cfg.Simulation.SpeedMultiplier,
		UpdateInterval:  time.Duration(cfg.Simulation.UpdateIntervalMs) * time.Millisecond,
		StepMode:        cfg.Simulation.StepMode,
	}, sizer, manager, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()

	engine.LoadSeries(series)
	engine.SetStrategy(strat)

	if cfg.Simulation.TradesPath != "" {
		recorder, err := portfolio.NewJSONLRecorder(cfg.Simulation.TradesPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open trade recorder")
		}
		defer recorder.Close()
		engine.SetRecorder(recorder)
	}

	engine.OnTrade(func(trade portfolio.Trade, s sig.Signal) {
		log.Info().
			Str("side", string(trade.Side)).
			Float64("qty", trade.Qty).
			Float64("px", trade.Price).
			Str("reason", s.Reason).
			Msg("fill")
	})
	engine.OnAlert(func(msg string) {
		log.Warn().Str("alert", msg).Msg("risk alert")
	})

	done := make(chan struct{})
	engine.OnUpdate(func(state sim.State) {
		if state.Status == sim.StatusCompleted || state.Status == sim.StatusError {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})

	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("start simulation")
	}

	interrupt := make(chan os.Signal, 1)
	ossignal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupt:
		log.Info().Msg("interrupt received")
		engine.Stop()
	case <-done:
	}

	state := engine.CurrentState()
	log.Info().
		Float64("value", state.PortfolioValue).
		Float64("return", state.TotalReturn).
		Float64("drawdown", state.Drawdown).
		Int("trades", state.TradeStats.TotalTrades).
		Float64("win_rate", state.TradeStats.WinRate).
		Msg("simulation summary")
}

func configPathFromEnv() string {
	if path := os.Getenv("QUANTSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func logLevel(cfg *config.Config) string {
	if lvl := os.Getenv("QUANTSIM_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	if cfg.App.LogLevel != "" {
		return cfg.App.LogLevel
	}
	return "info"
}
