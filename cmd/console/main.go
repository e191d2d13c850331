package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quantsim/internal/config"
	"quantsim/internal/market"
	"quantsim/internal/risk"
	"quantsim/internal/sim"
	"quantsim/internal/strategy"
	"quantsim/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := util.NewConsoleLogger(cfg.App.LogLevel)
	engine, err := buildEngine(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	for {
		fmt.Println("\n=== QuantSim Control ===")
		fmt.Println("1) Show simulation state")
		fmt.Println("2) Start / resume")
		fmt.Println("3) Pause")
		fmt.Println("4) Stop")
		fmt.Println("5) Step one bar")
		fmt.Println("6) Save named state")
		fmt.Println("7) Load named state")
		fmt.Println("8) Edit risk knobs")
		fmt.Println("9) Save config")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printState(engine.CurrentState())
		case "2":
			switch engine.Status() {
			case sim.StatusPaused:
				engine.Resume()
				fmt.Println("resumed")
			default:
				if err := engine.Start(); err != nil {
					fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
				} else {
					fmt.Println("started")
				}
			}
		case "3":
			engine.Pause()
			fmt.Println("paused")
		case "4":
			engine.Stop()
			fmt.Println("stopped")
		case "5":
			if engine.StepForward() {
				printState(engine.CurrentState())
			} else {
				fmt.Printf("no step taken (status %s)\n", engine.Status())
			}
		case "6":
			name := promptString(reader, "State name", "checkpoint")
			engine.SaveState(name)
			fmt.Printf("state %q saved\n", name)
		case "7":
			name := promptString(reader, "State name", "checkpoint")
			if err := engine.LoadState(name); err != nil {
				fmt.Fprintf(os.Stderr, "load failed: %v\n", err)
			} else {
				fmt.Printf("state %q loaded\n", name)
			}
		case "8":
			editLimits(reader, cfg)
		case "9":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func buildEngine(cfg *config.Config, log zerolog.Logger) (*sim.Engine, error) {
	series, err := market.LoadCSV(cfg.Simulation.DataPath)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.Strategy.Params)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}
	sizer, err := risk.NewSizer(cfg.Sizing)
	if err != nil {
		return nil, fmt.Errorf("build sizer: %w", err)
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
		StepMode:        true,
	}, sizer, manager, log)
	if err != nil {
		return nil, err
	}
	engine.LoadSeries(series)
	engine.SetStrategy(strat)
	return engine, nil
}

func printState(state sim.State) {
	fmt.Println("\n--- Simulation State ---")
	fmt.Printf("Status:     %s (%.1f%% through series)\n", state.Status, state.Progress*100)
	fmt.Printf("Bar time:   %s | price $%.2f\n", state.Ts.Format(time.RFC3339), state.Price)
	fmt.Printf("Value:      $%.2f (cash $%.2f)\n", state.PortfolioValue, state.Cash)
	fmt.Printf("Return:     %.2f%% | drawdown %.2f%%\n", state.TotalReturn*100, state.Drawdown*100)
	fmt.Printf("Trades:     %d | win rate %.2f%%\n", state.TradeStats.TotalTrades, state.TradeStats.WinRate*100)
	if len(state.Positions) == 0 {
		fmt.Println("Positions:  none")
		return
	}
	for _, pos := range state.Positions {
		fmt.Printf("Position:   %s qty %.6f @ $%.2f (unrealized $%.2f)\n",
			pos.Symbol, pos.Qty, pos.AvgEntry, pos.Unrealized)
	}
}

func editLimits(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk Limits ---")
	cfg.Limits.MaxPositions = int(promptFloat(reader, "Max concurrent positions", float64(cfg.Limits.MaxPositions)))
	cfg.Limits.MaxDrawdown = promptPercent(reader, "Max drawdown (%)", cfg.Limits.MaxDrawdown)
	cfg.Limits.DailyLossLimit = promptPercent(reader, "Daily loss limit (%)", cfg.Limits.DailyLossLimit)
	cfg.Limits.EmergencyStopDD = promptPercent(reader, "Emergency stop drawdown (%)", cfg.Limits.EmergencyStopDD)
	cfg.Sizing.MaxPositionSize = promptPercent(reader, "Max position size (%)", cfg.Sizing.MaxPositionSize)
	fmt.Println("limits updated (restart the engine to apply)")
}

func promptString(reader *bufio.Reader, label, fallback string) string {
	fmt.Printf("%s [%s]: ", label, fallback)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	return line
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if path := os.Getenv("QUANTSIM_CONFIG"); path != "" {
		return path
	}
	return filepath.Clean(defaultConfigPath)
}
