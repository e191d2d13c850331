// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quantsim/internal/risk"
	"quantsim/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Simulation tunes the replay engine: account funding, trading frictions, and pacing.
type Simulation struct {
	Symbol           string  `yaml:"symbol"`
	DataPath         string  `yaml:"data_path"`
	InitialCapital   float64 `yaml:"initial_capital"`
	CommissionRate   float64 `yaml:"commission_rate"`
	SlippageRate     float64 `yaml:"slippage_rate"`
	PositionSize     float64 `yaml:"position_size"`
	SizingMethod     string  `yaml:"sizing_method"`
	StopLossPercent  float64 `yaml:"stop_loss_percent"`
	MinTradeQty      float64 `yaml:"min_trade_qty"`
	SpeedMultiplier  float64 `yaml:"speed_multiplier"`
	UpdateIntervalMs int     `yaml:"update_interval_ms"`
	StepMode         bool    `yaml:"step_mode"`
	TradesPath       string  `yaml:"trades_path"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string
	Params strategy.Params
}

// Backtest groups harness and walk-forward validation settings.
type Backtest struct {
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	Folds        int    `yaml:"folds"`
	MinTrades    int    `yaml:"min_trades"`
	MinTrainBars int    `yaml:"min_train_bars"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App              `yaml:"app"`
	Simulation Simulation       `yaml:"simulation"`
	Strategy   Strategy         `yaml:"strategy"`
	Sizing     risk.SizerConfig `yaml:"sizing"`
	Limits     risk.Limits      `yaml:"limits"`
	Backtest   Backtest         `yaml:"backtest"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
