// Package config loads the trader's YAML or JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/live"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/strategy"
)

// ErrConfiguration wraps every validation failure.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Risk     RiskConfig      `json:"risk" yaml:"risk"`
	Broker   BrokerConfig    `json:"broker" yaml:"broker"`
	Costs    cost.Schedule   `json:"costs" yaml:"costs"`
	Strategy strategy.Config `json:"strategy" yaml:"strategy"`
	Backtest backtest.Config `json:"backtest" yaml:"backtest"`
	Live     live.Config     `json:"live" yaml:"live"`
	Data     DataConfig      `json:"data" yaml:"data"`
	Journal  JournalConfig   `json:"journal" yaml:"journal"`
	Log      LogConfig       `json:"log" yaml:"log"`
	HTTP     HTTPConfig      `json:"http" yaml:"http"`
}

type RiskConfig struct {
	risk.Config `yaml:",inline"`
	Sizer       risk.SizerConfig `json:"sizer" yaml:"sizer"`
}

type BrokerConfig struct {
	// SlippagePct is a fraction: 0.001 is 0.1%.
	SlippagePct float64 `json:"slippage_pct" yaml:"slippage_pct"`
	StateFile   string  `json:"state_file" yaml:"state_file"`
}

type DataConfig struct {
	// Path is a CSV file or a directory of them.
	Path     string `json:"path" yaml:"path"`
	Interval string `json:"interval" yaml:"interval"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
	Quiet      bool   `json:"quiet,omitempty" yaml:"quiet,omitempty"`
}

// Options converts c for logger.Configure.
func (c LogConfig) Options() logger.Options {
	return logger.Options{
		Level:      c.Level,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Quiet:      c.Quiet,
	}
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

func Default() *Config {
	bt := backtest.DefaultConfig()
	lv := live.DefaultConfig()
	return &Config{
		Risk: RiskConfig{
			Config: risk.DefaultConfig(),
			Sizer:  risk.SizerConfig{Name: "kelly", WinRate: 0.5, Payoff: 2, LotSize: bt.LotSize},
		},
		Broker:   BrokerConfig{SlippagePct: 0.001, StateFile: "trade_state.json"},
		Costs:    cost.Default,
		Strategy: strategy.Config{Name: "rsi-reversal"},
		Backtest: bt,
		Live:     lv,
		Data:     DataConfig{Interval: "1m"},
		Log:      LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30},
		HTTP:     HTTPConfig{Addr: ":8000"},
	}
}

// LoadFromFile reads path over Default, so a file only needs the keys it
// changes. YAML is tried first and JSON second.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.Backtest.Location = market.IST
	cfg.Live.Location = market.IST

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks the fields the engines cannot default for themselves.
func (c *Config) Validate() error {
	if c.Risk.TotalCapital <= 0 {
		return invalid("risk.total_capital must be positive")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct >= 1 {
		return invalid("risk.max_daily_loss_pct must be between 0 and 1")
	}
	if c.Risk.MinRewardRisk < 0 {
		return invalid("risk.min_reward_risk must not be negative")
	}
	if c.Risk.HardCapPct < 0 || c.Risk.HardCapPct > 1 {
		return invalid("risk.hard_cap_pct must be between 0 and 1")
	}
	if _, err := risk.NewSizer(c.Risk.Sizer); err != nil {
		return invalid("risk.sizer: %v", err)
	}
	if c.Broker.SlippagePct < 0 || c.Broker.SlippagePct >= 1 {
		return invalid("broker.slippage_pct must be a fraction below 1")
	}
	if _, err := strategy.New(c.Strategy); err != nil {
		return invalid("strategy: %v", err)
	}
	if c.Backtest.Capital <= 0 {
		return invalid("backtest.capital must be positive")
	}
	if c.Backtest.Underlying != "" {
		if _, ok := market.Underlyings[strings.ToUpper(c.Backtest.Underlying)]; !ok {
			return invalid("unknown underlying: %s", c.Backtest.Underlying)
		}
	}
	if c.Data.Interval != "" {
		if _, err := market.ParseInterval(c.Data.Interval); err != nil {
			return invalid("data.interval: %v", err)
		}
	}
	if c.Live.Interval < 0 || (c.Live.Interval > 0 && c.Live.Interval < 10*time.Millisecond) {
		return invalid("live.interval must be at least 10ms")
	}

	switch c.Journal.Type {
	case "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return invalid("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return invalid("journal db_path required for SQLite type")
		}
	default:
		return invalid("journal.type must be 'csv' or 'sqlite'")
	}
	return nil
}
