// Package strategy defines the signal contract consumed by the live loop
// and the backtest runner, plus a few sample strategies.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/optiontrader/market"
)

// Signal is a directional intent. BUY is bullish and SELL is bearish; both
// are executed by buying an option (CE for bullish, PE for bearish).
type Signal struct {
	Action     market.Side       `json:"action"`
	Tag        string            `json:"tag"`
	OptionType market.OptionType `json:"option_type,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Leg resolves the option type to buy for the signal.
func (s Signal) Leg() market.OptionType {
	if s.OptionType != "" {
		return s.OptionType
	}
	if s.Action == market.Sell {
		return market.Put
	}
	return market.Call
}

// Strategy is fed one tick at a time and may answer with a signal.
type Strategy interface {
	Name() string
	OnTick(tick market.Tick) *Signal
}

// Seedable strategies accept warm-up history before the first live tick.
type Seedable interface {
	Seed(history []market.Bar)
}

// Exitable strategies can ask for a position to be closed.
type Exitable interface {
	ShouldExit(symbol string, tick market.Tick) (bool, string)
}

// PositionObserver strategies are told when their positions open and close.
type PositionObserver interface {
	OnPositionOpened(symbol string, tick market.Tick)
	OnPositionClosed(symbol string)
}

// Config selects a strategy by name. Params are strategy specific.
type Config struct {
	Name   string             `json:"name" yaml:"name"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

func (c Config) param(key string, def float64) float64 {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

type factory func(Config) (Strategy, error)

var registry = map[string]factory{
	"ema-cross": func(c Config) (Strategy, error) {
		return NewEMACross(int(c.param("fast", 9)), int(c.param("slow", 21))), nil
	},
	"rsi-reversal": func(c Config) (Strategy, error) {
		return NewRSIReversal(int(c.param("period", 14)), c.param("oversold", 40), c.param("overbought", 60)), nil
	},
	"timer": func(c Config) (Strategy, error) {
		return NewTimer(c.param("entry_every_sec", 120), c.param("exit_after_sec", 240), int(c.param("max_positions", 2))), nil
	},
	"noop": func(Config) (Strategy, error) { return Noop{}, nil },
}

// New builds the strategy named in cfg.
func New(cfg Config) (Strategy, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	name = strings.ReplaceAll(name, "_", "-")
	switch name {
	case "emacross", "ema":
		name = "ema-cross"
	case "rsi":
		name = "rsi-reversal"
	case "", "none":
		name = "noop"
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", cfg.Name, strings.Join(Names(), ", "))
	}
	return f(cfg)
}

// Names lists registered strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Noop never signals.
type Noop struct{}

func (Noop) Name() string               { return "noop" }
func (Noop) OnTick(market.Tick) *Signal { return nil }
