package backtest

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rustyeddy/optiontrader/market"
)

// Config drives one run. Percentages are in percent (1.0 = 1%) and zero
// disables the corresponding gate.
type Config struct {
	Underlying string  `json:"underlying" yaml:"underlying"`
	Capital    float64 `json:"capital" yaml:"capital"`

	EntryTime string `json:"entry_time" yaml:"entry_time"` // "09:15"
	ExitTime  string `json:"exit_time" yaml:"exit_time"`   // "15:30"

	StopLossPct        float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TargetPct          float64 `json:"target_pct" yaml:"target_pct"`
	PortfolioStopPct   float64 `json:"portfolio_stop_pct" yaml:"portfolio_stop_pct"`
	PortfolioTargetPct float64 `json:"portfolio_target_pct" yaml:"portfolio_target_pct"`
	RiskPerTradePct    float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`

	LotSize         int     `json:"lot_size" yaml:"lot_size"`
	StrikeStep      float64 `json:"strike_step" yaml:"strike_step"`
	StrikeSelection string  `json:"strike_selection" yaml:"strike_selection"`
	StrikeOffset    int     `json:"strike_offset" yaml:"strike_offset"`
	MaxPositions    int     `json:"max_positions" yaml:"max_positions"`
	SlippagePct     float64 `json:"slippage_pct" yaml:"slippage_pct"`

	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	WarmupBars int       `json:"warmup_bars" yaml:"warmup_bars"`

	Location *time.Location `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Underlying:      "NIFTY",
		Capital:         100000,
		EntryTime:       market.SessionOpen,
		ExitTime:        market.SessionClose,
		RiskPerTradePct: 1,
		LotSize:         75,
		StrikeStep:      50,
		StrikeSelection: market.ATM,
		StrikeOffset:    1,
		MaxPositions:    1,
		Location:        market.IST,
	}
}

// session is Config after defaults and parsing.
type session struct {
	Config
	entry market.Clock
	exit  market.Clock
}

// resolve fills zero values from DefaultConfig and parses the session
// times. A malformed time falls back to the session default with a
// warning; it is not an error.
func (c Config) resolve(log *slog.Logger) (session, error) {
	def := DefaultConfig()
	if c.Underlying == "" {
		c.Underlying = def.Underlying
	}
	c.Underlying = strings.ToUpper(c.Underlying)
	if c.Capital <= 0 {
		return session{}, fmt.Errorf("backtest: capital must be positive, got %v", c.Capital)
	}
	if c.LotSize <= 0 {
		c.LotSize = def.LotSize
		if inst, ok := market.Underlyings[c.Underlying]; ok {
			c.LotSize = inst.LotSize
		}
	}
	if c.StrikeStep <= 0 {
		c.StrikeStep = def.StrikeStep
		if inst, ok := market.Underlyings[c.Underlying]; ok {
			c.StrikeStep = inst.StrikeStep
		}
	}
	c.StrikeSelection = strings.ToUpper(strings.TrimSpace(c.StrikeSelection))
	switch c.StrikeSelection {
	case "":
		c.StrikeSelection = market.ATM
	case market.ATM, market.ITM, market.OTM:
	default:
		return session{}, fmt.Errorf("backtest: unknown strike selection %q (ATM, ITM, OTM)", c.StrikeSelection)
	}
	if c.StrikeOffset <= 0 {
		c.StrikeOffset = 1
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 1
	}
	if c.Location == nil {
		c.Location = def.Location
	}
	if !c.Start.IsZero() && !c.End.IsZero() && !c.End.After(c.Start) {
		return session{}, fmt.Errorf("backtest: end %s is not after start %s",
			c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}

	s := session{Config: c}
	s.entry = parseClockOr(c.EntryTime, market.SessionOpen, "entry_time", log)
	s.exit = parseClockOr(c.ExitTime, market.SessionClose, "exit_time", log)
	return s, nil
}

func parseClockOr(v, def, field string, log *slog.Logger) market.Clock {
	if strings.TrimSpace(v) != "" {
		c, err := market.ParseClock(v)
		if err == nil {
			return c
		}
		log.Warn("malformed session time, using default", "field", field, "value", v, "default", def)
	}
	c, _ := market.ParseClock(def)
	return c
}
