package risk

import (
	"fmt"
	"math"
	"strings"
)

// Params carries per-call overrides for a Sizer. Nil fields fall back to the
// sizer's own configuration.
type Params struct {
	WinRate *float64
	Payoff  *float64
}

// Sizer turns a stop distance and a risk budget into a lot-rounded quantity.
type Sizer interface {
	Name() string
	Size(capital, entry, stop, capPct float64, p Params) int
}

// Kelly sizes with a dampened Kelly fraction:
//
//	f* = (p(b+1) - 1) / b
//
// scaled by Dampen (0.25 = quarter Kelly) and clamped to the cap.
type Kelly struct {
	WinRate float64
	Payoff  float64
	Dampen  float64
	LotSize int
}

func NewKelly(winRate, payoff float64, lotSize int) *Kelly {
	return &Kelly{WinRate: winRate, Payoff: payoff, Dampen: 0.25, LotSize: lotSize}
}

func (k *Kelly) Name() string { return "kelly" }

// Fraction returns the raw Kelly fraction f*, the dampened target and the
// fraction allowed after the cap.
func (k *Kelly) Fraction(capPct float64, p Params) (raw, target, allowed float64) {
	win, payoff := k.WinRate, k.Payoff
	if p.WinRate != nil {
		win = *p.WinRate
	}
	if p.Payoff != nil {
		payoff = *p.Payoff
	}
	if payoff <= 0 {
		return 0, 0, 0
	}
	dampen := k.Dampen
	if dampen <= 0 {
		dampen = 0.25
	}
	raw = (win*(payoff+1) - 1) / payoff
	target = raw * dampen
	allowed = math.Min(target, capPct)
	return raw, target, allowed
}

func (k *Kelly) Size(capital, entry, stop, capPct float64, p Params) int {
	_, _, allowed := k.Fraction(capPct, p)
	return sizeForFraction(capital, allowed, entry, stop, k.LotSize)
}

// FixedFraction risks a constant fraction of capital per trade, still
// clamped to the cap.
type FixedFraction struct {
	Fraction float64
	LotSize  int
}

func (f *FixedFraction) Name() string { return "fixed-fraction" }

func (f *FixedFraction) Size(capital, entry, stop, capPct float64, _ Params) int {
	return sizeForFraction(capital, math.Min(f.Fraction, capPct), entry, stop, f.LotSize)
}

// FixedLot always trades Lots lots, unless even one lot would risk more
// than the cap allows.
type FixedLot struct {
	Lots    int
	LotSize int
}

func (f *FixedLot) Name() string { return "fixed-lot" }

func (f *FixedLot) Size(capital, entry, stop, capPct float64, _ Params) int {
	max := sizeForFraction(capital, capPct, entry, stop, f.LotSize)
	want := f.Lots * lotOrOne(f.LotSize)
	if want <= 0 || max <= 0 {
		return 0
	}
	if want > max {
		return max
	}
	return want
}

// sizeForFraction: qty = floor(capital*fraction / |entry-stop|), floored to
// whole lots. Never rounds up to a lot.
func sizeForFraction(capital, fraction, entry, stop float64, lotSize int) int {
	if fraction <= 0 || capital <= 0 {
		return 0
	}
	perUnit := math.Abs(entry - stop)
	if perUnit <= 0 {
		return 0
	}
	raw := int(math.Floor(capital * fraction / perUnit))
	return FloorToLot(raw, lotSize)
}

// FloorToLot rounds qty down to a multiple of lotSize. Anything below one
// lot is zero.
func FloorToLot(qty, lotSize int) int {
	lot := lotOrOne(lotSize)
	if qty < lot {
		return 0
	}
	return (qty / lot) * lot
}

func lotOrOne(lotSize int) int {
	if lotSize <= 0 {
		return 1
	}
	return lotSize
}

// SizerConfig selects and configures a Sizer.
type SizerConfig struct {
	Name     string  `json:"name" yaml:"name"`
	WinRate  float64 `json:"win_rate" yaml:"win_rate"`
	Payoff   float64 `json:"payoff" yaml:"payoff"`
	Dampen   float64 `json:"dampen" yaml:"dampen"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
	Lots     int     `json:"lots" yaml:"lots"`
	LotSize  int     `json:"lot_size" yaml:"lot_size"`
}

// NewSizer builds the sizer named by cfg.Name. Empty means kelly.
func NewSizer(cfg SizerConfig) (Sizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "kelly":
		k := NewKelly(cfg.WinRate, cfg.Payoff, cfg.LotSize)
		if cfg.Dampen > 0 {
			k.Dampen = cfg.Dampen
		}
		return k, nil
	case "fixed-fraction", "fixed_fraction", "fraction":
		return &FixedFraction{Fraction: cfg.Fraction, LotSize: cfg.LotSize}, nil
	case "fixed-lot", "fixed_lot", "lot":
		return &FixedLot{Lots: cfg.Lots, LotSize: cfg.LotSize}, nil
	}
	return nil, fmt.Errorf("unknown sizer %q (supported: kelly, fixed-fraction, fixed-lot)", cfg.Name)
}
