package strategy

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/optiontrader/market"
)

// EMACross signals on fast/slow EMA crosses of the underlying: a bull
// cross buys calls, a bear cross buys puts.
type EMACross struct {
	Fast     int
	Slow     int
	Interval time.Duration

	bars     *candles
	lastDiff float64
	haveDiff bool
}

func NewEMACross(fast, slow int) *EMACross {
	if fast <= 0 {
		fast = 9
	}
	if slow <= fast {
		slow = fast * 2
	}
	return &EMACross{Fast: fast, Slow: slow, bars: newCandles(0, slow*10)}
}

// WithInterval aggregates live ticks into candles of d before evaluating.
func (s *EMACross) WithInterval(d time.Duration) *EMACross {
	s.Interval = d
	s.bars.interval = d
	return s
}

func (s *EMACross) Name() string { return fmt.Sprintf("ema-cross(%d,%d)", s.Fast, s.Slow) }

func (s *EMACross) Seed(history []market.Bar) {
	s.bars.seed(history)
	if d, ok := s.diff(); ok {
		s.lastDiff, s.haveDiff = d, true
	}
}

func (s *EMACross) diff() (float64, bool) {
	closes := s.bars.closes
	if len(closes) <= s.Slow {
		return 0, false
	}
	fast := talib.Ema(closes, s.Fast)
	slow := talib.Ema(closes, s.Slow)
	n := len(closes) - 1
	return fast[n] - slow[n], true
}

func (s *EMACross) OnTick(t market.Tick) *Signal {
	if !s.bars.add(t) {
		return nil
	}
	d, ok := s.diff()
	if !ok {
		return nil
	}
	if !s.haveDiff {
		s.lastDiff, s.haveDiff = d, true
		return nil
	}

	bull := d > 0 && s.lastDiff <= 0
	bear := d < 0 && s.lastDiff >= 0
	s.lastDiff = d

	switch {
	case bull:
		return &Signal{Action: market.Buy, Tag: "EMA_CROSS", OptionType: market.Call, Reason: "bull cross"}
	case bear:
		return &Signal{Action: market.Sell, Tag: "EMA_CROSS", OptionType: market.Put, Reason: "bear cross"}
	}
	return nil
}
