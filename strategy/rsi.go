package strategy

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/optiontrader/market"
)

// RSIReversal buys calls when RSI is oversold and puts when overbought.
type RSIReversal struct {
	Period     int
	Oversold   float64
	Overbought float64

	bars *candles
}

func NewRSIReversal(period int, oversold, overbought float64) *RSIReversal {
	if period <= 1 {
		period = 14
	}
	return &RSIReversal{
		Period:     period,
		Oversold:   oversold,
		Overbought: overbought,
		bars:       newCandles(0, period*10),
	}
}

func (s *RSIReversal) WithInterval(d time.Duration) *RSIReversal {
	s.bars.interval = d
	return s
}

func (s *RSIReversal) Name() string { return fmt.Sprintf("rsi-reversal(%d)", s.Period) }

func (s *RSIReversal) Seed(history []market.Bar) { s.bars.seed(history) }

// RSI returns the latest value, or false while warming up.
func (s *RSIReversal) RSI() (float64, bool) {
	closes := s.bars.closes
	if len(closes) <= s.Period {
		return 0, false
	}
	series := talib.Rsi(closes, s.Period)
	return series[len(series)-1], true
}

func (s *RSIReversal) OnTick(t market.Tick) *Signal {
	if !s.bars.add(t) {
		return nil
	}
	rsi, ok := s.RSI()
	if !ok {
		return nil
	}
	switch {
	case rsi < s.Oversold:
		return &Signal{Action: market.Buy, Tag: "RSI_REVERSAL", OptionType: market.Call,
			Reason: fmt.Sprintf("rsi %.2f < %.0f", rsi, s.Oversold)}
	case rsi > s.Overbought:
		return &Signal{Action: market.Sell, Tag: "RSI_REVERSAL", OptionType: market.Put,
			Reason: fmt.Sprintf("rsi %.2f > %.0f", rsi, s.Overbought)}
	}
	return nil
}
