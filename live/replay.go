package live

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/optiontrader/market"
)

// Replay is a market.Provider over a recorded bar series. The engine
// advances it one bar per tick, which lets the paper loop run against
// history at any speed.
type Replay struct {
	mu         sync.Mutex
	underlying string
	bars       []market.Bar
	i          int
	surface    market.SyntheticSurface
}

// NewReplay takes ownership of bars and fills missing premiums.
func NewReplay(underlying string, bars []market.Bar, surface market.SyntheticSurface) *Replay {
	surface.Fill(bars)
	return &Replay{underlying: strings.ToUpper(underlying), bars: bars, surface: surface}
}

// Advance moves to the next bar. It returns false once the series is
// exhausted.
func (r *Replay) Advance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i+1 >= len(r.bars) {
		return false
	}
	r.i++
	return true
}

// Now is the time of the current bar.
func (r *Replay) Now() time.Time {
	bar, ok := r.current()
	if !ok {
		return time.Time{}
	}
	return bar.Time
}

func (r *Replay) current() (market.Bar, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bars) == 0 {
		return market.Bar{}, false
	}
	return r.bars[r.i], true
}

func (r *Replay) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bar, ok := r.current()
	if !ok {
		return 0, fmt.Errorf("current price %q: %w", symbol, market.ErrDataUnavailable)
	}
	if strings.EqualFold(symbol, r.underlying) {
		return bar.Close, nil
	}
	under, strike, typ, ok := market.ParseOptionSymbol(symbol)
	if !ok || under != r.underlying {
		return 0, fmt.Errorf("current price %q: %w", symbol, market.ErrDataUnavailable)
	}
	if strike == bar.ATMStrike {
		return bar.Premium(typ), nil
	}
	s := r.surface
	if bar.VIX > 0 {
		s.Volatility = bar.VIX / 100
	}
	return s.Price(typ, bar.Close, strike), nil
}

func (r *Replay) HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(symbol, r.underlying) {
		return nil, fmt.Errorf("history %q: %w", symbol, market.ErrDataUnavailable)
	}
	r.mu.Lock()
	bars := market.FilterRange(r.bars, start, end)
	r.mu.Unlock()
	if len(bars) == 0 {
		return nil, fmt.Errorf("history %q: %w", symbol, market.ErrDataUnavailable)
	}
	return bars, nil
}

func (r *Replay) Instrument(ctx context.Context, symbol string) (market.Instrument, error) {
	if inst, ok := market.Underlyings[strings.ToUpper(symbol)]; ok {
		return inst, nil
	}
	return market.Instrument{}, fmt.Errorf("instrument %q: %w", symbol, market.ErrDataUnavailable)
}
