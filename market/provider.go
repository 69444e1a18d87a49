package market

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrDataUnavailable covers missing quotes, empty ranges and unknown
// instruments. Callers skip the current tick/row when they see it.
var ErrDataUnavailable = errors.New("market data unavailable")

// Provider is the market-data side of the outside world.
type Provider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error)
	Instrument(ctx context.Context, symbol string) (Instrument, error)
}

// CSVProvider serves history from <Dir>/<symbol>.csv and current prices
// from a PriceBook that something else keeps up to date.
type CSVProvider struct {
	Dir      string
	Location *time.Location
	Book     *PriceBook
}

func NewCSVProvider(dir string, book *PriceBook) *CSVProvider {
	if book == nil {
		book = NewPriceBook()
	}
	return &CSVProvider{Dir: dir, Location: time.UTC, Book: book}
}

func (p *CSVProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	px, ok := p.Book.Price(symbol, 0)
	if !ok {
		return 0, fmt.Errorf("current price %q: %w", symbol, ErrDataUnavailable)
	}
	return px, nil
}

// HistoricalBars reads the whole file and filters to [start, end). Each file
// holds a single interval, so interval is only checked for sanity.
func (p *CSVProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error) {
	if _, err := ParseInterval(interval); err != nil {
		return nil, err
	}
	path := filepath.Join(p.Dir, strings.ToUpper(symbol)+".csv")
	bars, err := LoadBarsFile(path, p.Location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("history %q: %w", symbol, ErrDataUnavailable)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars = FilterRange(bars, start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("history %q %s..%s: %w", symbol,
			start.Format(time.DateOnly), end.Format(time.DateOnly), ErrDataUnavailable)
	}
	return bars, nil
}

func (p *CSVProvider) Instrument(ctx context.Context, symbol string) (Instrument, error) {
	if inst, ok := Underlyings[strings.ToUpper(symbol)]; ok {
		return inst, nil
	}
	under, strike, typ, ok := ParseOptionSymbol(symbol)
	if !ok {
		return Instrument{}, fmt.Errorf("instrument %q: %w", symbol, ErrDataUnavailable)
	}
	base, ok := Underlyings[under]
	if !ok {
		return Instrument{}, fmt.Errorf("instrument %q: unknown underlying: %w", symbol, ErrDataUnavailable)
	}
	base.Symbol = symbol
	base.Token = 0
	base.Strike = strike
	base.Type = typ
	return base, nil
}

// ParseInterval maps "1m", "5minute", "1h", "day" and friends to a duration.
// Empty means one minute.
func ParseInterval(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1m", "minute":
		return time.Minute, nil
	case "3m", "3minute":
		return 3 * time.Minute, nil
	case "5m", "5minute":
		return 5 * time.Minute, nil
	case "15m", "15minute":
		return 15 * time.Minute, nil
	case "30m", "30minute":
		return 30 * time.Minute, nil
	case "60m", "60minute", "1h", "hour":
		return time.Hour, nil
	case "1d", "d", "day":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown interval %q", s)
}
