package market

import (
	"sync"
	"time"
)

// Tick is one live quote for an instrument.
type Tick struct {
	InstrumentID     int64
	Symbol           string
	Price            float64
	Volume           float64
	CumulativeVolume float64
	Time             time.Time
}

// PriceBook holds the latest price per symbol and per instrument token.
type PriceBook struct {
	mu       sync.RWMutex
	bySymbol map[string]float64
	byToken  map[int64]float64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{
		bySymbol: make(map[string]float64),
		byToken:  make(map[int64]float64),
	}
}

// Set records a price. Either key may be empty/zero.
func (b *PriceBook) Set(symbol string, token int64, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if symbol != "" {
		b.bySymbol[symbol] = price
	}
	if token != 0 {
		b.byToken[token] = price
	}
}

// Price resolves by symbol first, then token. ok is false when neither is
// known or the stored price is not positive.
func (b *PriceBook) Price(symbol string, token int64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.bySymbol[symbol]; ok && p > 0 {
		return p, true
	}
	if token != 0 {
		if p, ok := b.byToken[token]; ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}
