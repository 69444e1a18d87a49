package strategy

import (
	"time"

	"github.com/rustyeddy/optiontrader/market"
)

// candles folds ticks into fixed-interval closes. With a zero interval
// every tick is its own closed candle, which is what bar replay wants.
type candles struct {
	interval time.Duration
	max      int

	closes  []float64
	current float64
	start   time.Time
	open    bool
}

func newCandles(interval time.Duration, max int) *candles {
	return &candles{interval: interval, max: max}
}

// add returns true when a candle closed.
func (c *candles) add(t market.Tick) bool {
	if c.interval <= 0 {
		c.push(t.Price)
		return true
	}
	bucket := t.Time.Truncate(c.interval)
	if !c.open {
		c.start, c.current, c.open = bucket, t.Price, true
		return false
	}
	if bucket.After(c.start) {
		c.push(c.current)
		c.start, c.current = bucket, t.Price
		return true
	}
	c.current = t.Price
	return false
}

func (c *candles) push(v float64) {
	c.closes = append(c.closes, v)
	if c.max > 0 && len(c.closes) > c.max {
		c.closes = c.closes[len(c.closes)-c.max:]
	}
}

func (c *candles) seed(bars []market.Bar) {
	for _, b := range bars {
		c.push(b.Close)
	}
}

func (c *candles) last() float64 {
	if len(c.closes) == 0 {
		return 0
	}
	return c.closes[len(c.closes)-1]
}
