package market

import "time"

// Bar is one OHLCV row of the underlying, optionally carrying the premiums
// of the at-the-money call and put at that instant.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	VIX    float64 // volatility index level, 0 if unknown

	ATMStrike float64
	CallPrice float64
	PutPrice  float64
}

// Premium returns the bar's ATM premium for the given option type.
func (b Bar) Premium(t OptionType) float64 {
	if t == Put {
		return b.PutPrice
	}
	return b.CallPrice
}

// FilterRange keeps bars with from <= Time < to. Zero bounds are open.
func FilterRange(bars []Bar, from, to time.Time) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !b.Time.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
