package market

import "math"

// BlackScholes prices a European option. t is years to expiry, r the
// risk-free rate and sigma the annualised volatility.
func BlackScholes(typ OptionType, spot, strike, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return intrinsic(typ, spot, strike)
	}
	sq := sigma * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+sigma*sigma/2)*t) / sq
	d2 := d1 - sq
	disc := strike * math.Exp(-r*t)
	if typ == Put {
		return disc*normCDF(-d2) - spot*normCDF(-d1)
	}
	return spot*normCDF(d1) - disc*normCDF(d2)
}

func intrinsic(typ OptionType, spot, strike float64) float64 {
	if typ == Put {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// RoundStrike rounds spot to the nearest multiple of step.
func RoundStrike(spot, step float64) float64 {
	if step <= 0 {
		return spot
	}
	return math.Round(spot/step) * step
}

// SyntheticSurface fills ATMStrike, CallPrice and PutPrice on bars that do
// not carry them, pricing the ATM strike with Black-Scholes.
type SyntheticSurface struct {
	StrikeStep   float64 // 50 for NIFTY
	DaysToExpiry float64 // 4
	Rate         float64 // 0.10
	Volatility   float64 // 0.20, i.e. VIX 20
}

func DefaultSurface() SyntheticSurface {
	return SyntheticSurface{StrikeStep: 50, DaysToExpiry: 4, Rate: 0.10, Volatility: 0.20}
}

// Price returns the premium of the given strike at spot.
func (s SyntheticSurface) Price(typ OptionType, spot, strike float64) float64 {
	return s.priceWithVol(typ, spot, strike, s.Volatility)
}

func (s SyntheticSurface) priceWithVol(typ OptionType, spot, strike, sigma float64) float64 {
	return BlackScholes(typ, spot, strike, s.DaysToExpiry/365.0, s.Rate, sigma)
}

// Fill prices missing premiums. A bar's VIX, when present, overrides the
// surface volatility (VIX/100).
func (s SyntheticSurface) Fill(bars []Bar) {
	for i := range bars {
		b := &bars[i]
		sigma := s.Volatility
		if b.VIX > 0 {
			sigma = b.VIX / 100
		}
		if b.ATMStrike == 0 {
			b.ATMStrike = RoundStrike(b.Close, s.StrikeStep)
		}
		if b.CallPrice == 0 {
			b.CallPrice = s.priceWithVol(Call, b.Close, b.ATMStrike, sigma)
		}
		if b.PutPrice == 0 {
			b.PutPrice = s.priceWithVol(Put, b.Close, b.ATMStrike, sigma)
		}
	}
}
