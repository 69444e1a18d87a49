// Package cost models per-leg transaction charges for exchange-traded index
// options.
package cost

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/optiontrader/market"
)

// Schedule is a fee table. Percentages are fractions (0.001 = 0.1%).
type Schedule struct {
	BrokeragePerOrder float64 `json:"brokerage_per_order" yaml:"brokerage_per_order"`
	SellTaxPct        float64 `json:"sell_tax_pct" yaml:"sell_tax_pct"`
	ExchangeFeePct    float64 `json:"exchange_fee_pct" yaml:"exchange_fee_pct"`
	StampDutyPct      float64 `json:"stamp_duty_pct" yaml:"stamp_duty_pct"`
	RegulatoryFeePct  float64 `json:"regulatory_fee_pct" yaml:"regulatory_fee_pct"`
	ServiceTaxPct     float64 `json:"service_tax_pct" yaml:"service_tax_pct"`
}

// Default is the NSE options schedule.
var Default = Schedule{
	BrokeragePerOrder: 20.0,
	SellTaxPct:        0.001,
	ExchangeFeePct:    0.0003503,
	StampDutyPct:      0.00003,
	RegulatoryFeePct:  0.000001,
	ServiceTaxPct:     0.18,
}

// Breakdown itemises the charges of one leg. Components keep full
// precision; only Total is rounded.
type Breakdown struct {
	Brokerage     float64 `json:"brokerage"`
	SellTax       float64 `json:"sell_tax"`
	ExchangeFee   float64 `json:"exchange_fee"`
	StampDuty     float64 `json:"stamp_duty"`
	RegulatoryFee float64 `json:"regulatory_fee"`
	ServiceTax    float64 `json:"service_tax"`
	Total         float64 `json:"total"`
}

// Taxes is everything except brokerage.
func (b Breakdown) Taxes() float64 {
	return b.SellTax + b.ExchangeFee + b.StampDuty + b.RegulatoryFee + b.ServiceTax
}

// Add sums two legs. The total is the sum of the already rounded totals.
func (b Breakdown) Add(o Breakdown) Breakdown {
	return Breakdown{
		Brokerage:     b.Brokerage + o.Brokerage,
		SellTax:       b.SellTax + o.SellTax,
		ExchangeFee:   b.ExchangeFee + o.ExchangeFee,
		StampDuty:     b.StampDuty + o.StampDuty,
		RegulatoryFee: b.RegulatoryFee + o.RegulatoryFee,
		ServiceTax:    b.ServiceTax + o.ServiceTax,
		Total:         Round2(b.Total + o.Total),
	}
}

// Breakdown costs a single leg of qty at price on side.
func (s Schedule) Breakdown(price float64, qty int, side market.Side) Breakdown {
	turnover := price * float64(qty)

	b := Breakdown{
		Brokerage:     s.BrokeragePerOrder,
		ExchangeFee:   turnover * s.ExchangeFeePct,
		RegulatoryFee: turnover * s.RegulatoryFeePct,
	}
	switch side {
	case market.Sell:
		b.SellTax = turnover * s.SellTaxPct
	case market.Buy:
		b.StampDuty = turnover * s.StampDutyPct
	}
	// Service tax never applies to turnover taxes or stamp duty.
	b.ServiceTax = (b.Brokerage + b.ExchangeFee + b.RegulatoryFee) * s.ServiceTaxPct

	b.Total = Round2(b.Brokerage + b.SellTax + b.ExchangeFee + b.StampDuty + b.RegulatoryFee + b.ServiceTax)
	return b
}

// RoundTrip is the buy leg at entry plus the sell leg at exit.
func (s Schedule) RoundTrip(entry, exit float64, qty int) float64 {
	return s.Breakdown(entry, qty, market.Buy).Total + s.Breakdown(exit, qty, market.Sell).Total
}

// Leg costs a leg with the Default schedule.
func Leg(price float64, qty int, side market.Side) Breakdown {
	return Default.Breakdown(price, qty, side)
}

// RoundTrip with the Default schedule.
func RoundTrip(entry, exit float64, qty int) float64 {
	return Default.RoundTrip(entry, exit, qty)
}

// Round2 rounds half away from zero to two decimals using decimal
// arithmetic, so 2.675 becomes 2.68 rather than binary-float 2.67.
func Round2(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}
