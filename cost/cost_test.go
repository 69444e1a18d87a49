package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/optiontrader/market"
)

func TestBreakdown_SideAsymmetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		price float64
		qty   int
	}{
		{100, 50},
		{0.05, 25},
		{245.35, 1800},
	}
	for _, c := range cases {
		buy := Leg(c.price, c.qty, market.Buy)
		sell := Leg(c.price, c.qty, market.Sell)

		assert.Greater(t, buy.StampDuty, 0.0)
		assert.Zero(t, sell.StampDuty)
		assert.Greater(t, sell.SellTax, 0.0)
		assert.Zero(t, buy.SellTax)

		// bidirectional fees are equal on both legs
		assert.Equal(t, buy.ExchangeFee, sell.ExchangeFee)
		assert.Equal(t, buy.RegulatoryFee, sell.RegulatoryFee)
		assert.Equal(t, buy.ServiceTax, sell.ServiceTax)
	}
}

func TestBreakdown_KnownValues(t *testing.T) {
	t.Parallel()

	// turnover 5000
	buy := Leg(100, 50, market.Buy)
	assert.InDelta(t, 20.0, buy.Brokerage, 1e-12)
	assert.InDelta(t, 1.7515, buy.ExchangeFee, 1e-12)
	assert.InDelta(t, 0.005, buy.RegulatoryFee, 1e-12)
	assert.InDelta(t, 0.15, buy.StampDuty, 1e-12)
	assert.InDelta(t, (20+1.7515+0.005)*0.18, buy.ServiceTax, 1e-12)
	assert.Equal(t, 25.82, buy.Total)

	sell := Leg(100, 50, market.Sell)
	assert.InDelta(t, 5.0, sell.SellTax, 1e-12)
	assert.Equal(t, 30.67, sell.Total)
}

func TestServiceTaxExcludesTurnoverTaxes(t *testing.T) {
	t.Parallel()

	s := Default
	s.SellTaxPct = 0.5 // absurd, but must not leak into service tax
	a := s.Breakdown(100, 10, market.Sell)
	b := Default.Breakdown(100, 10, market.Sell)
	assert.Equal(t, a.ServiceTax, b.ServiceTax)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	got := RoundTrip(100, 120, 50)
	want := Leg(100, 50, market.Buy).Total + Leg(120, 50, market.Sell).Total
	assert.Equal(t, want, got)
}

func TestAddAndTaxes(t *testing.T) {
	t.Parallel()

	a := Leg(100, 50, market.Buy)
	b := Leg(120, 50, market.Sell)
	sum := a.Add(b)
	assert.Equal(t, 40.0, sum.Brokerage)
	assert.InDelta(t, a.Total+b.Total, sum.Total, 1e-9)
	assert.InDelta(t, sum.Total-sum.Brokerage, sum.Taxes(), 0.01)
}

func TestRound2(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.68, Round2(2.675))
	assert.Equal(t, -1.01, Round2(-1.005))
	assert.Equal(t, 3.0, Round2(3))
}
