package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/market"
)

var t0 = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func ticks(prices ...float64) []market.Tick {
	out := make([]market.Tick, len(prices))
	for i, p := range prices {
		out[i] = market.Tick{Symbol: "NIFTY", Price: p, Time: t0.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func collect(s Strategy, ts []market.Tick) []*Signal {
	var out []*Signal
	for _, t := range ts {
		if sig := s.OnTick(t); sig != nil {
			out = append(out, sig)
		}
	}
	return out
}

func TestSignalLeg(t *testing.T) {
	t.Parallel()

	assert.Equal(t, market.Call, Signal{Action: market.Buy}.Leg())
	assert.Equal(t, market.Put, Signal{Action: market.Sell}.Leg())
	assert.Equal(t, market.Put, Signal{Action: market.Buy, OptionType: market.Put}.Leg())
}

func TestEMACross(t *testing.T) {
	t.Parallel()

	var prices []float64
	for i := 0; i < 30; i++ {
		prices = append(prices, 100-float64(i))
	}
	for i := 0; i < 30; i++ {
		prices = append(prices, 70+float64(i)*2)
	}

	s := NewEMACross(3, 8)
	sigs := collect(s, ticks(prices...))
	require.NotEmpty(t, sigs)
	assert.Equal(t, market.Buy, sigs[0].Action, "falling then rising series crosses up")
	assert.Equal(t, market.Call, sigs[0].OptionType)
}

func TestEMACrossSeeded(t *testing.T) {
	t.Parallel()

	var hist []market.Bar
	for i := 0; i < 20; i++ {
		hist = append(hist, market.Bar{Close: 100 - float64(i)})
	}
	s := NewEMACross(3, 8)
	s.Seed(hist)

	sigs := collect(s, ticks(90, 100, 110, 120))
	require.NotEmpty(t, sigs)
	assert.Equal(t, market.Buy, sigs[0].Action)
}

func TestRSIReversal(t *testing.T) {
	t.Parallel()

	var prices []float64
	for i := 0; i < 20; i++ {
		prices = append(prices, 100+float64(i))
	}
	s := NewRSIReversal(14, 30, 70)
	sigs := collect(s, ticks(prices...))
	require.NotEmpty(t, sigs)
	assert.Equal(t, market.Sell, sigs[0].Action, "steady rally is overbought")
	assert.Equal(t, market.Put, sigs[0].Leg())

	rsi, ok := s.RSI()
	require.True(t, ok)
	assert.Greater(t, rsi, 70.0)
}

func TestCandlesAggregate(t *testing.T) {
	t.Parallel()

	c := newCandles(time.Minute, 0)
	base := t0
	assert.False(t, c.add(market.Tick{Price: 1, Time: base}))
	assert.False(t, c.add(market.Tick{Price: 2, Time: base.Add(20 * time.Second)}))
	assert.True(t, c.add(market.Tick{Price: 3, Time: base.Add(70 * time.Second)}))
	assert.Equal(t, []float64{2}, c.closes)
}

func TestTimer(t *testing.T) {
	t.Parallel()

	s := NewTimer(120, 240, 1)
	tk := market.Tick{Time: t0}

	sig := s.OnTick(tk)
	require.NotNil(t, sig)
	s.OnPositionOpened("A", tk)

	assert.Nil(t, s.OnTick(market.Tick{Time: t0.Add(3 * time.Minute)}), "max positions reached")

	exit, _ := s.ShouldExit("A", market.Tick{Time: t0.Add(3 * time.Minute)})
	assert.False(t, exit)
	exit, reason := s.ShouldExit("A", market.Tick{Time: t0.Add(4 * time.Minute)})
	assert.True(t, exit)
	assert.Contains(t, reason, "timer expired")

	s.OnPositionClosed("A")
	assert.NotNil(t, s.OnTick(market.Tick{Time: t0.Add(5 * time.Minute)}))
}

func TestScripted(t *testing.T) {
	t.Parallel()

	s := SignalAt(1, market.Buy)
	sigs := []*Signal{}
	for _, tk := range ticks(1, 2, 3) {
		sigs = append(sigs, s.OnTick(tk))
	}
	assert.Nil(t, sigs[0])
	require.NotNil(t, sigs[1])
	assert.Equal(t, market.Buy, sigs[1].Action)
	assert.Nil(t, sigs[2])
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ema-cross", "EMA_CROSS", "rsi", "timer", "noop", ""} {
		s, err := New(Config{Name: name})
		require.NoError(t, err, name)
		assert.NotEmpty(t, s.Name())
	}
	_, err := New(Config{Name: "gamma-snap"})
	require.Error(t, err)

	s, err := New(Config{Name: "ema-cross", Params: map[string]float64{"fast": 5, "slow": 13}})
	require.NoError(t, err)
	assert.Equal(t, "ema-cross(5,13)", s.Name())
}

func TestTraits(t *testing.T) {
	t.Parallel()

	var s Strategy = NewTimer(1, 1, 1)
	_, isExitable := s.(Exitable)
	_, isObserver := s.(PositionObserver)
	_, isSeedable := s.(Seedable)
	assert.True(t, isExitable)
	assert.True(t, isObserver)
	assert.False(t, isSeedable)
	_, isSeedable = Strategy(NewRSIReversal(14, 30, 70)).(Seedable)
	assert.True(t, isSeedable)
}
