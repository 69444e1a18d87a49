package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/monitor"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/state"
	"github.com/rustyeddy/optiontrader/strategy"
)

var open = time.Date(2025, 1, 6, 9, 15, 0, 0, market.IST)

func replayBars(start time.Time, calls ...float64) []market.Bar {
	out := make([]market.Bar, len(calls))
	for i, c := range calls {
		out[i] = market.Bar{
			Time:      start.Add(time.Duration(i) * time.Minute),
			Close:     22000,
			ATMStrike: 22000,
			CallPrice: c,
			PutPrice:  100,
		}
	}
	return out
}

type rig struct {
	engine *Engine
	replay *Replay
	ledger *state.Manager
	risk   *risk.Manager
}

func newRig(t *testing.T, strat strategy.Strategy, bars []market.Bar, mutate func(*Config)) rig {
	t.Helper()
	ledger := state.NewManager(state.NewMemoryStore(), logger.Discard())
	rm := risk.NewManager(risk.DefaultConfig(), &risk.FixedLot{Lots: 1, LotSize: 75}, logger.Discard())
	replay := NewReplay("NIFTY", bars, market.DefaultSurface())
	paper := broker.NewPaper(ledger, rm,
		broker.WithSlippage(0),
		broker.WithClock(replay.Now),
		broker.WithLogger(logger.Discard()))

	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, strat, replay, rm, paper, nil, logger.Discard())
	require.NoError(t, err)
	return rig{engine: e, replay: replay, ledger: ledger, risk: rm}
}

func TestEngine_SignalToTarget(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(open, 100, 110, 150), nil)
	ctx := context.Background()

	require.NoError(t, r.engine.Step(ctx))
	pos, ok := r.ledger.Position("NIFTY 22000 CE")
	require.True(t, ok)
	assert.Equal(t, 75, pos.Quantity)
	assert.InDelta(t, 80.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 150.0, pos.Target, 1e-9)

	require.True(t, r.replay.Advance())
	require.NoError(t, r.engine.Step(ctx))
	_, ok = r.ledger.Position("NIFTY 22000 CE")
	assert.True(t, ok, "110 breaches nothing")

	require.True(t, r.replay.Advance())
	require.NoError(t, r.engine.Step(ctx))
	snap := r.ledger.Snapshot()
	assert.Empty(t, snap.OpenPositions)
	require.Len(t, snap.ClosedTrades, 1)
	assert.Equal(t, monitor.ReasonTarget, snap.ClosedTrades[0].ExitReason)
	assert.Equal(t, 150.0, snap.ClosedTrades[0].ExitPrice)
	assert.InDelta(t, snap.DailyPnL, r.risk.Snapshot().DailyPnL, 1e-9)
}

func TestEngine_RunStopsWhenReplayEnds(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(open, 100, 110, 150, 120), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, r.engine.Run(ctx))
	assert.Len(t, r.ledger.Snapshot().ClosedTrades, 1)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.Noop{}, replayBars(open, 100, 100, 100), func(c *Config) { c.Interval = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.engine.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, err == nil || err == context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_TimeExit(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 6, 15, 29, 0, 0, market.IST)
	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(start, 100, 101), nil)
	ctx := context.Background()

	require.NoError(t, r.engine.Step(ctx))
	require.Len(t, r.ledger.Snapshot().OpenPositions, 1)

	require.True(t, r.replay.Advance())
	require.NoError(t, r.engine.Step(ctx))
	snap := r.ledger.Snapshot()
	assert.Empty(t, snap.OpenPositions)
	require.Len(t, snap.ClosedTrades, 1)
	assert.Equal(t, ReasonTimeExit, snap.ClosedTrades[0].ExitReason)
}

func TestEngine_KillSwitchBlocksEntries(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(open, 100), nil)
	r.risk.UpdatePnL(-6000)

	require.NoError(t, r.engine.Step(context.Background()))
	assert.Empty(t, r.ledger.Snapshot().OpenPositions)
	assert.Empty(t, r.ledger.Snapshot().Orders)
}

func TestEngine_RiskRejectsPoorRewardRisk(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(open, 100), func(c *Config) {
		c.StopLossPct = 20
		c.TargetPct = 20
	})
	require.NoError(t, r.engine.Step(context.Background()))
	assert.Empty(t, r.ledger.Snapshot().Orders)
}

func TestEngine_BeforeEntryTime(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), replayBars(open, 100), func(c *Config) { c.EntryTime = "10:00" })
	require.NoError(t, r.engine.Step(context.Background()))
	assert.Empty(t, r.ledger.Snapshot().Orders)
}

func TestEngine_NoQuoteSkipsTick(t *testing.T) {
	t.Parallel()

	r := newRig(t, strategy.SignalAt(0, market.Buy), nil, nil)
	require.NoError(t, r.engine.Step(context.Background()))
	assert.Empty(t, r.ledger.Snapshot().Orders)
}

func TestEngine_TimerStrategyExit(t *testing.T) {
	t.Parallel()

	timer := strategy.NewTimer(3600, 120, 1)
	r := newRig(t, timer, replayBars(open, 100, 101, 102, 103), nil)
	ctx := context.Background()

	for {
		require.NoError(t, r.engine.Step(ctx))
		if !r.replay.Advance() {
			break
		}
	}
	snap := r.ledger.Snapshot()
	require.Len(t, snap.ClosedTrades, 1)
	assert.Contains(t, snap.ClosedTrades[0].ExitReason, "timer expired")
	assert.Empty(t, snap.OpenPositions)
}

func TestReplay_CurrentPrice(t *testing.T) {
	t.Parallel()

	rp := NewReplay("nifty", replayBars(open, 100), market.DefaultSurface())
	ctx := context.Background()

	px, err := rp.CurrentPrice(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 22000.0, px)

	px, err = rp.CurrentPrice(ctx, "NIFTY 22000 CE")
	require.NoError(t, err)
	assert.Equal(t, 100.0, px)

	px, err = rp.CurrentPrice(ctx, "NIFTY 22100 CE")
	require.NoError(t, err)
	assert.Greater(t, px, 0.0)

	_, err = rp.CurrentPrice(ctx, "BANKNIFTY 48000 CE")
	assert.ErrorIs(t, err, market.ErrDataUnavailable)

	assert.False(t, rp.Advance())
	assert.Equal(t, open, rp.Now())
}
