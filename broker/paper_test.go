package broker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/state"
)

func newPaper(t *testing.T, capital float64) (*Paper, *state.Manager, *risk.Manager) {
	t.Helper()
	ledger := state.NewManager(state.NewMemoryStore(), logger.Discard())
	cfg := risk.DefaultConfig()
	cfg.TotalCapital = capital
	rm := risk.NewManager(cfg, nil, logger.Discard())
	p := NewPaper(ledger, rm, WithSlippage(0), WithClock(func() time.Time { return t0 }), WithLogger(logger.Discard()))
	return p, ledger, rm
}

func buy(symbol string, qty int, price float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Quantity: qty, Side: market.Buy, Type: Market, Price: price}
}

func TestPaper_WeightedAverage(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 100000)
	ctx := context.Background()

	f, err := p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 50, 100))
	require.NoError(t, err)
	require.Equal(t, state.StatusComplete, f.Status)
	assert.Contains(t, f.OrderID, "PAPER-")

	_, err = p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 50, 120))
	require.NoError(t, err)

	pos := p.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, 100, pos[0].Quantity)
	assert.Equal(t, 110.0, pos[0].EntryPrice)
}

func TestPaper_ValidationRejects(t *testing.T) {
	t.Parallel()

	p, ledger, _ := newPaper(t, 100000)

	f, err := p.PlaceOrder(context.Background(), OrderRequest{Symbol: "NIFTY 22000 CE", Quantity: -1, Side: market.Buy, Price: 10})
	require.NoError(t, err, "validation never surfaces as an error")
	assert.True(t, f.Rejected())
	assert.Contains(t, f.Message, "quantity must be positive")

	st := ledger.Snapshot()
	require.Len(t, st.Orders, 1, "rejections are logged")
	assert.Equal(t, state.StatusRejected, st.Orders[0].Status)
	assert.NotEmpty(t, f.OrderID)
	assert.Equal(t, st.Orders[0].ID, f.OrderID)
	assert.Empty(t, st.OpenPositions)
}

func TestPaper_InsufficientCapital(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 10000)
	ctx := context.Background()

	f, err := p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 75, 100))
	require.NoError(t, err)
	require.False(t, f.Rejected())

	// 7500 of premium is now locked; another 7500 cannot be afforded.
	f, err = p.PlaceOrder(ctx, buy("NIFTY 22100 CE", 75, 100))
	require.NoError(t, err)
	assert.True(t, f.Rejected())
	assert.Contains(t, f.Message, "insufficient capital")
}

func TestPaper_CloseFeedsLedgerAndRisk(t *testing.T) {
	t.Parallel()

	p, ledger, rm := newPaper(t, 100000)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 100, 100))
	require.NoError(t, err)

	res, err := p.ClosePosition(ctx, "NIFTY 22000 CE", 120, "Target Hit")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, res.Status)

	want := 2000 - cost.RoundTrip(100, 120, 100)
	assert.InDelta(t, want, res.NetPnL, 1e-6)

	st := ledger.Snapshot()
	assert.Empty(t, st.OpenPositions)
	require.Len(t, st.ClosedTrades, 1)
	assert.Equal(t, "Target Hit", st.ClosedTrades[0].ExitReason)
	assert.Equal(t, state.ModePaper, st.ClosedTrades[0].Mode)
	assert.InDelta(t, st.DailyPnL, rm.Snapshot().DailyPnL, 1e-9, "ledger and risk stay in sync")
	assert.InDelta(t, 100000+want, rm.CurrentCapital(), 1e-6)
	assert.Len(t, st.Orders, 2)
}

func TestPaper_RoundTripIdempotent(t *testing.T) {
	t.Parallel()

	p, ledger, _ := newPaper(t, 100000)
	ctx := context.Background()

	var results []float64
	for i := 0; i < 3; i++ {
		_, err := p.PlaceOrder(ctx, buy("NIFTY 22000 PE", 75, 80))
		require.NoError(t, err)
		res, err := p.ClosePosition(ctx, "NIFTY 22000 PE", 95, "")
		require.NoError(t, err)
		results = append(results, res.NetPnL)
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[1], results[2])
	assert.InDelta(t, 3*results[0], ledger.Snapshot().DailyPnL, 1e-9)
}

func TestPaper_ShortPosition(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 100000)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "NIFTY 22000 CE", Quantity: 50, Side: market.Sell, Type: Limit, Price: 100})
	require.NoError(t, err)
	assert.Less(t, p.PnL("NIFTY 22000 CE", 120), 0.0)
	assert.Greater(t, p.PnL("NIFTY 22000 CE", 80), 0.0)

	res, err := p.ClosePosition(ctx, "NIFTY 22000 CE", 80, "Target Hit")
	require.NoError(t, err)
	assert.InDelta(t, 1000-cost.Leg(100, 50, market.Sell).Total-cost.Leg(80, 50, market.Buy).Total, res.NetPnL, 1e-9)
}

func TestPaper_CloseUnknown(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 100000)
	_, err := p.ClosePosition(context.Background(), "NOPE", 10, "")
	require.ErrorIs(t, err, ErrPositionNotFound)
	assert.Zero(t, p.PnL("NOPE", 10))
}

func TestPaper_KillSwitchPersisted(t *testing.T) {
	t.Parallel()

	p, ledger, rm := newPaper(t, 100000)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 1000, 60))
	require.NoError(t, err)
	_, err = p.ClosePosition(ctx, "NIFTY 22000 CE", 50, "Stop Loss Hit")
	require.NoError(t, err)

	assert.True(t, rm.CheckKillSwitch())
	assert.True(t, ledger.Snapshot().KillSwitchActive)
}

func TestPaper_SymbolParsing(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 100000)
	_, err := p.PlaceOrder(context.Background(), buy("NIFTY26350PE", 75, 10))
	require.NoError(t, err)

	pos := p.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, market.Put, pos[0].OptionType)
	assert.Equal(t, 26350.0, pos[0].Strike)
}

func TestPaper_CancelledContext(t *testing.T) {
	t.Parallel()

	p, _, _ := newPaper(t, 100000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.PlaceOrder(ctx, buy("NIFTY 22000 CE", 75, 10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPaper_ConcurrentFillsPersist(t *testing.T) {
	t.Parallel()

	ledger := state.NewManager(state.NewJSONStore(filepath.Join(t.TempDir(), "state.json"), logger.Discard()), logger.Discard())
	rm := risk.NewManager(risk.Config{TotalCapital: 1e7, MaxDailyLossPct: 0.05}, nil, logger.Discard())
	p := NewPaper(ledger, rm, WithLogger(logger.Discard()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.PlaceOrder(context.Background(), buy("NIFTY 22000 CE", 10, 100))
		}()
	}
	wg.Wait()

	st, err := ledger.Load()
	require.NoError(t, err)
	assert.Equal(t, 100, st.OpenPositions["NIFTY 22000 CE"].Quantity)
	assert.Len(t, st.Orders, 10)
}
