package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/market"
)

var opened = time.Date(2025, 1, 6, 3, 45, 0, 0, time.UTC)

func trade(id string, closedAfter time.Duration, pnl float64) broker.ClosedTrade {
	return broker.ClosedTrade{
		ID:         id,
		Symbol:     "NIFTY 22000 CE",
		Side:       market.Buy,
		Quantity:   75,
		EntryPrice: 100,
		ExitPrice:  130,
		NetPnL:     pnl,
		PnLPct:     pnl / 7500 * 100,
		Charges:    cost.Breakdown{Brokerage: 40, Total: 52.5},
		OpenedAt:   opened,
		ClosedAt:   opened.Add(closedAfter),
		Duration:   closedAfter,
		ExitReason: "Target",
		Mode:       "paper",
	}
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["backtest_runs"])
}

func TestSQLiteRecordAndGetTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	rec := trade("T1", time.Hour, 2197.5)
	require.NoError(t, j.RecordTrade(rec))
	// duplicate ids are ignored
	require.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY 22000 CE", got.Symbol)
	assert.Equal(t, market.Buy, got.Side)
	assert.Equal(t, 75, got.Quantity)
	assert.InDelta(t, 2197.5, got.NetPnL, 1e-9)
	assert.InDelta(t, 52.5, got.Charges.Total, 1e-9)
	assert.Equal(t, time.Hour, got.Duration)
	assert.True(t, got.OpenedAt.Equal(opened))

	_, err = j.GetTrade(ctx, "missing")
	assert.Error(t, err)
}

func TestSQLiteListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	n, err := j.RecordTrades(ctx, []broker.ClosedTrade{
		trade("A", 30*time.Minute, 100),
		trade("B", 2*time.Hour, -50),
		trade("C", 5*time.Hour, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = j.RecordTrades(ctx, []broker.ClosedTrade{trade("A", 30*time.Minute, 100)})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := j.ListTradesClosedBetween(ctx, opened, opened.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, "B", got[1].ID)
}

func TestSQLiteRecordBacktest(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	curve := []analytics.EquityPoint{
		{Time: opened, Equity: 100000},
		{Time: opened.Add(time.Minute), Equity: 102197.5},
	}
	trades := []broker.ClosedTrade{trade("BT-1", time.Minute, 2197.5)}
	res := backtest.Result{
		Strategy:       "timer",
		Start:          opened,
		End:            opened.Add(time.Minute),
		Rows:           2,
		Report:         analytics.Compute(curve, trades, 100000),
		Trades:         trades,
		TotalBrokerage: 40,
		TotalTaxes:     12.5,
	}

	run1, err := j.RecordBacktest(ctx, res)
	require.NoError(t, err)
	run2, err := j.RecordBacktest(ctx, res)
	require.NoError(t, err)
	assert.NotEqual(t, run1, run2)

	got, err := j.ListTradesByRun(ctx, run1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, run1+"/BT-1", got[0].ID)

	eq, err := j.ListEquityByRun(ctx, run2)
	require.NoError(t, err)
	require.Len(t, eq, 2)
	assert.InDelta(t, 102197.5, eq[1].Equity, 1e-9)

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "timer", r.Strategy)
		assert.Equal(t, 1, r.Trades)
		assert.InDelta(t, 40, r.Brokerage, 1e-9)
		assert.InDelta(t, res.Report.Summary.NetProfit, r.NetProfit, 1e-9)
	}
}
