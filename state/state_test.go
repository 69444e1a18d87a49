package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestJSONStore_MissingFile(t *testing.T) {
	t.Parallel()

	s := NewJSONStore(filepath.Join(t.TempDir(), "state.json"), logger.Discard())
	st, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, st.OpenPositions)
	assert.NotNil(t, st.Orders)
}

func TestJSONStore_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewJSONStore(path, logger.Discard()).WithClock(fixedClock(now))

	st := New(now)
	st.DailyPnL = -1250.5
	st.KillSwitchActive = true
	st.OpenPositions["NIFTY 22000 CE"] = Position{
		Symbol: "NIFTY 22000 CE", Side: market.Buy, Quantity: 75, EntryPrice: 110,
	}
	require.NoError(t, s.Save(st))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file must be renamed away")

	got, err := s.Load()
	require.NoError(t, err)
	assert.InDelta(t, -1250.5, got.DailyPnL, 1e-9)
	assert.True(t, got.KillSwitchActive)
	assert.Equal(t, 75, got.OpenPositions["NIFTY 22000 CE"].Quantity)
}

func TestJSONStore_DocumentKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSONStore(path, logger.Discard())
	require.NoError(t, s.Save(New(time.Now())))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	for _, k := range []string{"daily_pnl", "kill_switch_active", "open_positions", "orders",
		"closed_trades", "deployed_strategies", "last_updated"} {
		assert.Contains(t, doc, k)
	}
}

func TestJSONStore_CorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := NewJSONStore(path, logger.Discard()).Load()
	require.NoError(t, err)
	assert.Zero(t, st.DailyPnL)
	assert.Empty(t, st.OpenPositions)
}

func TestJSONStore_NewDayResets(t *testing.T) {
	t.Parallel()

	yesterday := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	today := yesterday.Add(20 * time.Hour)
	path := filepath.Join(t.TempDir(), "state.json")

	st := New(yesterday)
	st.DailyPnL = 900
	st.KillSwitchActive = true
	st.DeployedStrategies["ema"] = DeployedStrategy{Name: "ema", Enabled: true}
	require.NoError(t, NewJSONStore(path, logger.Discard()).WithClock(fixedClock(yesterday)).Save(st))

	got, err := NewJSONStore(path, logger.Discard()).WithClock(fixedClock(today)).Load()
	require.NoError(t, err)
	assert.Zero(t, got.DailyPnL)
	assert.False(t, got.KillSwitchActive)
	assert.Contains(t, got.DeployedStrategies, "ema")

	same, err := NewJSONStore(path, logger.Discard()).WithClock(fixedClock(yesterday.Add(time.Hour))).Load()
	require.NoError(t, err)
	assert.InDelta(t, 900, same.DailyPnL, 1e-9)
}

func TestJSONStore_Clear(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSONStore(path, logger.Discard())
	require.NoError(t, s.Save(New(time.Now())))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestManager_RecordCloseKeepsDailyPnLInvariant(t *testing.T) {
	t.Parallel()

	m := NewManager(NewMemoryStore(), logger.Discard())
	for _, pnl := range []float64{120, -80.5, 40} {
		require.NoError(t, m.RecordClose(ClosedTrade{NetPnL: pnl}))
	}

	st := m.Snapshot()
	var sum float64
	for _, ct := range st.ClosedTrades {
		sum += ct.NetPnL
	}
	assert.InDelta(t, sum, st.DailyPnL, 1e-9)
	assert.InDelta(t, 79.5, st.DailyPnL, 1e-9)
}

func TestManager_PositionsAndOrders(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	m := NewManager(store, logger.Discard())

	require.NoError(t, m.AddPosition(Position{Symbol: "A", Token: 9, Side: market.Buy, Quantity: 50, EntryPrice: 100}))
	require.NoError(t, m.AddPosition(Position{Symbol: "B", Token: 3, Side: market.Sell, Quantity: 25, EntryPrice: 80}))
	require.NoError(t, m.AddOrder(Order{ID: "PAPER-1", Symbol: "A", Status: StatusComplete}))

	assert.Equal(t, []int64{3, 9}, m.ActiveTokens())
	assert.InDelta(t, 5000, m.Snapshot().LockedPremium(), 1e-9, "short premium is not locked")

	require.NoError(t, m.RemovePosition("A"))
	saves := store.Saves()
	require.NoError(t, m.RemovePosition("A"))
	assert.Equal(t, saves, store.Saves(), "no-op remove must not write")

	_, ok := m.Position("A")
	assert.False(t, ok)
	assert.Len(t, m.Snapshot().Orders, 1)
}

func TestManager_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, logger.Discard())
	require.NoError(t, m.AddPosition(Position{Symbol: "A", Quantity: 1}))

	snap := m.Snapshot()
	snap.OpenPositions["A"] = Position{Symbol: "A", Quantity: 99}
	p, _ := m.Position("A")
	assert.Equal(t, 1, p.Quantity)
}

func TestManager_DeployAndReset(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, logger.Discard())
	require.Error(t, m.DeployStrategy(DeployedStrategy{}))
	require.NoError(t, m.DeployStrategy(DeployedStrategy{Name: "rsi", Enabled: true}))
	require.NoError(t, m.DeployStrategy(DeployedStrategy{Name: "ema", Params: map[string]float64{"fast": 9}}))
	require.NoError(t, m.RecordClose(ClosedTrade{NetPnL: -10}))
	require.NoError(t, m.SetKillSwitch(true))

	names := []string{}
	for _, d := range m.DeployedStrategies() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ema", "rsi"}, names)

	require.NoError(t, m.Reset())
	st := m.Snapshot()
	assert.Zero(t, st.DailyPnL)
	assert.False(t, st.KillSwitchActive)
	assert.Empty(t, st.ClosedTrades)
	assert.Len(t, st.DeployedStrategies, 2)

	require.NoError(t, m.RemoveStrategy("rsi"))
	assert.Len(t, m.DeployedStrategies(), 1)
}

func TestManager_ConcurrentMutations(t *testing.T) {
	t.Parallel()

	m := NewManager(NewJSONStore(filepath.Join(t.TempDir(), "s.json"), logger.Discard()), logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RecordClose(ClosedTrade{NetPnL: 1})
		}()
	}
	wg.Wait()

	st, err := m.Load()
	require.NoError(t, err)
	assert.Len(t, st.ClosedTrades, 20)
	assert.InDelta(t, 20, st.DailyPnL, 1e-9)
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Save(TradeState) error { return ErrPersistence }

func TestManager_SaveFailureIsReturned(t *testing.T) {
	t.Parallel()

	m := NewManager(&failingStore{}, logger.Discard())
	err := m.AddOrder(Order{ID: "x"})
	require.ErrorIs(t, err, ErrPersistence)
}
