package state

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/optiontrader/logger"
)

// Manager owns the in-memory ledger and syncs every mutation to its Store.
// All mutations are serialized.
type Manager struct {
	mu    sync.Mutex
	store Store
	st    TradeState
	log   *slog.Logger
}

func NewManager(store Store, log *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{store: store, st: New(time.Now()), log: logger.Or(log, "state")}
}

// Load replaces the in-memory ledger with the store's copy.
func (m *Manager) Load() (TradeState, error) {
	st, err := m.store.Load()
	if err != nil {
		return TradeState{}, err
	}
	st.normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	return m.st.Clone(), nil
}

// Snapshot returns a deep copy of the ledger.
func (m *Manager) Snapshot() TradeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone()
}

// Update runs fn against the live ledger under the lock and saves the
// result. If fn fails nothing is saved, but fn's partial edits stay in
// memory, so fn should validate before it mutates.
func (m *Manager) Update(fn func(*TradeState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(&m.st); err != nil {
		return err
	}
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := m.store.Save(m.st); err != nil {
		m.log.Error("failed to save state", "err", err)
		return err
	}
	return nil
}

func (m *Manager) AddPosition(p Position) error {
	return m.Update(func(st *TradeState) error {
		st.OpenPositions[p.Symbol] = p
		return nil
	})
}

// RemovePosition deletes the position if present. Removing an unknown
// symbol is a no-op and does not write.
func (m *Manager) RemovePosition(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.OpenPositions[symbol]; !ok {
		return nil
	}
	delete(m.st.OpenPositions, symbol)
	return m.saveLocked()
}

func (m *Manager) AddOrder(o Order) error {
	return m.Update(func(st *TradeState) error {
		st.Orders = append(st.Orders, o)
		return nil
	})
}

// RecordClose appends t and adds its NetPnL to the daily total.
func (m *Manager) RecordClose(t ClosedTrade) error {
	return m.Update(func(st *TradeState) error {
		st.ApplyClose(t)
		return nil
	})
}

func (m *Manager) SetKillSwitch(active bool) error {
	return m.Update(func(st *TradeState) error {
		st.KillSwitchActive = active
		return nil
	})
}

func (m *Manager) DeployStrategy(d DeployedStrategy) error {
	if d.Name == "" {
		return fmt.Errorf("deploy strategy: name is required")
	}
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now()
	}
	return m.Update(func(st *TradeState) error {
		st.DeployedStrategies[d.Name] = d
		return nil
	})
}

func (m *Manager) RemoveStrategy(name string) error {
	return m.Update(func(st *TradeState) error {
		delete(st.DeployedStrategies, name)
		return nil
	})
}

// DeployedStrategies lists deployed strategies sorted by name.
func (m *Manager) DeployedStrategies() []DeployedStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeployedStrategy, 0, len(m.st.DeployedStrategies))
	for _, d := range m.st.DeployedStrategies {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Position returns the open position for symbol.
func (m *Manager) Position(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.OpenPositions[symbol]
	return p, ok
}

// ActiveTokens lists the instrument tokens of open positions, sorted.
func (m *Manager) ActiveTokens() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, p := range m.st.OpenPositions {
		if p.Token != 0 {
			out = append(out, p.Token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset clears the day: P&L, kill switch, positions, orders and closed
// trades. Deployed strategies are kept.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := New(time.Now())
	fresh.DeployedStrategies = m.st.DeployedStrategies
	m.st = fresh
	m.log.Info("ledger reset")
	return m.saveLocked()
}
