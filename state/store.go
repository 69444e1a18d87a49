package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rustyeddy/optiontrader/logger"
)

// ErrPersistence wraps every failure to write the ledger.
var ErrPersistence = errors.New("state persistence failed")

// Store persists a TradeState.
type Store interface {
	Load() (TradeState, error)
	Save(TradeState) error
	Clear() error
}

// JSONStore keeps the ledger in one JSON file. Writes go to a temp file
// that is renamed over the target, so a reader sees the old or the new
// document and never a torn one.
type JSONStore struct {
	Path string

	now func() time.Time
	log *slog.Logger
}

func NewJSONStore(path string, log *slog.Logger) *JSONStore {
	return &JSONStore{Path: path, now: time.Now, log: logger.Or(log, "state")}
}

// WithClock overrides the wall clock used for day rollover.
func (s *JSONStore) WithClock(now func() time.Time) *JSONStore {
	s.now = now
	return s
}

// Load reads the ledger. A missing file gives a fresh ledger. A corrupt
// file is logged and also gives a fresh ledger. A ledger last written
// before today is replaced by a fresh one that keeps only the deployed
// strategies.
func (s *JSONStore) Load() (TradeState, error) {
	now := s.now()
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return New(now), nil
	}
	if err != nil {
		s.log.Error("error loading state, starting fresh", "path", s.Path, "err", err)
		return New(now), nil
	}

	var st TradeState
	if err := json.Unmarshal(b, &st); err != nil {
		s.log.Error("state file corrupted, starting with fresh state", "path", s.Path, "err", err)
		return New(now), nil
	}
	st.normalize()

	if !st.LastUpdated.IsZero() && !sameDay(now, st.LastUpdated) && st.LastUpdated.Before(now) {
		s.log.Info("new day detected, resetting daily state", "last_updated", st.LastUpdated)
		fresh := New(now)
		fresh.DeployedStrategies = st.DeployedStrategies
		return fresh, nil
	}
	return st, nil
}

// Save stamps LastUpdated and writes atomically.
func (s *JSONStore) Save(st TradeState) error {
	st.LastUpdated = s.now()
	st.normalize()

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrPersistence, err)
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, s.Path, err)
	}
	return nil
}

func (s *JSONStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// MemoryStore is a Store for tests and backtests.
type MemoryStore struct {
	mu    sync.Mutex
	st    *TradeState
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (TradeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return New(time.Now()), nil
	}
	return m.st.Clone(), nil
}

func (m *MemoryStore) Save(st TradeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.LastUpdated = time.Now()
	c := st.Clone()
	m.st = &c
	m.saves++
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = nil
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
