package strategy

import (
	"fmt"
	"time"

	"github.com/rustyeddy/optiontrader/market"
)

// Timer opens a call every EntryEvery and asks to exit each position
// ExitAfter later, holding at most MaxPositions. It is driven by tick
// time, so it replays the same way it runs live.
type Timer struct {
	EntryEvery   time.Duration
	ExitAfter    time.Duration
	MaxPositions int

	lastEntry time.Time
	opened    map[string]time.Time
}

func NewTimer(entryEverySec, exitAfterSec float64, maxPositions int) *Timer {
	if maxPositions <= 0 {
		maxPositions = 1
	}
	return &Timer{
		EntryEvery:   time.Duration(entryEverySec * float64(time.Second)),
		ExitAfter:    time.Duration(exitAfterSec * float64(time.Second)),
		MaxPositions: maxPositions,
		opened:       map[string]time.Time{},
	}
}

func (s *Timer) Name() string { return "timer" }

func (s *Timer) OnTick(t market.Tick) *Signal {
	if len(s.opened) >= s.MaxPositions {
		return nil
	}
	if !s.lastEntry.IsZero() && t.Time.Sub(s.lastEntry) < s.EntryEvery {
		return nil
	}
	s.lastEntry = t.Time
	return &Signal{
		Action:     market.Buy,
		Tag:        "TEST_TIMER",
		OptionType: market.Call,
		Reason:     fmt.Sprintf("timer: positions %d/%d", len(s.opened), s.MaxPositions),
	}
}

func (s *Timer) OnPositionOpened(symbol string, t market.Tick) { s.opened[symbol] = t.Time }

func (s *Timer) OnPositionClosed(symbol string) { delete(s.opened, symbol) }

func (s *Timer) ShouldExit(symbol string, t market.Tick) (bool, string) {
	at, ok := s.opened[symbol]
	if !ok {
		return false, "position not tracked"
	}
	if held := t.Time.Sub(at); held >= s.ExitAfter {
		return true, fmt.Sprintf("timer expired after %s", held)
	}
	return false, ""
}
