package strategy

import "github.com/rustyeddy/optiontrader/market"

// Scripted emits predetermined signals by tick ordinal (0-based).
type Scripted struct {
	Signals map[int]Signal
	n       int
}

// SignalAt returns a Scripted strategy that signals action once, on the
// i-th tick it sees.
func SignalAt(i int, action market.Side) *Scripted {
	return &Scripted{Signals: map[int]Signal{i: {Action: action, Tag: "SCRIPTED"}}}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) OnTick(market.Tick) *Signal {
	defer func() { s.n++ }()
	if sig, ok := s.Signals[s.n]; ok {
		return &sig
	}
	return nil
}
