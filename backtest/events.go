package backtest

import (
	"context"

	"github.com/rustyeddy/optiontrader/market"
)

// Event types streamed by Stream.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// Event is one message of a streamed backtest. The stream ends after the
// result or error event.
type Event struct {
	Type    string  `json:"type"`
	Value   int     `json:"value,omitempty"`
	Message string  `json:"message,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// Stream runs r in a goroutine and reports progress on the returned
// channel. The channel is closed once the run is over; a receiver that
// stops early must cancel ctx.
func Stream(ctx context.Context, r Runner, bars []market.Bar) <-chan Event {
	out := make(chan Event, 8)
	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		user := r.Progress
		r.Progress = func(pct int, msg string) {
			if user != nil {
				user(pct, msg)
			}
			send(Event{Type: EventProgress, Value: pct, Message: msg})
		}
		res, err := r.Run(ctx, bars)
		if err != nil {
			send(Event{Type: EventError, Message: err.Error()})
			return
		}
		send(Event{Type: EventResult, Result: &res})
	}()
	return out
}
