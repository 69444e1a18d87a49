package state

import (
	"time"

	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/market"
)

// Order status values.
const (
	StatusComplete = "COMPLETE"
	StatusRejected = "REJECTED"
	StatusPending  = "PENDING"
)

// Trade modes.
const (
	ModePaper    = "PAPER"
	ModeBacktest = "BACKTEST"
)

// Position is one open option leg, keyed by Symbol. EntryPrice is the
// volume-weighted average of every fill that built it.
type Position struct {
	Symbol     string            `json:"symbol"`
	Token      int64             `json:"token,omitempty"`
	Side       market.Side       `json:"side"`
	Quantity   int               `json:"quantity"`
	EntryPrice float64           `json:"entry_price"`
	StopLoss   float64           `json:"stop_loss,omitempty"`
	Target     float64           `json:"target,omitempty"`
	OptionType market.OptionType `json:"option_type,omitempty"`
	Strike     float64           `json:"strike,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	OpenedAt   time.Time         `json:"opened_at"`
}

// Premium is the cash tied up in the position at its entry price.
func (p Position) Premium() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// Order records one placement attempt, rejections included.
type Order struct {
	ID            string      `json:"order_id"`
	Time          time.Time   `json:"timestamp"`
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"transaction_type"`
	Quantity      int         `json:"quantity"`
	Price         float64     `json:"price,omitempty"`
	TriggerPrice  float64     `json:"trigger_price,omitempty"`
	Type          string      `json:"order_type"`
	Status        string      `json:"status"`
	ExecutedPrice float64     `json:"executed_price,omitempty"`
	Slippage      float64     `json:"slippage,omitempty"`
	Costs         float64     `json:"costs,omitempty"`
	Tag           string      `json:"tag,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// ClosedTrade is the realized result of closing a position.
type ClosedTrade struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Side       market.Side    `json:"side"`
	Quantity   int            `json:"quantity"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  float64        `json:"exit_price"`
	NetPnL     float64        `json:"pnl"`
	PnLPct     float64        `json:"pnl_pct"`
	Charges    cost.Breakdown `json:"charges"`
	OpenedAt   time.Time      `json:"entry_time"`
	ClosedAt   time.Time      `json:"exit_time"`
	Duration   time.Duration  `json:"duration"`
	ExitReason string         `json:"exit_reason"`
	Tag        string         `json:"tag,omitempty"`
	Mode       string         `json:"mode"`
}

// DeployedStrategy is a strategy configuration the operator turned on.
type DeployedStrategy struct {
	Name       string             `json:"name"`
	Symbol     string             `json:"symbol,omitempty"`
	Params     map[string]float64 `json:"params,omitempty"`
	Enabled    bool               `json:"enabled"`
	DeployedAt time.Time          `json:"deployed_at"`
}

// TradeState is the persisted ledger. DailyPnL is the sum of NetPnL over
// ClosedTrades since the last reset.
type TradeState struct {
	DailyPnL           float64                     `json:"daily_pnl"`
	KillSwitchActive   bool                        `json:"kill_switch_active"`
	OpenPositions      map[string]Position         `json:"open_positions"`
	Orders             []Order                     `json:"orders"`
	ClosedTrades       []ClosedTrade               `json:"closed_trades"`
	DeployedStrategies map[string]DeployedStrategy `json:"deployed_strategies"`
	LastUpdated        time.Time                   `json:"last_updated"`
}

// New returns an empty ledger stamped now.
func New(now time.Time) TradeState {
	return TradeState{
		OpenPositions:      map[string]Position{},
		Orders:             []Order{},
		ClosedTrades:       []ClosedTrade{},
		DeployedStrategies: map[string]DeployedStrategy{},
		LastUpdated:        now,
	}
}

// normalize replaces nil collections so JSON output is stable.
func (s *TradeState) normalize() {
	if s.OpenPositions == nil {
		s.OpenPositions = map[string]Position{}
	}
	if s.Orders == nil {
		s.Orders = []Order{}
	}
	if s.ClosedTrades == nil {
		s.ClosedTrades = []ClosedTrade{}
	}
	if s.DeployedStrategies == nil {
		s.DeployedStrategies = map[string]DeployedStrategy{}
	}
}

// Clone deep-copies the ledger.
func (s TradeState) Clone() TradeState {
	out := s
	out.OpenPositions = make(map[string]Position, len(s.OpenPositions))
	for k, v := range s.OpenPositions {
		out.OpenPositions[k] = v
	}
	out.Orders = append([]Order{}, s.Orders...)
	out.ClosedTrades = append([]ClosedTrade{}, s.ClosedTrades...)
	out.DeployedStrategies = make(map[string]DeployedStrategy, len(s.DeployedStrategies))
	for k, v := range s.DeployedStrategies {
		if v.Params != nil {
			p := make(map[string]float64, len(v.Params))
			for pk, pv := range v.Params {
				p[pk] = pv
			}
			v.Params = p
		}
		out.DeployedStrategies[k] = v
	}
	return out
}

// ApplyClose appends t and books its NetPnL into DailyPnL. It is the only
// place the daily total moves.
func (s *TradeState) ApplyClose(t ClosedTrade) {
	s.ClosedTrades = append(s.ClosedTrades, t)
	s.DailyPnL += t.NetPnL
}

// LockedPremium sums premium held in long positions.
func (s TradeState) LockedPremium() float64 {
	var total float64
	for _, p := range s.OpenPositions {
		if p.Side == market.Buy {
			total += p.Premium()
		}
	}
	return total
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
