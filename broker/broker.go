package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/state"
)

var (
	// ErrValidation marks an order that failed pre-trade checks. It never
	// escapes PlaceOrder: callers see a REJECTED Fill instead.
	ErrValidation = errors.New("order validation failed")

	ErrPositionNotFound = errors.New("position not found")
)

// Ledger records live in state; these aliases keep broker callers from
// importing it.
type (
	Position    = state.Position
	Order       = state.Order
	ClosedTrade = state.ClosedTrade
)

type OrderType string

const (
	Market     OrderType = "MARKET"
	Limit      OrderType = "LIMIT"
	StopLimit  OrderType = "SL"
	StopMarket OrderType = "SL-M"
)

func (t OrderType) Valid() bool {
	switch t {
	case Market, Limit, StopLimit, StopMarket:
		return true
	}
	return false
}

// OrderRequest is one placement. Price is the reference LTP for MARKET
// orders and the limit for LIMIT/SL. TriggerPrice is required for SL-M.
type OrderRequest struct {
	Symbol       string
	Token        int64
	Quantity     int
	Side         market.Side
	Type         OrderType
	Price        float64
	TriggerPrice float64
	StopLoss     float64
	Target       float64
	Tag          string
	OptionType   market.OptionType
	Strike       float64

	// Time stamps the fill. Zero means the broker's clock.
	Time time.Time
}

// Fill is the broker's answer to PlaceOrder.
type Fill struct {
	OrderID      string      `json:"order_id"`
	Status       string      `json:"status"`
	Symbol       string      `json:"symbol"`
	Side         market.Side `json:"side"`
	Quantity     int         `json:"quantity"`
	AveragePrice float64     `json:"average_price"`
	Costs        float64     `json:"costs"`
	Slippage     float64     `json:"slippage"`
	Message      string      `json:"message,omitempty"`
	Time         time.Time   `json:"timestamp"`

	// Closed is set when the fill reduced or closed a position.
	Closed *ClosedTrade `json:"closed,omitempty"`
}

func (f Fill) Rejected() bool { return f.Status == state.StatusRejected }

const StatusClosed = "closed"

// CloseResult reports a ClosePosition. Status is StatusClosed, or REJECTED
// with Message set when the exit order failed validation.
type CloseResult struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Symbol    string      `json:"symbol"`
	ExitPrice float64     `json:"exit_price"`
	NetPnL    float64     `json:"net_pnl"`
	Reason    string      `json:"reason"`
	Trade     ClosedTrade `json:"trade"`
	Fill      Fill        `json:"order_details"`
}

func (r CloseResult) Closed() bool { return r.Status == StatusClosed }

// Broker executes orders against some book of positions.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error)
	ClosePosition(ctx context.Context, symbol string, price float64, reason string) (CloseResult, error)
	Positions() []Position
	// PnL is unrealized P&L at price, net of entry and exit costs.
	PnL(symbol string, price float64) float64
}

var (
	_ Broker = (*Paper)(nil)
	_ Broker = (*Backtest)(nil)
)
