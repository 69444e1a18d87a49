package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/state"
)

// Backtest is an in-memory broker for one replay. It never reads the wall
// clock: every fill is stamped with the request's Time. Ids are BT-1,
// BT-2, ... so two runs over the same input produce identical logs.
type Backtest struct {
	costs cost.Schedule
	slip  Slippage

	initial   float64
	cash      float64
	positions map[string]Position
	orders    []Order
	closed    []ClosedTrade
	seq       int

	brokerage float64
	taxes     float64
}

// NewBacktest starts a book with capital in cash. slippagePct is a
// fraction.
func NewBacktest(capital, slippagePct float64) *Backtest {
	return &Backtest{
		costs:     cost.Default,
		slip:      Slippage{Pct: slippagePct},
		initial:   capital,
		cash:      capital,
		positions: map[string]Position{},
	}
}

// WithCosts swaps the fee schedule. Call before the first fill.
func (b *Backtest) WithCosts(s cost.Schedule) *Backtest {
	b.costs = s
	return b
}

func (b *Backtest) nextID() string {
	b.seq++
	return "BT-" + strconv.Itoa(b.seq)
}

func (b *Backtest) PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	return b.place(req, ""), nil
}

func (b *Backtest) place(req OrderRequest, reason string) Fill {
	if req.Type == "" {
		req.Type = Market
	}
	orderID := b.nextID()
	order := orderFor(req, orderID, req.Time)

	existing, has := b.positions[req.Symbol]
	var cause error
	if errs := validate(req); len(errs) > 0 {
		cause = rejection(errs)
	}

	var (
		exec, slip float64
		leg        cost.Breakdown
		out        outcome
	)
	if cause == nil {
		exec, slip = executionPrice(req, b.slip)
		leg = b.costs.Breakdown(exec, req.Quantity, req.Side)
		out, cause = applyFill(existing, has, req, exec, req.Time, b.costs)
	}
	if cause != nil {
		order.Status = state.StatusRejected
		order.Message = cause.Error()
		b.orders = append(b.orders, order)
		return Fill{
			OrderID:  orderID,
			Status:   state.StatusRejected,
			Symbol:   req.Symbol,
			Side:     req.Side,
			Quantity: req.Quantity,
			Message:  cause.Error(),
			Time:     req.Time,
		}
	}

	b.brokerage += leg.Brokerage
	b.taxes += leg.Taxes()

	notional := exec * float64(req.Quantity)
	if req.Side == market.Buy {
		b.cash -= notional + leg.Total
	} else {
		b.cash += notional - leg.Total
	}

	if out.Position != nil {
		b.positions[req.Symbol] = *out.Position
	} else {
		delete(b.positions, req.Symbol)
	}

	order.Status = state.StatusComplete
	order.ExecutedPrice = exec
	order.Slippage = slip
	order.Costs = leg.Total
	b.orders = append(b.orders, order)

	fill := Fill{
		OrderID:      orderID,
		Status:       state.StatusComplete,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		AveragePrice: exec,
		Costs:        leg.Total,
		Slippage:     slip,
		Time:         req.Time,
	}
	if out.Closed != nil {
		ct := *out.Closed
		ct.ID = orderID
		ct.Mode = state.ModeBacktest
		ct.ExitReason = reason
		b.closed = append(b.closed, ct)
		fill.Closed = &ct
	}
	return fill
}

// ClosePosition exits the whole position. The fill carries no timestamp;
// use CloseAt during a replay.
func (b *Backtest) ClosePosition(ctx context.Context, symbol string, price float64, reason string) (CloseResult, error) {
	if err := ctx.Err(); err != nil {
		return CloseResult{}, err
	}
	return b.CloseAt(symbol, price, reason, b.lastTime())
}

// CloseAt is ClosePosition with an explicit fill time.
func (b *Backtest) CloseAt(symbol string, price float64, reason string, at time.Time) (CloseResult, error) {
	pos, ok := b.positions[symbol]
	if !ok {
		return CloseResult{}, fmt.Errorf("close position: %w: %q", ErrPositionNotFound, symbol)
	}
	fill := b.place(OrderRequest{
		Symbol:   symbol,
		Token:    pos.Token,
		Quantity: pos.Quantity,
		Side:     pos.Side.Opposite(),
		Type:     Market,
		Price:    price,
		Tag:      pos.Tag,
		Time:     at,
	}, reason)

	res := CloseResult{Status: StatusClosed, Symbol: symbol, Reason: reason, Fill: fill}
	if fill.Rejected() || fill.Closed == nil {
		res.Status = state.StatusRejected
		res.Message = fill.Message
		return res, nil
	}
	res.ExitPrice = fill.AveragePrice
	res.NetPnL = fill.Closed.NetPnL
	res.Trade = *fill.Closed
	return res, nil
}

func (b *Backtest) lastTime() time.Time {
	if n := len(b.orders); n > 0 {
		return b.orders[n-1].Time
	}
	return time.Time{}
}

func (b *Backtest) Positions() []Position { return sortedPositions(b.positions) }

func (b *Backtest) Position(symbol string) (Position, bool) {
	p, ok := b.positions[symbol]
	return p, ok
}

func (b *Backtest) PnL(symbol string, price float64) float64 {
	pos, ok := b.positions[symbol]
	if !ok {
		return 0
	}
	return unrealized(pos, price, b.costs)
}

// Cash is settled cash: premium and costs are debited on buys and
// proceeds less costs credited on sells.
func (b *Backtest) Cash() float64 { return b.cash }

func (b *Backtest) InitialCapital() float64 { return b.initial }

// RealizedPnL sums NetPnL over closed trades.
func (b *Backtest) RealizedPnL() float64 {
	var total float64
	for _, ct := range b.closed {
		total += ct.NetPnL
	}
	return total
}

// Equity marks every open position at marks[symbol] (entry price when
// missing) on top of cash.
func (b *Backtest) Equity(marks map[string]float64) float64 {
	eq := b.cash
	for _, p := range sortedPositions(b.positions) {
		px, ok := marks[p.Symbol]
		if !ok || px <= 0 {
			px = p.EntryPrice
		}
		v := px * float64(p.Quantity)
		if p.Side == market.Sell {
			v = -v
		}
		eq += v
	}
	return eq
}

func (b *Backtest) Orders() []Order { return append([]Order{}, b.orders...) }

func (b *Backtest) ClosedTrades() []ClosedTrade { return append([]ClosedTrade{}, b.closed...) }

// TotalBrokerage and TotalTaxes split every leg's costs; their sum is the
// total paid.
func (b *Backtest) TotalBrokerage() float64 { return b.brokerage }

func (b *Backtest) TotalTaxes() float64 { return b.taxes }
