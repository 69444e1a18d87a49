package broker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/state"
)

// Slippage moves MARKET fills against the trader by Pct (a fraction, so
// 0.0005 is five basis points).
type Slippage struct {
	Pct float64
}

// Apply returns the executed price and the per-unit slippage.
func (s Slippage) Apply(price float64, side market.Side) (float64, float64) {
	if s.Pct <= 0 {
		return price, 0
	}
	slip := price * s.Pct
	if side == market.Sell {
		return price - slip, slip
	}
	return price + slip, slip
}

// executionPrice picks the fill price for req's order type.
func executionPrice(req OrderRequest, slip Slippage) (price, slippage float64) {
	switch req.Type {
	case StopMarket:
		return req.TriggerPrice, 0
	case Limit, StopLimit:
		return req.Price, 0
	default:
		return slip.Apply(req.Price, req.Side)
	}
}

// validate returns every problem with req. An empty result means the
// request may be filled.
func validate(req OrderRequest) []string {
	var errs []string
	if req.Quantity <= 0 {
		errs = append(errs, "quantity must be positive")
	}
	if len(strings.TrimSpace(req.Symbol)) < 3 {
		errs = append(errs, "invalid symbol")
	}
	if !req.Side.Valid() {
		errs = append(errs, "side must be BUY or SELL")
	}
	if !req.Type.Valid() {
		errs = append(errs, fmt.Sprintf("invalid order type %q", req.Type))
	}
	switch req.Type {
	case Market, Limit, StopLimit:
		if req.Price <= 0 {
			errs = append(errs, fmt.Sprintf("%s order requires valid price", req.Type))
		}
	case StopMarket:
		if req.TriggerPrice <= 0 {
			errs = append(errs, "SL-M order requires valid trigger price")
		}
	}
	return errs
}

func rejection(errs []string) error {
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
}

// outcome is what a fill does to one symbol's position.
type outcome struct {
	// Position is the position after the fill. Nil when fully closed.
	Position *Position
	Closed   *ClosedTrade
}

// applyFill folds a fill of req at exec into the existing position. A
// same-side fill opens or averages; an opposite-side fill reduces and
// realizes P&L on the reduced quantity.
func applyFill(existing Position, has bool, req OrderRequest, exec float64, at time.Time, sched cost.Schedule) (outcome, error) {
	if !has {
		p := Position{
			Symbol:     req.Symbol,
			Token:      req.Token,
			Side:       req.Side,
			Quantity:   req.Quantity,
			EntryPrice: exec,
			StopLoss:   req.StopLoss,
			Target:     req.Target,
			OptionType: req.OptionType,
			Strike:     req.Strike,
			Tag:        req.Tag,
			OpenedAt:   at,
		}
		if p.OptionType == "" {
			if _, k, typ, ok := market.ParseOptionSymbol(req.Symbol); ok {
				p.OptionType, p.Strike = typ, k
			}
		}
		return outcome{Position: &p}, nil
	}

	if existing.Side == req.Side {
		p := existing
		newQty := p.Quantity + req.Quantity
		p.EntryPrice = (p.EntryPrice*float64(p.Quantity) + exec*float64(req.Quantity)) / float64(newQty)
		p.Quantity = newQty
		if req.StopLoss > 0 {
			p.StopLoss = req.StopLoss
		}
		if req.Target > 0 {
			p.Target = req.Target
		}
		return outcome{Position: &p}, nil
	}

	if req.Quantity > existing.Quantity {
		return outcome{}, fmt.Errorf("%w: quantity %d exceeds open quantity %d for %s",
			ErrValidation, req.Quantity, existing.Quantity, existing.Symbol)
	}
	ct := realize(existing, exec, req.Quantity, at, sched)
	out := outcome{Closed: &ct}
	if rest := existing.Quantity - req.Quantity; rest > 0 {
		p := existing
		p.Quantity = rest
		out.Position = &p
	}
	return out, nil
}

// GrossPnL is the price move on qty in the position's favour.
func GrossPnL(side market.Side, entry, exit float64, qty int) float64 {
	if side == market.Sell {
		return (entry - exit) * float64(qty)
	}
	return (exit - entry) * float64(qty)
}

// realize closes qty of pos at exit. Both legs are costed fresh at their
// own prices.
func realize(pos Position, exit float64, qty int, at time.Time, sched cost.Schedule) ClosedTrade {
	entryLeg := sched.Breakdown(pos.EntryPrice, qty, pos.Side)
	exitLeg := sched.Breakdown(exit, qty, pos.Side.Opposite())

	net := GrossPnL(pos.Side, pos.EntryPrice, exit, qty) - entryLeg.Total - exitLeg.Total
	var pct float64
	if notional := pos.EntryPrice * float64(qty); notional > 0 {
		pct = net / notional * 100
	}
	return ClosedTrade{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		NetPnL:     net,
		PnLPct:     pct,
		Charges:    entryLeg.Add(exitLeg),
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   at,
		Duration:   at.Sub(pos.OpenedAt),
		Tag:        pos.Tag,
	}
}

// unrealized is PnL for an open position at price, net of both legs.
func unrealized(pos Position, price float64, sched cost.Schedule) float64 {
	gross := GrossPnL(pos.Side, pos.EntryPrice, price, pos.Quantity)
	entryLeg := sched.Breakdown(pos.EntryPrice, pos.Quantity, pos.Side)
	exitLeg := sched.Breakdown(price, pos.Quantity, pos.Side.Opposite())
	return gross - entryLeg.Total - exitLeg.Total
}

func sortedPositions(m map[string]Position) []Position {
	out := make([]Position, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func orderFor(req OrderRequest, id string, at time.Time) Order {
	return Order{
		ID:           id,
		Time:         at,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		Type:         string(req.Type),
		Status:       state.StatusPending,
		Tag:          req.Tag,
	}
}
