package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/pkg/id"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/state"
)

// DefaultPaperSlippage is five basis points.
const DefaultPaperSlippage = 0.0005

// Paper simulates an exchange against the persisted ledger. It is the
// only writer of positions, orders and closed trades in live mode.
type Paper struct {
	mu sync.Mutex

	ledger *state.Manager
	risk   *risk.Manager
	costs  cost.Schedule
	slip   Slippage
	now    func() time.Time
	newID  func(prefix string) string
	log    *slog.Logger
}

type PaperOption func(*Paper)

func WithSlippage(pct float64) PaperOption {
	return func(p *Paper) { p.slip = Slippage{Pct: pct} }
}

func WithCosts(s cost.Schedule) PaperOption {
	return func(p *Paper) { p.costs = s }
}

func WithClock(now func() time.Time) PaperOption {
	return func(p *Paper) { p.now = now }
}

func WithLogger(l *slog.Logger) PaperOption {
	return func(p *Paper) { p.log = logger.Or(l, "paper") }
}

func NewPaper(ledger *state.Manager, rm *risk.Manager, opts ...PaperOption) *Paper {
	p := &Paper{
		ledger: ledger,
		risk:   rm,
		costs:  cost.Default,
		slip:   Slippage{Pct: DefaultPaperSlippage},
		now:    time.Now,
		newID:  id.WithPrefix,
		log:    logger.With("paper"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PlaceOrder validates and fills req. Validation failures come back as a
// REJECTED fill with a nil error; the error return is for cancellation
// and ledger write failures.
func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if req.Type == "" {
		req.Type = Market
	}
	req.Side = market.Side(strings.ToUpper(string(req.Side)))

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placeLocked(req, "")
}

func (p *Paper) placeLocked(req OrderRequest, reason string) (Fill, error) {
	at := req.Time
	if at.IsZero() {
		at = p.now()
	}
	orderID := p.newID("PAPER")
	order := orderFor(req, orderID, at)

	existing, has := p.ledger.Position(req.Symbol)
	errs := validate(req)
	if len(errs) == 0 {
		errs = p.checkCapital(req, existing, has)
	}
	if len(errs) > 0 {
		return p.reject(order, rejection(errs))
	}

	exec, slip := executionPrice(req, p.slip)
	legCost := p.costs.Breakdown(exec, req.Quantity, req.Side).Total

	out, err := applyFill(existing, has, req, exec, at, p.costs)
	if err != nil {
		return p.reject(order, err)
	}

	order.Status = state.StatusComplete
	order.ExecutedPrice = exec
	order.Slippage = slip
	order.Costs = legCost

	fill := Fill{
		OrderID:      orderID,
		Status:       state.StatusComplete,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		AveragePrice: exec,
		Costs:        legCost,
		Slippage:     slip,
		Time:         at,
	}
	if out.Closed != nil {
		ct := *out.Closed
		ct.ID = p.newID("TRD")
		ct.Mode = state.ModePaper
		ct.ExitReason = reason
		fill.Closed = &ct
	}

	if err := p.commit(req.Symbol, out.Position, order, fill.Closed); err != nil {
		return fill, err
	}

	p.log.Info("simulated fill",
		"order_id", orderID, "symbol", req.Symbol, "side", req.Side, "qty", req.Quantity,
		"price", cost.Round2(exec), "slippage", cost.Round2(slip), "costs", legCost)
	return fill, nil
}

// commit writes the fill to the ledger in one update and, for a close,
// feeds the same realized P&L to the risk manager. This is the only place
// realized P&L enters either.
func (p *Paper) commit(symbol string, pos *Position, order Order, closed *ClosedTrade) error {
	err := p.ledger.Update(func(st *state.TradeState) error {
		if pos != nil {
			st.OpenPositions[symbol] = *pos
		} else {
			delete(st.OpenPositions, symbol)
		}
		st.Orders = append(st.Orders, order)
		if closed != nil {
			st.ApplyClose(*closed)
		}
		return nil
	})
	if closed == nil || p.risk == nil {
		return err
	}

	p.risk.UpdatePnL(closed.NetPnL)
	if p.risk.CheckKillSwitch() && !p.ledger.Snapshot().KillSwitchActive {
		if kerr := p.ledger.SetKillSwitch(true); kerr != nil && err == nil {
			err = kerr
		}
	}
	return err
}

// checkCapital applies to fills that add long premium.
func (p *Paper) checkCapital(req OrderRequest, existing Position, has bool) []string {
	if p.risk == nil || req.Side != market.Buy {
		return nil
	}
	if has && existing.Side == market.Sell {
		return nil
	}
	exec, _ := executionPrice(req, p.slip)
	required := exec*float64(req.Quantity) + p.costs.Breakdown(exec, req.Quantity, req.Side).Total
	available := p.risk.AvailableCapital(p.ledger.Snapshot().LockedPremium())
	if required > available {
		return []string{fmt.Sprintf("insufficient capital: required %.2f, available %.2f", required, available)}
	}
	return nil
}

func (p *Paper) reject(order Order, cause error) (Fill, error) {
	order.Status = state.StatusRejected
	order.Message = cause.Error()
	p.log.Error("order rejected", "symbol", order.Symbol, "err", cause)

	fill := Fill{
		OrderID:  order.ID,
		Status:   state.StatusRejected,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Message:  cause.Error(),
		Time:     order.Time,
	}
	if err := p.ledger.AddOrder(order); err != nil {
		return fill, err
	}
	return fill, nil
}

// ClosePosition exits the whole position on symbol with a MARKET order at
// price.
func (p *Paper) ClosePosition(ctx context.Context, symbol string, price float64, reason string) (CloseResult, error) {
	if err := ctx.Err(); err != nil {
		return CloseResult{}, err
	}
	if reason == "" {
		reason = "Manual"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.ledger.Position(symbol)
	if !ok {
		p.log.Warn("close of unknown position", "symbol", symbol)
		return CloseResult{}, fmt.Errorf("close position: %w: %q", ErrPositionNotFound, symbol)
	}

	fill, err := p.placeLocked(OrderRequest{
		Symbol:   symbol,
		Token:    pos.Token,
		Quantity: pos.Quantity,
		Side:     pos.Side.Opposite(),
		Type:     Market,
		Price:    price,
		Tag:      pos.Tag,
	}, reason)
	res := CloseResult{Status: StatusClosed, Symbol: symbol, Reason: reason, Fill: fill}
	if err != nil {
		return res, err
	}
	if fill.Rejected() || fill.Closed == nil {
		res.Status = state.StatusRejected
		res.Message = fill.Message
		return res, nil
	}

	res.ExitPrice = fill.AveragePrice
	res.NetPnL = fill.Closed.NetPnL
	res.Trade = *fill.Closed
	p.log.Info("position closed", "symbol", symbol, "net_pnl", cost.Round2(res.NetPnL), "reason", reason)
	return res, nil
}

func (p *Paper) Positions() []Position {
	return sortedPositions(p.ledger.Snapshot().OpenPositions)
}

func (p *Paper) PnL(symbol string, price float64) float64 {
	pos, ok := p.ledger.Position(symbol)
	if !ok {
		return 0
	}
	return unrealized(pos, price, p.costs)
}

// IsValidation reports whether err came from pre-trade checks.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
