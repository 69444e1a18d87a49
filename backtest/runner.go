// Package backtest replays historical bars through a strategy and the
// in-memory broker, producing an equity curve, a trade log and a report.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/cost"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/monitor"
	"github.com/rustyeddy/optiontrader/strategy"
)

// Exit reasons set by the runner itself. Per-position breaches reuse the
// monitor's reasons.
const (
	ReasonTimeExit        = "Time Exit"
	ReasonPortfolioStop   = "Portfolio Stop"
	ReasonPortfolioTarget = "Portfolio Target"
	ReasonForceExit       = "Force Exit"
)

// Runner drives one replay. It is single-goroutine and deterministic:
// identical inputs give identical results.
type Runner struct {
	Strategy strategy.Strategy
	Config   Config
	Costs    *cost.Schedule
	Surface  *market.SyntheticSurface
	Log      *slog.Logger

	// Progress, when set, receives 0..100 as rows are processed.
	Progress func(pct int, msg string)
}

// run is the mutable state of one Run.
type run struct {
	cfg     session
	strat   strategy.Strategy
	broker  *broker.Backtest
	costs   cost.Schedule
	surface market.SyntheticSurface
	log     *slog.Logger

	curve []analytics.EquityPoint
}

// Run replays bars and returns the result. bars must be in time order;
// bars before Config.Start feed the warm-up window.
func (r *Runner) Run(ctx context.Context, bars []market.Bar) (Result, error) {
	if r.Strategy == nil {
		return Result{}, errors.New("backtest: Strategy is required")
	}
	log := logger.Or(r.Log, "backtest")
	cfg, err := r.Config.resolve(log)
	if err != nil {
		return Result{}, err
	}

	rows := market.FilterRange(bars, cfg.Start, cfg.End)
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("backtest: no bars in range: %w", market.ErrDataUnavailable)
	}

	surface := market.DefaultSurface()
	if r.Surface != nil {
		surface = *r.Surface
	}
	surface.StrikeStep = cfg.StrikeStep
	surface.Fill(rows)

	costs := cost.Default
	if r.Costs != nil {
		costs = *r.Costs
	}
	b := broker.NewBacktest(cfg.Capital, cfg.SlippagePct/100).WithCosts(costs)
	rn := &run{
		cfg:     cfg,
		strat:   r.Strategy,
		broker:  b,
		costs:   costs,
		surface: surface,
		log:     log,
		curve:   make([]analytics.EquityPoint, 0, len(rows)+1),
	}

	if s, ok := r.Strategy.(strategy.Seedable); ok && cfg.WarmupBars > 0 && !cfg.Start.IsZero() {
		warm := market.FilterRange(bars, time.Time{}, cfg.Start)
		if len(warm) > cfg.WarmupBars {
			warm = warm[len(warm)-cfg.WarmupBars:]
		}
		s.Seed(warm)
		log.Debug("strategy seeded", "bars", len(warm))
	}

	log.Info("backtest started",
		"strategy", r.Strategy.Name(),
		"rows", len(rows),
		"from", rows[0].Time.Format(time.DateTime),
		"to", rows[len(rows)-1].Time.Format(time.DateTime))

	r.progress(0, "started")
	step := max(len(rows)/20, 1)
	for i, bar := range rows {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rn.step(ctx, bar)
		if (i+1)%step == 0 && i+1 < len(rows) {
			r.progress((i+1)*100/len(rows), bar.Time.Format(time.DateTime))
		}
	}

	last := rows[len(rows)-1]
	marks := rn.marks(last)
	rn.closeAll(last, marks, ReasonForceExit)
	final := analytics.EquityPoint{Time: last.Time, Equity: b.Equity(marks)}
	if n := len(rn.curve); n > 0 && rn.curve[n-1].Time.Equal(final.Time) {
		rn.curve[n-1] = final
	} else {
		rn.curve = append(rn.curve, final)
	}

	trades := b.ClosedTrades()
	res := Result{
		Strategy:       r.Strategy.Name(),
		Start:          rows[0].Time,
		End:            last.Time,
		Rows:           len(rows),
		Report:         analytics.Compute(rn.curve, trades, cfg.Capital),
		Trades:         trades,
		Orders:         b.Orders(),
		TotalBrokerage: cost.Round2(b.TotalBrokerage()),
		TotalTaxes:     cost.Round2(b.TotalTaxes()),
	}
	r.progress(100, "done")
	log.Info("backtest finished",
		"trades", res.Report.Summary.TotalTrades,
		"net_profit", res.Report.Summary.NetProfit,
		"max_drawdown_pct", res.Report.Summary.MaxDrawdownPct)
	return res, nil
}

func (r *Runner) progress(pct int, msg string) {
	if r.Progress != nil {
		r.Progress(pct, msg)
	}
}

// step applies the gates for one row: exit time, per-position stop and
// target, portfolio stop and target, then entry, then the equity sample.
func (rn *run) step(ctx context.Context, bar market.Bar) {
	marks := rn.marks(bar)
	clock := market.ClockOf(bar.Time, rn.cfg.Location)

	if clock >= rn.cfg.exit {
		rn.closeAll(bar, marks, ReasonTimeExit)
		rn.sample(bar, marks)
		return
	}

	tick := market.Tick{
		Symbol: rn.cfg.Underlying,
		Price:  bar.Close,
		Volume: bar.Volume,
		Time:   bar.Time,
	}
	if inst, ok := market.Underlyings[rn.cfg.Underlying]; ok {
		tick.InstrumentID = inst.Token
	}

	for _, p := range rn.broker.Positions() {
		if reason, hit := rn.positionExit(p, marks[p.Symbol], tick); hit {
			rn.close(p.Symbol, bar, marks[p.Symbol], reason)
		}
	}

	suppressed := false
	if reason, hit := rn.portfolioExit(marks); hit {
		rn.closeAll(bar, marks, reason)
		suppressed = true
	}

	if !suppressed && clock >= rn.cfg.entry {
		if sig := rn.strat.OnTick(tick); sig != nil {
			rn.enter(ctx, bar, tick, *sig)
		}
	}

	rn.sample(bar, marks)
}

func (rn *run) positionExit(p broker.Position, mark float64, tick market.Tick) (string, bool) {
	if mark > 0 && p.EntryPrice > 0 {
		pct := (mark - p.EntryPrice) / p.EntryPrice * 100
		if p.Side == market.Sell {
			pct = -pct
		}
		if rn.cfg.StopLossPct > 0 && pct <= -rn.cfg.StopLossPct {
			return monitor.ReasonStopLoss, true
		}
		if rn.cfg.TargetPct > 0 && pct >= rn.cfg.TargetPct {
			return monitor.ReasonTarget, true
		}
	}
	if ex, ok := rn.strat.(strategy.Exitable); ok {
		if exit, reason := ex.ShouldExit(p.Symbol, tick); exit {
			return reason, true
		}
	}
	return "", false
}

func (rn *run) portfolioExit(marks map[string]float64) (string, bool) {
	positions := rn.broker.Positions()
	if len(positions) == 0 {
		return "", false
	}
	var pnl float64
	for _, p := range positions {
		pnl += rn.broker.PnL(p.Symbol, marks[p.Symbol])
	}
	pct := pnl / rn.cfg.Capital * 100
	switch {
	case rn.cfg.PortfolioStopPct > 0 && pct <= -rn.cfg.PortfolioStopPct:
		return ReasonPortfolioStop, true
	case rn.cfg.PortfolioTargetPct > 0 && pct >= rn.cfg.PortfolioTargetPct:
		return ReasonPortfolioTarget, true
	}
	return "", false
}

func (rn *run) enter(ctx context.Context, bar market.Bar, tick market.Tick, sig strategy.Signal) {
	if len(rn.broker.Positions()) >= rn.cfg.MaxPositions {
		return
	}
	typ := sig.Leg()
	strike := market.SelectStrike(bar.Close, rn.cfg.StrikeStep, rn.cfg.StrikeSelection, rn.cfg.StrikeOffset, typ)
	symbol := market.OptionSymbol(rn.cfg.Underlying, strike, typ)
	if _, open := rn.broker.Position(symbol); open {
		return
	}
	premium := rn.legPrice(bar, strike, typ)
	if premium <= 0 {
		rn.log.Warn("no premium for leg, skipping entry", "symbol", symbol, "time", bar.Time)
		return
	}

	qty := rn.quantity(premium)
	if qty == 0 {
		rn.log.Info("entry unaffordable", "symbol", symbol, "premium", premium, "cash", rn.broker.Cash())
		return
	}
	fill, err := rn.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Quantity:   qty,
		Side:       market.Buy,
		Type:       broker.Market,
		Price:      premium,
		Tag:        sig.Tag,
		OptionType: typ,
		Strike:     strike,
		Time:       bar.Time,
	})
	if err != nil || fill.Rejected() {
		rn.log.Warn("entry rejected", "symbol", symbol, "err", err, "msg", fill.Message)
		return
	}
	if obs, ok := rn.strat.(strategy.PositionObserver); ok {
		obs.OnPositionOpened(symbol, tick)
	}
}

// quantity sizes an entry at risk% of cash, in whole lots with a minimum
// of one, shrunk until the premium plus costs fits in cash.
func (rn *run) quantity(premium float64) int {
	lot := rn.cfg.LotSize
	raw := int(math.Floor(rn.cfg.RiskPerTradePct / 100 * rn.broker.Cash() / premium))
	qty := max(raw/lot*lot, lot)
	for qty > 0 {
		need := premium*float64(qty)*(1+rn.cfg.SlippagePct/100) + rn.costs.Breakdown(premium, qty, market.Buy).Total
		if need <= rn.broker.Cash() {
			return qty
		}
		qty -= lot
	}
	return 0
}

func (rn *run) close(symbol string, bar market.Bar, price float64, reason string) {
	res, err := rn.broker.CloseAt(symbol, price, reason, bar.Time)
	if err != nil {
		rn.log.Error("close failed", "symbol", symbol, "err", err)
		return
	}
	if res.Closed() {
		rn.log.Debug("position closed", "symbol", symbol, "reason", reason, "pnl", res.NetPnL)
		if obs, ok := rn.strat.(strategy.PositionObserver); ok {
			obs.OnPositionClosed(symbol)
		}
		return
	}
	rn.log.Warn("close rejected", "symbol", symbol, "msg", res.Message)
}

func (rn *run) closeAll(bar market.Bar, marks map[string]float64, reason string) {
	for _, p := range rn.broker.Positions() {
		rn.close(p.Symbol, bar, marks[p.Symbol], reason)
	}
}

func (rn *run) sample(bar market.Bar, marks map[string]float64) {
	rn.curve = append(rn.curve, analytics.EquityPoint{
		Time:   bar.Time,
		Equity: rn.broker.Equity(marks),
	})
}

// marks prices every open leg at this bar.
func (rn *run) marks(bar market.Bar) map[string]float64 {
	positions := rn.broker.Positions()
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		out[p.Symbol] = rn.legPrice(bar, p.Strike, p.OptionType)
	}
	return out
}

// legPrice uses the bar's own premium for the ATM strike and prices any
// other strike off the surface at the bar's volatility.
func (rn *run) legPrice(bar market.Bar, strike float64, typ market.OptionType) float64 {
	if strike == bar.ATMStrike || strike == 0 {
		return bar.Premium(typ)
	}
	s := rn.surface
	if bar.VIX > 0 {
		s.Volatility = bar.VIX / 100
	}
	return s.Price(typ, bar.Close, strike)
}
