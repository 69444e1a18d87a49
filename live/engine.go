// Package live runs the paper trading loop: each tick flows through the
// strategy, the risk manager, the broker and the position monitor.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/monitor"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/strategy"
)

const ReasonTimeExit = "Time Exit"

// Config tunes the loop. StopLossPct and TargetPct place the protective
// levels as a percentage of the option premium.
type Config struct {
	Underlying      string        `json:"underlying" yaml:"underlying"`
	Interval        time.Duration `json:"interval" yaml:"interval"`
	EntryTime       string        `json:"entry_time" yaml:"entry_time"`
	ExitTime        string        `json:"exit_time" yaml:"exit_time"`
	StopLossPct     float64       `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TargetPct       float64       `json:"target_pct" yaml:"target_pct"`
	StrikeSelection string        `json:"strike_selection" yaml:"strike_selection"`
	StrikeOffset    int           `json:"strike_offset" yaml:"strike_offset"`
	MaxPositions    int           `json:"max_positions" yaml:"max_positions"`

	Location *time.Location `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Underlying:      "NIFTY",
		Interval:        time.Second,
		EntryTime:       market.SessionOpen,
		ExitTime:        market.SessionClose,
		StopLossPct:     20,
		TargetPct:       50,
		StrikeSelection: market.ATM,
		StrikeOffset:    1,
		MaxPositions:    1,
		Location:        market.IST,
	}
}

// Advancer is implemented by providers that replay recorded data. The
// engine advances them after each tick and stops when they run dry.
type Advancer interface {
	Advance() bool
}

// Clock is implemented by providers that carry their own notion of now.
type Clock interface {
	Now() time.Time
}

// Engine owns one trading loop.
type Engine struct {
	cfg      Config
	inst     market.Instrument
	entry    market.Clock
	exit     market.Clock
	strat    strategy.Strategy
	provider market.Provider
	book     *market.PriceBook
	risk     *risk.Manager
	broker   broker.Broker
	monitor  *monitor.Monitor
	log      *slog.Logger
}

// NewEngine wires the loop. book is shared with the monitor and may be nil.
func NewEngine(cfg Config, strat strategy.Strategy, provider market.Provider, rm *risk.Manager, b broker.Broker, book *market.PriceBook, log *slog.Logger) (*Engine, error) {
	if strat == nil || provider == nil || rm == nil || b == nil {
		return nil, errors.New("live: strategy, provider, risk manager and broker are required")
	}
	log = logger.Or(log, "live")
	def := DefaultConfig()
	if cfg.Underlying == "" {
		cfg.Underlying = def.Underlying
	}
	cfg.Underlying = strings.ToUpper(cfg.Underlying)
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StrikeSelection == "" {
		cfg.StrikeSelection = market.ATM
	}
	if cfg.StrikeOffset <= 0 {
		cfg.StrikeOffset = 1
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 1
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if book == nil {
		book = market.NewPriceBook()
	}

	inst, err := provider.Instrument(context.Background(), cfg.Underlying)
	if err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		inst:     inst,
		strat:    strat,
		provider: provider,
		book:     book,
		risk:     rm,
		broker:   b,
		monitor:  monitor.New(b, book, log),
		log:      log,
	}
	e.entry = clockOr(cfg.EntryTime, market.SessionOpen, log)
	e.exit = clockOr(cfg.ExitTime, market.SessionClose, log)
	return e, nil
}

func clockOr(v, def string, log *slog.Logger) market.Clock {
	if c, err := market.ParseClock(v); err == nil {
		return c
	}
	if v != "" {
		log.Warn("malformed session time, using default", "value", v, "default", def)
	}
	c, _ := market.ParseClock(def)
	return c
}

// Monitor exposes the position monitor so callers can toggle it.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// Book is the price book the engine keeps current.
func (e *Engine) Book() *market.PriceBook { return e.book }

// Run ticks until ctx is cancelled or a replaying provider runs out of
// data. Tick level failures are logged and the loop carries on.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx) })
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) error {
	e.log.Info("loop started", "strategy", e.strat.Name(), "underlying", e.cfg.Underlying, "interval", e.cfg.Interval)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	adv, replaying := e.provider.(Advancer)
	for {
		if err := e.Step(ctx); err != nil {
			return err
		}
		if replaying && !adv.Advance() {
			e.log.Info("replay finished")
			return nil
		}
		select {
		case <-ctx.Done():
			e.log.Info("loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) now() time.Time {
	if c, ok := e.provider.(Clock); ok {
		return c.Now()
	}
	return time.Now()
}

// Step runs one tick. Only context cancellation is returned; everything
// else degrades to no trade this tick.
func (e *Engine) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := e.now()

	spot, err := e.provider.CurrentPrice(ctx, e.cfg.Underlying)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.log.Warn("no quote, skipping tick", "symbol", e.cfg.Underlying, "err", err)
		return nil
	}
	e.book.Set(e.cfg.Underlying, e.inst.Token, spot)

	before := e.broker.Positions()
	for _, p := range before {
		px, err := e.provider.CurrentPrice(ctx, p.Symbol)
		if err != nil {
			e.log.Debug("no quote for position", "symbol", p.Symbol, "err", err)
			continue
		}
		e.book.Set(p.Symbol, p.Token, px)
	}

	tick := market.Tick{
		InstrumentID: e.inst.Token,
		Symbol:       e.cfg.Underlying,
		Price:        spot,
		Time:         now,
	}
	clock := market.ClockOf(now, e.cfg.Location)

	if clock >= e.exit {
		e.closeAll(ctx, ReasonTimeExit)
		e.notifyClosed(before)
		return nil
	}

	e.monitor.Check(ctx)
	if ex, ok := e.strat.(strategy.Exitable); ok {
		for _, p := range e.broker.Positions() {
			if exit, reason := ex.ShouldExit(p.Symbol, tick); exit {
				e.close(ctx, p, reason)
			}
		}
	}
	e.notifyClosed(before)

	if clock < e.entry {
		return nil
	}
	if e.risk.CheckKillSwitch() {
		return nil
	}
	sig := e.strat.OnTick(tick)
	if sig == nil {
		return nil
	}
	e.enter(ctx, tick, *sig)
	return nil
}

func (e *Engine) enter(ctx context.Context, tick market.Tick, sig strategy.Signal) {
	open := e.broker.Positions()
	if len(open) >= e.cfg.MaxPositions {
		e.log.Debug("signal ignored, position limit", "open", len(open))
		return
	}
	typ := sig.Leg()
	strike := market.SelectStrike(tick.Price, e.inst.StrikeStep, e.cfg.StrikeSelection, e.cfg.StrikeOffset, typ)
	symbol := market.OptionSymbol(e.cfg.Underlying, strike, typ)
	for _, p := range open {
		if p.Symbol == symbol {
			return
		}
	}

	premium, err := e.provider.CurrentPrice(ctx, symbol)
	if err != nil {
		e.log.Warn("no premium, skipping signal", "symbol", symbol, "err", err)
		return
	}
	stop := premium * (1 - e.cfg.StopLossPct/100)
	target := premium * (1 + e.cfg.TargetPct/100)

	v := e.risk.ValidateTradeSetup(premium, stop, target)
	if !v.Approved {
		e.log.Info("signal rejected by risk", "symbol", symbol, "reason", v.Reason)
		return
	}
	qty := risk.FloorToLot(e.risk.TargetSize(premium, stop), e.inst.LotSize)
	if qty == 0 {
		e.log.Info("signal sized to zero", "symbol", symbol, "premium", premium)
		return
	}

	d := risk.Evaluate(
		risk.Policy{MinRR: e.risk.MinRewardRisk(), MaxRiskPct: e.risk.HardCapPct(), MaxOpenPositions: e.cfg.MaxPositions},
		risk.Intent{Entry: premium, Stop: stop, Target: target, Quantity: qty},
		risk.AccountSnapshot{Capital: e.risk.CurrentCapital(), OpenPositions: len(open)},
	)
	if !d.Allowed {
		e.log.Info("signal blocked by policy", "symbol", symbol, "violations", d.Violations)
		return
	}

	fill, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Quantity:   qty,
		Side:       market.Buy,
		Type:       broker.Market,
		Price:      premium,
		StopLoss:   stop,
		Target:     target,
		Tag:        sig.Tag,
		OptionType: typ,
		Strike:     strike,
		Time:       tick.Time,
	})
	if err != nil {
		e.log.Error("order failed", "symbol", symbol, "err", err)
		return
	}
	if fill.Rejected() {
		e.log.Warn("order rejected", "symbol", symbol, "msg", fill.Message)
		return
	}
	e.book.Set(symbol, 0, premium)
	e.log.Info("position opened", "symbol", symbol, "qty", qty, "price", fill.AveragePrice,
		"stop", stop, "target", target, "tag", sig.Tag)
	if obs, ok := e.strat.(strategy.PositionObserver); ok {
		obs.OnPositionOpened(symbol, tick)
	}
}

func (e *Engine) close(ctx context.Context, p broker.Position, reason string) {
	price, ok := e.book.Price(p.Symbol, p.Token)
	if !ok {
		e.log.Warn("no price to close at", "symbol", p.Symbol, "reason", reason)
		return
	}
	res, err := e.broker.ClosePosition(ctx, p.Symbol, price, reason)
	if err != nil {
		e.log.Error("close failed", "symbol", p.Symbol, "err", err)
		return
	}
	if !res.Closed() {
		e.log.Error("close rejected", "symbol", p.Symbol, "msg", res.Message)
		return
	}
	e.log.Info("position closed", "symbol", p.Symbol, "reason", reason, "pnl", res.NetPnL)
}

func (e *Engine) closeAll(ctx context.Context, reason string) {
	for _, p := range e.broker.Positions() {
		e.close(ctx, p, reason)
	}
}

// notifyClosed tells an observing strategy about every position that was
// open before the tick and is gone after it, whoever closed it.
func (e *Engine) notifyClosed(before []broker.Position) {
	obs, ok := e.strat.(strategy.PositionObserver)
	if !ok || len(before) == 0 {
		return
	}
	still := map[string]bool{}
	for _, p := range e.broker.Positions() {
		still[p.Symbol] = true
	}
	for _, p := range before {
		if !still[p.Symbol] {
			obs.OnPositionClosed(p.Symbol)
		}
	}
}
