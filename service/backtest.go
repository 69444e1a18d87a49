package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/strategy"
)

// BacktestRequest asks for one replay. Zero fields of Config fall back to
// the service defaults; dates are YYYY-MM-DD and End is inclusive.
type BacktestRequest struct {
	Strategy  strategy.Config `json:"strategy_config"`
	Config    backtest.Config `json:"risk_config"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Timeframe string          `json:"timeframe"`
}

// RunBacktest loads history from the provider, replays it and reports
// progress, then exactly one result or error event, through emit. The
// returned error mirrors the error event.
func (s *Service) RunBacktest(ctx context.Context, req BacktestRequest, emit func(backtest.Event)) error {
	if emit == nil {
		emit = func(backtest.Event) {}
	}
	fail := func(err error) error {
		emit(backtest.Event{Type: backtest.EventError, Message: err.Error()})
		return err
	}

	runner, err := s.prepare(req)
	if err != nil {
		return fail(err)
	}
	if s.provider == nil {
		return fail(fmt.Errorf("backtest: no market data provider: %w", market.ErrDataUnavailable))
	}
	from := runner.Config.Start
	if runner.Config.WarmupBars > 0 {
		from = time.Time{}
	}
	bars, err := s.provider.HistoricalBars(ctx, runner.Config.Underlying, from, runner.Config.End, req.Timeframe)
	if err != nil {
		return fail(err)
	}

	var runErr error
	for ev := range backtest.Stream(ctx, *runner, bars) {
		if ev.Type == backtest.EventError {
			runErr = errors.New(ev.Message)
		}
		emit(ev)
	}
	if runErr == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return runErr
}

func (s *Service) prepare(req BacktestRequest) (*backtest.Runner, error) {
	strat, err := strategy.New(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := market.ParseInterval(req.Timeframe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg := merge(s.defaults, req.Config)

	loc := cfg.Location
	if loc == nil {
		loc = market.IST
	}
	if req.StartDate != "" {
		t, err := time.ParseInLocation(time.DateOnly, req.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: start_date: %v", ErrInvalidRequest, err)
		}
		cfg.Start = t
	}
	if req.EndDate != "" {
		t, err := time.ParseInLocation(time.DateOnly, req.EndDate, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: end_date: %v", ErrInvalidRequest, err)
		}
		cfg.End = t.AddDate(0, 0, 1)
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidRequest)
	}
	return &backtest.Runner{Strategy: strat, Config: cfg, Log: s.log}, nil
}

// merge overlays the non-zero fields of o on base.
func merge(base, o backtest.Config) backtest.Config {
	if o.Underlying != "" {
		base.Underlying = o.Underlying
	}
	if o.Capital > 0 {
		base.Capital = o.Capital
	}
	if o.EntryTime != "" {
		base.EntryTime = o.EntryTime
	}
	if o.ExitTime != "" {
		base.ExitTime = o.ExitTime
	}
	if o.StopLossPct > 0 {
		base.StopLossPct = o.StopLossPct
	}
	if o.TargetPct > 0 {
		base.TargetPct = o.TargetPct
	}
	if o.PortfolioStopPct > 0 {
		base.PortfolioStopPct = o.PortfolioStopPct
	}
	if o.PortfolioTargetPct > 0 {
		base.PortfolioTargetPct = o.PortfolioTargetPct
	}
	if o.RiskPerTradePct > 0 {
		base.RiskPerTradePct = o.RiskPerTradePct
	}
	if o.LotSize > 0 {
		base.LotSize = o.LotSize
	}
	if o.StrikeStep > 0 {
		base.StrikeStep = o.StrikeStep
	}
	if o.StrikeSelection != "" {
		base.StrikeSelection = o.StrikeSelection
	}
	if o.StrikeOffset > 0 {
		base.StrikeOffset = o.StrikeOffset
	}
	if o.MaxPositions > 0 {
		base.MaxPositions = o.MaxPositions
	}
	if o.SlippagePct > 0 {
		base.SlippagePct = o.SlippagePct
	}
	if !o.Start.IsZero() {
		base.Start = o.Start
	}
	if !o.End.IsZero() {
		base.End = o.End
	}
	if o.WarmupBars > 0 {
		base.WarmupBars = o.WarmupBars
	}
	if o.Location != nil {
		base.Location = o.Location
	}
	return base
}
