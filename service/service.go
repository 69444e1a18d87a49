// Package service is the transport neutral API of the trading engine. The
// HTTP binding and the CLI both sit on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/state"
	"github.com/rustyeddy/optiontrader/strategy"
)

// ErrInvalidRequest marks requests rejected before any work was done.
var ErrInvalidRequest = errors.New("invalid request")

const ReasonManualClose = "Manual Close"

// Deps are the collaborators a Service needs. Provider and Book are
// optional; without them positions are valued at entry.
type Deps struct {
	Risk     *risk.Manager
	Ledger   *state.Manager
	Broker   broker.Broker
	Provider market.Provider
	Book     *market.PriceBook
	Backtest backtest.Config
	Log      *slog.Logger
}

type Service struct {
	risk     *risk.Manager
	ledger   *state.Manager
	broker   broker.Broker
	provider market.Provider
	book     *market.PriceBook
	defaults backtest.Config
	log      *slog.Logger
}

func New(d Deps) (*Service, error) {
	if d.Risk == nil || d.Ledger == nil || d.Broker == nil {
		return nil, errors.New("service: risk manager, ledger and broker are required")
	}
	if d.Backtest.Capital == 0 {
		d.Backtest = backtest.DefaultConfig()
	}
	return &Service{
		risk:     d.Risk,
		ledger:   d.Ledger,
		broker:   d.Broker,
		provider: d.Provider,
		book:     d.Book,
		defaults: d.Backtest,
		log:      logger.Or(d.Log, "service"),
	}, nil
}

func (s *Service) RiskState() risk.State { return s.risk.Snapshot() }

// State is the raw ledger document.
func (s *Service) State() state.TradeState { return s.ledger.Snapshot() }

// TradeCheck is the answer to ValidateTrade.
type TradeCheck struct {
	Approved     bool    `json:"approved"`
	Reason       string  `json:"reason"`
	SuggestedQty int     `json:"suggested_qty"`
	RewardRisk   float64 `json:"reward_risk"`
	DailyPnL     float64 `json:"daily_pnl"`
	KillSwitch   bool    `json:"kill_switch"`
}

// ValidateTrade runs the gatekeeper and, when approved, sizes the trade.
func (s *Service) ValidateTrade(entry, stop, target float64) TradeCheck {
	v := s.risk.ValidateTradeSetup(entry, stop, target)
	st := s.risk.Snapshot()
	out := TradeCheck{
		Approved:   v.Approved,
		Reason:     v.Reason,
		RewardRisk: risk.RR(entry, stop, target),
		DailyPnL:   st.DailyPnL,
		KillSwitch: st.KillSwitchActive,
	}
	if v.Approved {
		out.SuggestedQty = s.risk.TargetSize(entry, stop)
	}
	return out
}

// PositionView is an open position with its mark.
type PositionView struct {
	broker.Position
	LastPrice  float64 `json:"ltp"`
	PnL        float64 `json:"pnl"`
	PriceKnown bool    `json:"price_known"`
}

// OpenPositions lists open positions valued at the latest known price.
func (s *Service) OpenPositions(ctx context.Context) []PositionView {
	positions := s.broker.Positions()
	out := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		px, ok := s.price(ctx, p)
		if !ok {
			px = p.EntryPrice
		}
		out = append(out, PositionView{
			Position:   p,
			LastPrice:  px,
			PnL:        s.broker.PnL(p.Symbol, px),
			PriceKnown: ok,
		})
	}
	return out
}

func (s *Service) price(ctx context.Context, p broker.Position) (float64, bool) {
	if s.book != nil {
		if px, ok := s.book.Price(p.Symbol, p.Token); ok {
			return px, true
		}
	}
	if s.provider != nil {
		px, err := s.provider.CurrentPrice(ctx, p.Symbol)
		if err == nil && px > 0 {
			return px, true
		}
	}
	return 0, false
}

// ClosePosition closes the position identified by symbol or instrument
// token at the best price available, falling back to the entry price.
func (s *Service) ClosePosition(ctx context.Context, id string) (broker.CloseResult, error) {
	p, ok := s.find(id)
	if !ok {
		return broker.CloseResult{}, fmt.Errorf("close %q: %w", id, broker.ErrPositionNotFound)
	}
	px, ok := s.price(ctx, p)
	if !ok {
		px = p.EntryPrice
		s.log.Warn("closing at entry price, no live quote", "symbol", p.Symbol, "price", px)
	}
	return s.broker.ClosePosition(ctx, p.Symbol, px, ReasonManualClose)
}

func (s *Service) find(id string) (broker.Position, bool) {
	id = strings.TrimSpace(id)
	positions := s.broker.Positions()
	for _, p := range positions {
		if p.Symbol == id {
			return p, true
		}
	}
	if tok, err := strconv.ParseInt(id, 10, 64); err == nil && tok != 0 {
		for _, p := range positions {
			if p.Token == tok {
				return p, true
			}
		}
	}
	for _, p := range positions {
		if strings.EqualFold(strings.ReplaceAll(p.Symbol, " ", ""), strings.ReplaceAll(id, " ", "")) {
			return p, true
		}
	}
	return broker.Position{}, false
}

// DeployStrategy checks that cfg names a known strategy and records it in
// the ledger.
func (s *Service) DeployStrategy(cfg strategy.Config, symbol string) (state.DeployedStrategy, error) {
	if _, err := strategy.New(cfg); err != nil {
		return state.DeployedStrategy{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	d := state.DeployedStrategy{
		Name:       cfg.Name,
		Symbol:     strings.ToUpper(symbol),
		Params:     cfg.Params,
		Enabled:    true,
		DeployedAt: time.Now(),
	}
	if err := s.ledger.DeployStrategy(d); err != nil {
		return state.DeployedStrategy{}, err
	}
	s.log.Info("strategy deployed", "name", d.Name, "symbol", d.Symbol)
	return d, nil
}

func (s *Service) DeployedStrategies() []state.DeployedStrategy {
	return s.ledger.DeployedStrategies()
}

func (s *Service) RemoveStrategy(name string) error {
	return s.ledger.RemoveStrategy(name)
}

// ResetState starts a new trading day in both the ledger and the risk
// manager.
func (s *Service) ResetState() error {
	if err := s.ledger.Reset(); err != nil {
		return err
	}
	s.risk.Reset()
	return nil
}
