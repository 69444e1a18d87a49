// Package monitor closes open positions whose stop loss or target has
// been reached.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
)

const (
	ReasonStopLoss = "Stop Loss Hit"
	ReasonTarget   = "Target Hit"
)

// PriceSource resolves the latest price by symbol, then token.
type PriceSource interface {
	Price(symbol string, token int64) (float64, bool)
}

type Monitor struct {
	broker  broker.Broker
	prices  PriceSource
	enabled atomic.Bool
	log     *slog.Logger
}

// New returns an enabled monitor.
func New(b broker.Broker, prices PriceSource, log *slog.Logger) *Monitor {
	m := &Monitor{broker: b, prices: prices, log: logger.Or(log, "monitor")}
	m.enabled.Store(true)
	return m
}

func (m *Monitor) Enable() {
	m.enabled.Store(true)
	m.log.Info("position monitoring enabled")
}

func (m *Monitor) Disable() {
	m.enabled.Store(false)
	m.log.Info("position monitoring disabled")
}

func (m *Monitor) Enabled() bool { return m.enabled.Load() }

// Breach reports whether price crosses the position's stop or target. A
// zero stop or target is ignored on its own.
func Breach(p broker.Position, price float64) (string, bool) {
	if p.Side == market.Sell {
		switch {
		case p.StopLoss > 0 && price >= p.StopLoss:
			return ReasonStopLoss, true
		case p.Target > 0 && price <= p.Target:
			return ReasonTarget, true
		}
		return "", false
	}
	switch {
	case p.StopLoss > 0 && price <= p.StopLoss:
		return ReasonStopLoss, true
	case p.Target > 0 && price >= p.Target:
		return ReasonTarget, true
	}
	return "", false
}

// Check scans open positions once and closes every breach. It returns the
// number of positions closed. A failed close is logged and does not stop
// the scan.
func (m *Monitor) Check(ctx context.Context) int {
	if !m.Enabled() {
		return 0
	}
	closed := 0
	for _, p := range m.broker.Positions() {
		if ctx.Err() != nil {
			return closed
		}
		if p.StopLoss == 0 && p.Target == 0 {
			continue
		}
		price, ok := m.prices.Price(p.Symbol, p.Token)
		if !ok {
			m.log.Debug("no price, skipping", "symbol", p.Symbol)
			continue
		}
		reason, hit := Breach(p, price)
		if !hit {
			continue
		}

		m.log.Info("auto-closing", "symbol", p.Symbol, "reason", reason,
			"ltp", price, "stop", p.StopLoss, "target", p.Target)
		res, err := m.broker.ClosePosition(ctx, p.Symbol, price, reason)
		if err != nil {
			m.log.Error("auto-close failed", "symbol", p.Symbol, "err", err)
			continue
		}
		if !res.Closed() {
			m.log.Error("auto-close rejected", "symbol", p.Symbol, "msg", res.Message)
			continue
		}
		closed++
	}
	return closed
}
