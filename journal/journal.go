// Package journal keeps a durable record of closed trades, equity samples
// and backtest runs, beyond the single trading day the ledger holds.
package journal

import (
	"time"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
)

// Journal records trades and equity as they happen.
type Journal interface {
	RecordTrade(broker.ClosedTrade) error
	RecordEquity(analytics.EquityPoint) error
	Close() error
}

// Run is one row of backtest_runs.
type Run struct {
	RunID    string
	Created  time.Time
	Strategy string
	Start    time.Time
	End      time.Time
	Rows     int

	InitialCapital float64
	FinalCapital   float64
	NetProfit      float64
	ReturnPct      float64
	Trades         int
	WinRate        float64
	ProfitFactor   float64
	Sharpe         float64
	MaxDrawdownPct float64
	Brokerage      float64
	Taxes          float64
}
