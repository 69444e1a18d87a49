package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/market"
)

const tradeColumns = `trade_id, mode, symbol, side, quantity, entry_price, exit_price,
	opened_at, closed_at, net_pnl, pnl_pct, charges, exit_reason, tag`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (broker.ClosedTrade, error) {
	var (
		t    broker.ClosedTrade
		side string
	)
	err := s.Scan(&t.ID, &t.Mode, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
		&t.OpenedAt, &t.ClosedAt, &t.NetPnL, &t.PnLPct, &t.Charges.Total, &t.ExitReason, &t.Tag)
	if err != nil {
		return t, err
	}
	t.Side = market.Side(side)
	t.Duration = t.ClosedAt.Sub(t.OpenedAt)
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]broker.ClosedTrade, error) {
	defer rows.Close()
	var out []broker.ClosedTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTrade returns a single trade by id.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (broker.ClosedTrade, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.ClosedTrade{}, fmt.Errorf("trade %q not found", tradeID)
	}
	return t, err
}

// ListTradesClosedBetween returns trades with start <= closed_at < end.
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]broker.ClosedTrade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE closed_at >= ? AND closed_at < ?
		ORDER BY closed_at ASC, trade_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func (j *SQLite) ListTradesByRun(ctx context.Context, runID string) ([]broker.ClosedTrade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE run_id = ?
		ORDER BY closed_at ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func (j *SQLite) ListEquityByRun(ctx context.Context, runID string) ([]analytics.EquityPoint, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, equity, drawdown_pct FROM equity WHERE run_id = ? ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.EquityPoint
	for rows.Next() {
		var e analytics.EquityPoint
		if err := rows.Scan(&e.Time, &e.Equity, &e.DrawdownPct); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRuns returns backtest runs, newest first.
func (j *SQLite) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, created, strategy, start_time, end_time, rows, initial_capital, final_capital,
		       net_profit, return_pct, trades, win_rate, profit_factor, sharpe, max_drawdown_pct, brokerage, taxes
		FROM backtest_runs ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Created, &r.Strategy, &r.Start, &r.End, &r.Rows,
			&r.InitialCapital, &r.FinalCapital, &r.NetProfit, &r.ReturnPct, &r.Trades,
			&r.WinRate, &r.ProfitFactor, &r.Sharpe, &r.MaxDrawdownPct, &r.Brokerage, &r.Taxes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
