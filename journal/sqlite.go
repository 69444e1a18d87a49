package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/pkg/id"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertTrade = `
	INSERT OR IGNORE INTO trades
	(trade_id, run_id, mode, symbol, side, quantity, entry_price, exit_price,
	 opened_at, closed_at, net_pnl, pnl_pct, charges, exit_reason, tag)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func recordTrade(ctx context.Context, x execer, runID string, t broker.ClosedTrade) error {
	_, err := x.ExecContext(ctx, insertTrade,
		t.ID, runID, t.Mode, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice,
		t.OpenedAt.UTC(), t.ClosedAt.UTC(), t.NetPnL, t.PnLPct, t.Charges.Total, t.ExitReason, t.Tag,
	)
	return err
}

func recordEquity(ctx context.Context, x execer, runID string, e analytics.EquityPoint) error {
	_, err := x.ExecContext(ctx,
		`INSERT INTO equity (run_id, time, equity, drawdown_pct) VALUES (?, ?, ?, ?)`,
		runID, e.Time.UTC(), e.Equity, e.DrawdownPct,
	)
	return err
}

// RecordTrade stores a live trade. Trade ids are unique, so recording the
// same trade twice is a no-op.
func (j *SQLite) RecordTrade(t broker.ClosedTrade) error {
	return recordTrade(context.Background(), j.db, "", t)
}

func (j *SQLite) RecordEquity(e analytics.EquityPoint) error {
	return recordEquity(context.Background(), j.db, "", e)
}

// RecordTrades stores a batch in one transaction and returns how many
// were new.
func (j *SQLite) RecordTrades(ctx context.Context, trades []broker.ClosedTrade) (int, error) {
	before, err := j.countTrades(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	for _, t := range trades {
		if err := recordTrade(ctx, tx, "", t); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("record trade %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	after, err := j.countTrades(ctx)
	return after - before, err
}

func (j *SQLite) countTrades(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

// RecordBacktest stores a whole backtest result under a fresh run id and
// returns it. Backtest trade ids (BT-n) repeat across runs, so they are
// stored as <run id>/<trade id>.
func (j *SQLite) RecordBacktest(ctx context.Context, r backtest.Result) (string, error) {
	runID := id.New()
	s := r.Report.Summary

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	rollback := func(err error) (string, error) {
		_ = tx.Rollback()
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, strategy, start_time, end_time, rows, initial_capital, final_capital,
		 net_profit, return_pct, trades, win_rate, profit_factor, sharpe, max_drawdown_pct, brokerage, taxes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), r.Strategy, r.Start.UTC(), r.End.UTC(), r.Rows,
		s.InitialCapital, s.FinalCapital, s.NetProfit, s.TotalReturnPct, s.TotalTrades,
		s.WinRate, s.ProfitFactor, s.SharpeRatio, s.MaxDrawdownPct, r.TotalBrokerage, r.TotalTaxes,
	)
	if err != nil {
		return rollback(fmt.Errorf("record run: %w", err))
	}
	for _, t := range r.Trades {
		t.ID = runID + "/" + t.ID
		if err := recordTrade(ctx, tx, runID, t); err != nil {
			return rollback(fmt.Errorf("record trade: %w", err))
		}
	}
	for _, e := range r.Report.EquityCurve {
		if err := recordEquity(ctx, tx, runID, e); err != nil {
			return rollback(fmt.Errorf("record equity: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
