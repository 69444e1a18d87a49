package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
)

var (
	tradeHeader  = []string{"trade_id", "mode", "symbol", "side", "quantity", "entry_price", "exit_price", "opened_at", "closed_at", "net_pnl", "pnl_pct", "charges", "exit_reason", "tag"}
	equityHeader = []string{"time", "equity", "drawdown_pct"}
)

// CSVJournal appends trades and equity samples to two CSV files. Each
// record is flushed as it is written.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var _ Journal = (*CSVJournal)(nil)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.write(j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t broker.ClosedTrade) error {
	return j.write(j.trades, tradeRow(t))
}

func (j *CSVJournal) RecordEquity(e analytics.EquityPoint) error {
	return j.write(j.equity, []string{e.Time.Format(time.RFC3339), money(e.Equity), money(e.DrawdownPct)})
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.equity.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	if err := j.equity.Error(); err != nil {
		return err
	}
	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

// WriteTradesCSV writes a header and one row per trade to path.
func WriteTradesCSV(path string, trades []broker.ClosedTrade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write(tradeHeader)
	for _, t := range trades {
		_ = w.Write(tradeRow(t))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func tradeRow(t broker.ClosedTrade) []string {
	return []string{
		t.ID,
		t.Mode,
		t.Symbol,
		string(t.Side),
		strconv.Itoa(t.Quantity),
		money(t.EntryPrice),
		money(t.ExitPrice),
		t.OpenedAt.Format(time.RFC3339),
		t.ClosedAt.Format(time.RFC3339),
		money(t.NetPnL),
		money(t.PnLPct),
		money(t.Charges.Total),
		t.ExitReason,
		t.Tag,
	}
}

func money(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}
