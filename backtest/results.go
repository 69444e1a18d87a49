package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
)

// Result is everything one replay produced.
type Result struct {
	Strategy       string               `json:"strategy"`
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	Rows           int                  `json:"rows"`
	Report         analytics.Report     `json:"report"`
	Trades         []broker.ClosedTrade `json:"trades"`
	Orders         []broker.Order       `json:"orders"`
	TotalBrokerage float64              `json:"total_brokerage"`
	TotalTaxes     float64              `json:"total_taxes"`
}

// PrintResult writes a human readable summary of r to w.
func PrintResult(w io.Writer, r Result) {
	s := r.Report.Summary
	ts := r.Report.TradeStats

	fmt.Fprintf(w, "Backtest: %s\n", r.Strategy)
	fmt.Fprintf(w, "  Period: %s .. %s (%d rows)\n",
		r.Start.Format(time.DateTime), r.End.Format(time.DateTime), r.Rows)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Initial Capital: %.2f\n", s.InitialCapital)
	fmt.Fprintf(w, "  Final Capital:   %.2f\n", s.FinalCapital)
	fmt.Fprintf(w, "  Net Profit:      %.2f (%.2f%%)\n", s.NetProfit, s.TotalReturnPct)
	fmt.Fprintf(w, "  Max Drawdown:    %.2f%%\n", s.MaxDrawdownPct)
	fmt.Fprintf(w, "  Sharpe: %.2f  Calmar: %.2f\n", s.SharpeRatio, s.CalmarRatio)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Trades: %d (won %d, lost %d, win rate %.2f%%)\n", s.TotalTrades, ts.Wins, ts.Losses, s.WinRate)
	fmt.Fprintf(w, "  Profit Factor: %.2f\n", s.ProfitFactor)
	fmt.Fprintf(w, "  Avg Win: %.2f  Avg Loss: %.2f\n", ts.AvgWin, ts.AvgLoss)
	fmt.Fprintf(w, "  Largest Win: %.2f  Largest Loss: %.2f\n", ts.LargestWin, ts.LargestLoss)
	fmt.Fprintf(w, "  Brokerage: %.2f  Taxes: %.2f\n", r.TotalBrokerage, r.TotalTaxes)

	if len(r.Trades) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Trades:")
	for _, t := range r.Trades {
		fmt.Fprintf(w, "    %s  %-18s %4d  %8.2f -> %8.2f  %10.2f  %s\n",
			t.ClosedAt.Format(time.DateTime), t.Symbol, t.Quantity, t.EntryPrice, t.ExitPrice, t.NetPnL, t.ExitReason)
	}
}
