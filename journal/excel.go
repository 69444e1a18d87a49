package journal

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
)

const (
	sheetTrades  = "Trades"
	sheetEquity  = "Equity"
	sheetSummary = "Summary"
)

// ExportExcel writes a workbook with Trades, Equity and Summary sheets.
func ExportExcel(path string, report analytics.Report, trades []broker.ClosedTrade) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetTrades); err != nil {
		return err
	}
	for _, name := range []string{sheetEquity, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := writeRow(f, sheetTrades, 1, toAny(tradeHeader)); err != nil {
		return err
	}
	for i, t := range trades {
		row := []any{
			t.ID, t.Mode, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice,
			t.OpenedAt, t.ClosedAt, t.NetPnL, t.PnLPct, t.Charges.Total, t.ExitReason, t.Tag,
		}
		if err := writeRow(f, sheetTrades, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetTrades, "A", "C", 20)
	_ = f.SetColWidth(sheetTrades, "H", "I", 22)

	if err := writeRow(f, sheetEquity, 1, toAny(equityHeader)); err != nil {
		return err
	}
	for i, e := range report.EquityCurve {
		if err := writeRow(f, sheetEquity, i+2, []any{e.Time, e.Equity, e.DrawdownPct}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetEquity, "A", "A", 22)

	s := report.Summary
	ts := report.TradeStats
	summary := [][]any{
		{"Initial Capital", s.InitialCapital},
		{"Final Capital", s.FinalCapital},
		{"Net Profit", s.NetProfit},
		{"Total Return %", s.TotalReturnPct},
		{"Total Trades", s.TotalTrades},
		{"Win Rate %", s.WinRate},
		{"Profit Factor", s.ProfitFactor},
		{"Sharpe Ratio", s.SharpeRatio},
		{"Calmar Ratio", s.CalmarRatio},
		{"Max Drawdown %", s.MaxDrawdownPct},
		{"Wins", ts.Wins},
		{"Losses", ts.Losses},
		{"Avg Win", ts.AvgWin},
		{"Avg Loss", ts.AvgLoss},
		{"Largest Win", ts.LargestWin},
		{"Largest Loss", ts.LargestLoss},
		{"Avg Hold Hours", ts.AvgHoldHours},
	}
	for i, row := range summary {
		if err := writeRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 20)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
