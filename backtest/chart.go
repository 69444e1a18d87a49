package backtest

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteEquityChart renders the equity curve and drawdown of r as a
// standalone HTML page.
func WriteEquityChart(path string, r Result) error {
	curve := r.Report.EquityCurve
	if len(curve) == 0 {
		return fmt.Errorf("equity chart: empty curve")
	}

	xs := make([]string, 0, len(curve))
	equity := make([]opts.LineData, 0, len(curve))
	drawdown := make([]opts.LineData, 0, len(curve))
	for _, p := range curve {
		xs = append(xs, p.Time.Format(time.DateTime))
		equity = append(equity, opts.LineData{Value: p.Equity})
		drawdown = append(drawdown, opts.LineData{Value: -p.DrawdownPct})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Equity: " + r.Strategy,
			Subtitle: fmt.Sprintf("net %.2f, max drawdown %.2f%%", r.Report.Summary.NetProfit, r.Report.Summary.MaxDrawdownPct),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetXAxis(xs).
		AddSeries("Equity", equity).
		AddSeries("Drawdown %", drawdown)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("equity chart: render: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("equity chart: %w", err)
	}
	return nil
}
