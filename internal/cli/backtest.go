package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/journal"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/strategy"
)

type backtestOptions struct {
	data     string
	strategy string
	params   []string
	from     string
	to       string
	capital  float64

	chart  string
	excel  string
	trades string
	db     string
}

func newBacktestCmd(ro *RootOptions) *cobra.Command {
	o := &backtestOptions{}
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through a strategy",
		Long: `Backtest replays a bar CSV (datetime,open,high,low,close,volume and
optionally atm_strike,call_price,put_price,vix) through a strategy and
prints the performance report.

Examples:
  trader backtest --data data/NIFTY.csv --strategy rsi-reversal
  trader backtest --data data --strategy timer -p entry_every_sec=600 --from 2025-01-06 --to 2025-01-10
  trader backtest --data data/NIFTY.csv --chart equity.html --excel report.xlsx --db journal.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd.Context(), ro, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.data, "data", "d", "", "bar CSV file or directory of <UNDERLYING>.csv files")
	f.StringVarP(&o.strategy, "strategy", "s", "", "strategy name ("+strings.Join(strategy.Names(), ", ")+")")
	f.StringArrayVarP(&o.params, "param", "p", nil, "strategy parameter key=value, repeatable")
	f.StringVar(&o.from, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&o.to, "to", "", "last day inclusive, YYYY-MM-DD")
	f.Float64Var(&o.capital, "capital", 0, "starting capital (overrides backtest.capital)")
	f.StringVar(&o.chart, "chart", "", "write an HTML equity chart here")
	f.StringVar(&o.excel, "excel", "", "write an Excel report here")
	f.StringVar(&o.trades, "trades", "", "write the trade log as CSV here")
	f.StringVar(&o.db, "db", "", "record the run in this SQLite journal")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runBacktest(ctx context.Context, ro *RootOptions, o *backtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := ro.Config()
	bt := cfg.Backtest
	if o.capital > 0 {
		bt.Capital = o.capital
	}
	if o.from != "" {
		d, err := parseDay(o.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		bt.Start = d
	}
	if o.to != "" {
		d, err := parseDay(o.to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		bt.End = d.AddDate(0, 0, 1)
	}

	sc, err := strategyConfig(cfg.Strategy, o.strategy, o.params)
	if err != nil {
		return err
	}
	strat, err := strategy.New(sc)
	if err != nil {
		return err
	}
	bars, err := loadBars(o.data, bt.Underlying)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	costs := cfg.Costs
	runner := backtest.Runner{
		Strategy: strat,
		Config:   bt,
		Costs:    &costs,
		Log:      logger.With("backtest"),
	}
	res, err := runner.Run(ctx, bars)
	if err != nil {
		return err
	}
	backtest.PrintResult(os.Stdout, res)

	if o.chart != "" {
		if err := backtest.WriteEquityChart(o.chart, res); err != nil {
			return fmt.Errorf("chart: %w", err)
		}
		fmt.Printf("Chart: %s\n", o.chart)
	}
	if o.excel != "" {
		if err := journal.ExportExcel(o.excel, res.Report, res.Trades); err != nil {
			return fmt.Errorf("excel: %w", err)
		}
		fmt.Printf("Excel: %s\n", o.excel)
	}
	if o.trades != "" {
		if err := journal.WriteTradesCSV(o.trades, res.Trades); err != nil {
			return fmt.Errorf("trades: %w", err)
		}
		fmt.Printf("Trades: %s\n", o.trades)
	}
	if o.db != "" {
		j, err := journal.NewSQLite(o.db)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		runID, err := j.RecordBacktest(ctx, res)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Printf("Journal: %s (run %s)\n", o.db, runID)
	}
	return nil
}
