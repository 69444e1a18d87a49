package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/journal"
	"github.com/rustyeddy/optiontrader/market"
)

func newJournalCmd(ro *RootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite trade journal",
		Long: `Query trades and backtest runs recorded in the SQLite journal.

Examples:
  trader journal trade <trade-id>
  trader journal today
  trader journal day 2025-01-06
  trader journal runs
  trader journal sync`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "journal database (overrides journal.db_path)")

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			path = ro.Config().Journal.DBPath
		}
		if path == "" {
			path = "./trader.sqlite"
		}
		return journal.NewSQLite(path)
	}

	listDay := func(ctx context.Context, day time.Time) error {
		j, err := open()
		if err != nil {
			return err
		}
		defer j.Close()
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, market.IST)
		trades, err := j.ListTradesClosedBetween(ctx, start, start.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		fmt.Println(journal.FormatTradesOrg(trades))
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "trade <trade-id>",
			Short: "Show one trade as an Org entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()
				t, err := j.GetTrade(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(journal.FormatTradeOrg(t))
				return nil
			},
		},
		&cobra.Command{
			Use:   "today",
			Short: "List trades closed today",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listDay(cmd.Context(), time.Now().In(market.IST))
			},
		},
		&cobra.Command{
			Use:   "day <YYYY-MM-DD>",
			Short: "List trades closed on a day",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				day, err := parseDay(args[0])
				if err != nil {
					return fmt.Errorf("date: %w", err)
				}
				return listDay(cmd.Context(), day)
			},
		},
		&cobra.Command{
			Use:   "runs",
			Short: "List recorded backtest runs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()
				runs, err := j.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Fprintf(os.Stdout, "%s  %-14s %s..%s  trades=%-4d net=%.2f ret=%.2f%% dd=%.2f%%\n",
						r.RunID, r.Strategy, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
						r.Trades, r.NetProfit, r.ReturnPct, r.MaxDrawdownPct)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Copy the paper ledger's closed trades into the journal",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := openStack(ro.Config(), nil)
				if err != nil {
					return err
				}
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()
				n, err := j.RecordTrades(cmd.Context(), st.ledger.Snapshot().ClosedTrades)
				if err != nil {
					return err
				}
				fmt.Printf("%d new trades journaled\n", n)
				return nil
			},
		},
	)
	return cmd
}
