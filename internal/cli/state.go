package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/state"
)

func newStateCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the paper ledger",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print open positions, today's trades and the kill switch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStack(ro.Config(), nil)
			if err != nil {
				return err
			}
			snap := st.ledger.Snapshot()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printLedger(os.Stdout, snap)
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the raw ledger document")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear positions, orders, trades and the kill switch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStack(ro.Config(), nil)
			if err != nil {
				return err
			}
			if err := st.ledger.Reset(); err != nil {
				return err
			}
			st.risk.Reset()
			fmt.Printf("Ledger reset: %s\n", ro.Config().Broker.StateFile)
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

func printLedger(w io.Writer, s state.TradeState) {
	fmt.Fprintf(w, "Daily P&L:    %.2f\n", s.DailyPnL)
	fmt.Fprintf(w, "Kill switch:  %v\n", s.KillSwitchActive)
	fmt.Fprintf(w, "Last updated: %s\n", s.LastUpdated.Format("2006-01-02 15:04:05"))

	symbols := make([]string, 0, len(s.OpenPositions))
	for sym := range s.OpenPositions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	fmt.Fprintf(w, "\nOpen positions: %d\n", len(symbols))
	for _, sym := range symbols {
		p := s.OpenPositions[sym]
		fmt.Fprintf(w, "  %-18s %-4s qty=%-5d entry=%.2f sl=%.2f tgt=%.2f\n",
			p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.Target)
	}

	fmt.Fprintf(w, "\nClosed trades: %d\n", len(s.ClosedTrades))
	for _, t := range s.ClosedTrades {
		fmt.Fprintf(w, "  %s %-18s qty=%-5d %.2f -> %.2f pnl=%.2f (%s)\n",
			t.ClosedAt.Format("15:04"), t.Symbol, t.Quantity, t.EntryPrice, t.ExitPrice, t.NetPnL, t.ExitReason)
	}
}
