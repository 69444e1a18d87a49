package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/config"
	"github.com/rustyeddy/optiontrader/journal"
	"github.com/rustyeddy/optiontrader/live"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/state"
	"github.com/rustyeddy/optiontrader/strategy"
)

type paperOptions struct {
	data     string
	strategy string
	params   []string
	interval time.Duration
}

func newPaperCmd(ro *RootOptions) *cobra.Command {
	o := &paperOptions{}
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Paper trade a strategy over a replayed bar feed",
		Long: `Paper drives the live engine with one bar per tick from a CSV file.
Orders go to the paper broker and are persisted in the ledger file, so
positions and the daily P&L survive restarts.

Example:
  trader paper --data data/NIFTY.csv --strategy timer --interval 50ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPaper(ctx, ro.Config(), o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.data, "data", "d", "", "bar CSV file or directory of <UNDERLYING>.csv files")
	f.StringVarP(&o.strategy, "strategy", "s", "", "strategy name")
	f.StringArrayVarP(&o.params, "param", "p", nil, "strategy parameter key=value, repeatable")
	f.DurationVar(&o.interval, "interval", 10*time.Millisecond, "wall time per replayed bar")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// paperSession is a live engine on a replay plus the stack behind it.
type paperSession struct {
	engine *live.Engine
	replay *live.Replay
	stack  *stack
}

func newPaperSession(cfg *config.Config, data, name string, params []string, interval time.Duration) (*paperSession, error) {
	lc := cfg.Live
	if interval > 0 {
		lc.Interval = interval
	}
	bars, err := loadBars(data, lc.Underlying)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	sc, err := strategyConfig(cfg.Strategy, name, params)
	if err != nil {
		return nil, err
	}
	strat, err := strategy.New(sc)
	if err != nil {
		return nil, err
	}

	replay := live.NewReplay(lc.Underlying, bars, market.DefaultSurface())
	st, err := openStack(cfg, replay.Now)
	if err != nil {
		return nil, err
	}
	eng, err := live.NewEngine(lc, strat, replay, st.risk, st.paper, market.NewPriceBook(), logger.With("live"))
	if err != nil {
		return nil, err
	}
	return &paperSession{engine: eng, replay: replay, stack: st}, nil
}

func runPaper(ctx context.Context, cfg *config.Config, o *paperOptions) error {
	ps, err := newPaperSession(cfg, o.data, o.strategy, o.params, o.interval)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
	}

	seen := len(ps.stack.ledger.Snapshot().ClosedTrades)
	if err := ps.engine.Run(ctx); err != nil {
		return err
	}
	final := ps.stack.ledger.Snapshot()
	if seen > len(final.ClosedTrades) {
		seen = 0
	}
	if j != nil {
		if err := recordSession(j, final.ClosedTrades[seen:], analytics.EquityPoint{
			Time:   ps.replay.Now(),
			Equity: ps.stack.risk.CurrentCapital(),
		}); err != nil {
			return err
		}
	}
	printLedger(os.Stdout, final)
	return nil
}

func recordSession(j journal.Journal, trades []state.ClosedTrade, eq analytics.EquityPoint) error {
	for _, t := range trades {
		if err := j.RecordTrade(t); err != nil {
			return fmt.Errorf("journal trade %s: %w", t.ID, err)
		}
	}
	if err := j.RecordEquity(eq); err != nil {
		return fmt.Errorf("journal equity: %w", err)
	}
	return nil
}
