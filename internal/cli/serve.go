package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/service"
	"github.com/rustyeddy/optiontrader/transport/httpapi"
)

type serveOptions struct {
	addr     string
	data     string
	trade    string
	strategy string
	params   []string
}

func newServeCmd(ro *RootOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API, optionally with a paper trading loop",
		Long: `Serve exposes risk, positions, ledger, strategy deployment and
streaming backtests over HTTP. With --trade it also runs the paper engine
over a replayed feed in the same process.

Examples:
  trader serve --data data
  trader serve --data data --trade data/NIFTY.csv --strategy timer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, ro, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "", "listen address (overrides http.addr)")
	f.StringVarP(&o.data, "data", "d", "", "directory of <SYMBOL>.csv files for backtests")
	f.StringVar(&o.trade, "trade", "", "bar CSV to paper trade while serving")
	f.StringVarP(&o.strategy, "strategy", "s", "", "strategy for --trade")
	f.StringArrayVarP(&o.params, "param", "p", nil, "strategy parameter key=value, repeatable")
	return cmd
}

func runServe(ctx context.Context, ro *RootOptions, o *serveOptions) error {
	cfg := ro.Config()
	addr := cfg.HTTP.Addr
	if o.addr != "" {
		addr = o.addr
	}
	if o.data == "" {
		o.data = cfg.Data.Path
	}

	book := market.NewPriceBook()
	provider := market.NewCSVProvider(o.data, book)
	provider.Location = market.IST

	var (
		ps  *paperSession
		st  *stack
		err error
	)
	if o.trade != "" {
		if ps, err = newPaperSession(cfg, o.trade, o.strategy, o.params, 0); err != nil {
			return err
		}
		st = ps.stack
		book = ps.engine.Book()
		provider.Book = book
	} else if st, err = openStack(cfg, nil); err != nil {
		return err
	}

	svc, err := service.New(service.Deps{
		Risk:     st.risk,
		Ledger:   st.ledger,
		Broker:   st.paper,
		Provider: provider,
		Book:     book,
		Backtest: cfg.Backtest,
		Log:      logger.With("service"),
	})
	if err != nil {
		return err
	}
	srv, err := httpapi.NewServer(addr, svc, logger.With("http"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	if ps != nil {
		g.Go(func() error { return ps.engine.Run(ctx) })
	}
	return g.Wait()
}
