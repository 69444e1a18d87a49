package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/config"
	"github.com/rustyeddy/optiontrader/journal"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/state"
	"github.com/rustyeddy/optiontrader/strategy"
)

// stack is the paper trading core shared by paper and serve.
type stack struct {
	ledger *state.Manager
	risk   *risk.Manager
	paper  *broker.Paper
}

// openStack loads the ledger and restores the risk manager's daily P&L and
// kill switch from it.
func openStack(cfg *config.Config, now func() time.Time) (*stack, error) {
	log := logger.L()
	store := state.NewJSONStore(cfg.Broker.StateFile, logger.With("state"))
	if now != nil {
		store = store.WithClock(now)
	}
	ledger := state.NewManager(store, logger.With("ledger"))
	st, err := ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	sizer, err := risk.NewSizer(cfg.Risk.Sizer)
	if err != nil {
		return nil, err
	}
	rm := risk.NewManager(cfg.Risk.Config, sizer, logger.With("risk"))
	rm.RestoreState(st.DailyPnL, st.KillSwitchActive)

	opts := []broker.PaperOption{
		broker.WithSlippage(cfg.Broker.SlippagePct),
		broker.WithCosts(cfg.Costs),
		broker.WithLogger(logger.With("paper")),
	}
	if now != nil {
		opts = append(opts, broker.WithClock(now))
	}
	log.Info("ledger loaded", "file", cfg.Broker.StateFile, "open", len(st.OpenPositions),
		"daily_pnl", st.DailyPnL, "kill_switch", st.KillSwitchActive)
	return &stack{ledger: ledger, risk: rm, paper: broker.NewPaper(ledger, rm, opts...)}, nil
}

// loadBars reads a single CSV file, or <dir>/<UNDERLYING>.csv when path is
// a directory.
func loadBars(path, underlying string) ([]market.Bar, error) {
	if path == "" {
		return nil, errors.New("a data file or directory is required")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		path = filepath.Join(path, strings.ToUpper(underlying)+".csv")
	}
	return market.LoadBarsFile(path, market.IST)
}

// strategyConfig overlays --strategy and --param flags on the configured
// strategy.
func strategyConfig(base strategy.Config, name string, params []string) (strategy.Config, error) {
	out := strategy.Config{Name: base.Name, Params: map[string]float64{}}
	for k, v := range base.Params {
		out.Params[k] = v
	}
	if name != "" && name != base.Name {
		out.Name = name
		out.Params = map[string]float64{}
	}
	for _, kv := range params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return out, fmt.Errorf("param %q: want key=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return out, fmt.Errorf("param %q: %w", kv, err)
		}
		out.Params[strings.TrimSpace(k)] = f
	}
	return out, nil
}

// openJournal returns nil when no journal is configured.
func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "csv":
		return journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, market.IST)
}
