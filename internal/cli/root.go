// Package cli holds the trader command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/config"
	"github.com/rustyeddy/optiontrader/logger"
)

// RootOptions are the persistent flags shared by every command.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	StateFile  string

	cfg *config.Config
}

// Config returns the loaded configuration with flag overrides applied.
func (o *RootOptions) Config() *config.Config {
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	return o.cfg
}

func (o *RootOptions) load() error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.ConfigPath); err != nil {
			return err
		}
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.StateFile != "" {
		cfg.Broker.StateFile = o.StateFile
	}
	o.cfg = cfg
	logger.Configure(cfg.Log.Options())
	return nil
}

func NewRootCmd() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trader",
		Short: "Options trading engine: backtest, paper trade and serve the control API",
		Long: `trader runs index option strategies against historical bars or a
simulated live feed, keeps a persistent paper ledger and exposes it over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ro.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&ro.ConfigPath, "config", "c", "", "path to YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&ro.StateFile, "state", "", "paper ledger file (overrides broker.state_file)")

	cmd.AddCommand(
		newBacktestCmd(ro),
		newPaperCmd(ro),
		newServeCmd(ro),
		newStateCmd(ro),
		newJournalCmd(ro),
		newConfigCmd(ro),
		newVersionCmd(),
	)
	return cmd
}

func Execute() {
	err := NewRootCmd().Execute()
	_ = logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
