package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optiontrader/config"
)

func newConfigCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return err
			}
			fmt.Printf("Created default configuration: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "trader.yaml", "output path (.yaml or .json)")

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a configuration file loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Configuration valid: %s\n", args[0])
			fmt.Printf("  Capital:  %.2f (daily loss cap %.1f%%)\n", cfg.Risk.TotalCapital, cfg.Risk.MaxDailyLossPct*100)
			fmt.Printf("  Sizer:    %s\n", cfg.Risk.Sizer.Name)
			fmt.Printf("  Strategy: %s\n", cfg.Strategy.Name)
			fmt.Printf("  Journal:  %s\n", orNone(cfg.Journal.Type))
			return nil
		},
	}

	cmd.AddCommand(initCmd, validate)
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
