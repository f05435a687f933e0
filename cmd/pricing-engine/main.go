// pricing-engine prices portfolios of financial instruments against a
// market-data snapshot, from the command line or as a service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rzzdr/quant-pricing-engine/config"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pricing-engine",
	Short: "Market-data driven pricing engine",
	Long: `pricing-engine values futures, bonds, KTB futures, swaps, FX futures,
vanilla options, stocks and cash against a market-data scenario, grouping
instruments into engines that are calculated in parallel.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.App.LogLevel
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		logger.Init(level, cfg.App.Environment)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.GetLogger("main").Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (defaults and QPE_ environment only when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pricing-engine %s (%s)\n", version, commit)
	},
}
