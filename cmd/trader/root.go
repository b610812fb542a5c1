package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"etf-trader/internal/trace"
)

type rootConfig struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	rc := &rootConfig{}
	cmd := &cobra.Command{
		Use:   "trader",
		Short: "Daily ETF signal fusion, sizing and risk control",
		Long: `trader runs one trading day at a time over a two tier ETF universe.

Rule signals computed from daily bars are reconciled with a language model
judgment; capital only moves when both agree. Fills are simulated with
slippage and fees and recorded in an append-only SQLite ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = trace.Shutdown(ctx)
		},
	}
	cmd.PersistentFlags().StringVar(&rc.configPath, "config", "config.yaml", "path to the yaml config")

	cmd.AddCommand(
		newRunCmd(rc),
		newReplayCmd(rc),
		newSummaryCmd(rc),
		newCompressLogsCmd(rc),
	)
	return cmd
}
