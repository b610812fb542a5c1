package main

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"etf-trader/internal/engine"
)

func newReplayCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Print the portfolio derived from the trade ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, rc.configPath)
			if err != nil {
				return err
			}
			led, err := openLedger(ctx, cfg)
			if err != nil {
				return err
			}
			defer led.Close()

			trades, err := led.Trades(ctx)
			if err != nil {
				return err
			}
			state, err := engine.Replay(decimal.NewFromFloat(cfg.InitialCapital), trades)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"trades":    len(trades),
				"cash":      state.Cash,
				"positions": state.Positions,
			})
		},
	}
}
