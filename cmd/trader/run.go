package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(rc *rootConfig) *cobra.Command {
	var (
		dateStr string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily pipeline for one trading date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, rc.configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Mode = "DRY_RUN"
			}
			asOf, err := parseDate(dateStr)
			if err != nil {
				return err
			}

			led, err := openLedger(ctx, cfg)
			if err != nil {
				return err
			}
			defer led.Close()

			judge, err := initializeJudge(ctx, cfg)
			if err != nil {
				return err
			}
			runner, err := initializeRunner(cfg, initializeHistory(ctx, cfg, led), judge, led)
			if err != nil {
				return err
			}

			res, err := runner.Run(ctx, asOf)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}

			if !res.DryRun {
				writeReports(ctx, initializeEOD(cfg, led), asOf)
			}
			compressOldLogs(ctx, cfg)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "trading date YYYY-MM-DD (default: today in exchange time)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without writing trades, decisions or the snapshot")
	return cmd
}
