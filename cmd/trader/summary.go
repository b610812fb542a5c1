package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
)

func newSummaryCmd(rc *rootConfig) *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Write the end-of-day trade summary and holdings breakdown CSVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, rc.configPath)
			if err != nil {
				return err
			}
			day, err := parseDate(dateStr)
			if err != nil {
				return err
			}
			led, err := openLedger(ctx, cfg)
			if err != nil {
				return err
			}
			defer led.Close()

			s := initializeEOD(cfg, led)
			summary, err := s.SummarizeDay(ctx, day)
			if err != nil {
				return err
			}
			holdings, err := s.HoldingsBreakdown(ctx, day)
			if err != nil {
				return err
			}
			if summary != "" {
				fmt.Fprintln(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), holdings)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "report date YYYY-MM-DD (default: today in exchange time)")
	return cmd
}

// writeReports produces both reports after a run. Failures are logged only;
// the run itself has already been committed.
func writeReports(ctx context.Context, s interfaces.EodSummarizer, day time.Time) {
	if _, err := s.SummarizeDay(ctx, day); err != nil {
		logger.Warn(ctx, "Failed to write EOD summary", "error", err)
	}
	if _, err := s.HoldingsBreakdown(ctx, day); err != nil {
		logger.Warn(ctx, "Failed to write holdings breakdown", "error", err)
	}
}
