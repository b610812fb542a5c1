package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"etf-trader/internal/tradelog"
)

func newCompressLogsCmd(rc *rootConfig) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "compress-logs",
		Short: "Gzip audit logs older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), rc.configPath)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Storage.LogRetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("no retention configured: set --days or storage.log_retention_days")
			}
			n, err := tradelog.CompressOlder(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compressed %d audit files\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: storage.log_retention_days)")
	return cmd
}
