package eod

import (
	"github.com/shopspring/decimal"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/store"
)

// NewSummarizer writes reports under storage.report_dir.
func NewSummarizer(ledger LedgerReader, cfg *store.Config) interfaces.EodSummarizer {
	return &eodSummarizer{
		ledger:      ledger,
		dir:         cfg.Storage.ReportDir,
		initialCash: decimal.NewFromFloat(cfg.InitialCapital),
	}
}
