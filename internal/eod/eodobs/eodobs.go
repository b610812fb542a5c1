package eodobs

import (
	"context"
	"time"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD summary generation",
		"date", types.DateKey(t),
	)

	csvPath, err := oes.summarizer.SummarizeDay(ctx, t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err,
			"date", types.DateKey(t),
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for EOD summary",
			"date", types.DateKey(t),
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated successfully",
		"date", types.DateKey(t),
		"csv_path", csvPath,
	)

	return csvPath, nil
}

func (oes *observableEodSummarizer) HoldingsBreakdown(ctx context.Context, t time.Time) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.HoldingsBreakdown")
	defer span.End()

	csvPath, err := oes.summarizer.HoldingsBreakdown(ctx, t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Holdings breakdown failed", err,
			"date", types.DateKey(t),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Holdings breakdown generated",
		"date", types.DateKey(t),
		"csv_path", csvPath,
	)

	return csvPath, nil
}
