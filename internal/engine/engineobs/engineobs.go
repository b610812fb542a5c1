package engineobs

import (
	"context"
	"time"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

type observableRunner struct {
	runner interfaces.Runner
}

var _ interfaces.Runner = (*observableRunner)(nil)

func Wrap(r interfaces.Runner) interfaces.Runner {
	return &observableRunner{
		runner: r,
	}
}

func (or *observableRunner) Run(ctx context.Context, asOf time.Time) (*types.RunResult, error) {
	ctx, span := trace.StartSpan(ctx, "runner.Run")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting daily run",
		"date", types.DateKey(asOf),
	)

	result, err := or.runner.Run(ctx, asOf)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Daily run failed", err,
			"date", types.DateKey(asOf),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Daily run completed",
		"date", types.DateKey(asOf),
		"run_id", result.RunID,
		"waves", result.Waves,
		"judgment_calls", result.JudgmentCalls,
		"trades", len(result.Trades),
		"total_equity", result.Snapshot.TotalEquity.StringFixed(2),
		"dry_run", result.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
