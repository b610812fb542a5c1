package llmobs

import (
	"context"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

// observableJudge wraps a Judge with observability (logging & tracing)
type observableJudge struct {
	judge interfaces.Judge
}

// Compile-time interface check
var _ interfaces.Judge = (*observableJudge)(nil)

// Wrap wraps a judge with observability middleware
func Wrap(judge interfaces.Judge) interfaces.Judge {
	return &observableJudge{judge: judge}
}

func (oj *observableJudge) Judge(ctx context.Context, req types.JudgmentRequest) types.Judgment {
	ctx, span := trace.StartSpan(ctx, "llm.Judge")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting judgment",
		"instrument", req.Instrument,
		"date", types.DateKey(req.Date),
		"rule_action", req.Rule.Action,
		"rows", len(req.Rows),
	)

	j := oj.judge.Judge(ctx, req)

	if j.Neutral {
		logger.WarnSkip(ctx, 1, "Judgment unavailable, using neutral hold",
			"instrument", req.Instrument,
			"attempts", j.Attempts,
			"reason", j.Reasoning,
		)
		return j
	}

	logger.InfoSkip(ctx, 1, "Judgment received",
		"instrument", req.Instrument,
		"model", j.Model,
		"action", j.Action,
		"confidence", j.Confidence,
		"attempts", j.Attempts,
	)
	return j
}
