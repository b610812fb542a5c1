package interfaces

import (
	"context"

	"etf-trader/internal/types"
)

// Completer sends one prompt to one model and returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, model string, prompt types.Prompt) (string, error)
}

// Judge produces a Judgment for one instrument. It never fails; an
// unreachable service degrades to the neutral Judgment.
type Judge interface {
	Judge(ctx context.Context, req types.JudgmentRequest) types.Judgment
}
