package noop

import (
	"context"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/types"
)

// Completer answers every prompt with a zero-confidence hold without any
// network call. Useful for offline runs.
type Completer struct{}

var _ interfaces.Completer = Completer{}

func (Completer) Complete(ctx context.Context, model string, p types.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return `{"decision":"hold","confidence":0,"reasoning":"no completion provider configured"}`, nil
}
