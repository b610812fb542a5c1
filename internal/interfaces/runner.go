package interfaces

import (
	"context"
	"time"

	"etf-trader/internal/types"
)

// Runner executes the daily pipeline for one trading date.
type Runner interface {
	Run(ctx context.Context, asOf time.Time) (*types.RunResult, error)
}
