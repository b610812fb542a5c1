package interfaces

import (
	"context"
	"time"
)

type EodSummarizer interface {
	SummarizeDay(ctx context.Context, day time.Time) (csvPath string, err error)
	HoldingsBreakdown(ctx context.Context, day time.Time) (csvPath string, err error)
}
