package interfaces

import (
	"context"
	"time"

	"etf-trader/internal/types"
)

// MarketData supplies ordered daily bars. Errors may be transient.
type MarketData interface {
	Bars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error)
}

// HistorySource fetches bars with retries and falls back to stored history.
// It fails with types.ErrDataUnavailable only when neither is available.
type HistorySource interface {
	History(ctx context.Context, instrument string, start, end time.Time) (types.History, error)
}
