package marketdataobs

import (
	"context"
	"time"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

type observableMarketData struct {
	source interfaces.MarketData
	name   string
}

var _ interfaces.MarketData = (*observableMarketData)(nil)

func Wrap(source interfaces.MarketData, name string) interfaces.MarketData {
	return &observableMarketData{
		source: source,
		name:   name,
	}
}

func (om *observableMarketData) Bars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Bars")
	defer span.End()

	begin := time.Now()
	logger.DebugSkip(ctx, 1, "Fetching bars",
		"provider", om.name,
		"instrument", instrument,
		"start", types.DateKey(start),
		"end", types.DateKey(end),
	)

	bars, err := om.source.Bars(ctx, instrument, start, end)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Bar fetch failed", err,
			"provider", om.name,
			"instrument", instrument,
			"duration_ms", time.Since(begin).Milliseconds(),
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Bars fetched",
		"provider", om.name,
		"instrument", instrument,
		"bars", len(bars),
		"duration_ms", time.Since(begin).Milliseconds(),
	)
	return bars, nil
}
