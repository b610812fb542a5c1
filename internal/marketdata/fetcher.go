package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

// BarCache is the part of the ledger that persists bars.
type BarCache interface {
	SaveBars(ctx context.Context, instrument string, bars []types.Bar) (int, error)
	LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Fetcher)

func WithSleep(fn SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// Fetcher retries a MarketData provider and falls back to cached bars.
type Fetcher struct {
	source     interfaces.MarketData
	cache      BarCache
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
}

var _ interfaces.HistorySource = (*Fetcher)(nil)

func NewFetcher(source interfaces.MarketData, cache BarCache, cfg *store.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:     source,
		cache:      cache,
		maxRetries: cfg.Data.MaxRetries,
		baseDelay:  time.Duration(cfg.Data.RetryBaseMs) * time.Millisecond,
		sleep:      sleepCtx,
	}
	if f.maxRetries < 1 {
		f.maxRetries = 1
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// History returns fresh provider bars, persisting them, or the cached bars
// when every attempt failed. The delay grows linearly with the attempt.
func (f *Fetcher) History(ctx context.Context, instrument string, start, end time.Time) (types.History, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		bars, err := f.source.Bars(ctx, instrument, start, end)
		if err == nil && len(bars) == 0 {
			err = errors.New("provider returned no bars")
		}
		if err == nil {
			if n, err := f.cache.SaveBars(ctx, instrument, bars); err != nil {
				logger.ErrorWithErr(ctx, "Failed to cache bars", err, "instrument", instrument)
			} else if n > 0 {
				logger.Debug(ctx, "Cached new bars", "instrument", instrument, "inserted", n)
			}
			return types.History{Instrument: instrument, Bars: bars, Fresh: true}, nil
		}

		lastErr = err
		logger.Warn(ctx, "Market data fetch failed",
			"instrument", instrument,
			"attempt", attempt,
			"max_retries", f.maxRetries,
			"error", err.Error(),
		)
		if attempt == f.maxRetries {
			break
		}
		if err := f.sleep(ctx, f.baseDelay*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	cached, err := f.cache.LoadBars(ctx, instrument, start)
	if err != nil {
		return types.History{}, fmt.Errorf("%w: %s: load cached bars: %v (last fetch error: %v)", types.ErrDataUnavailable, instrument, err, lastErr)
	}
	cached = through(cached, end)
	if len(cached) == 0 {
		return types.History{}, fmt.Errorf("%w: %s: %v", types.ErrDataUnavailable, instrument, lastErr)
	}
	logger.Warn(ctx, "Falling back to cached bars",
		"instrument", instrument,
		"bars", len(cached),
		"last_bar", types.DateKey(cached[len(cached)-1].Date),
	)
	return types.History{Instrument: instrument, Bars: cached, Fresh: false}, nil
}

func through(bars []types.Bar, end time.Time) []types.Bar {
	n := len(bars)
	for n > 0 && bars[n-1].Date.After(end) {
		n--
	}
	return bars[:n]
}
