package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func bars(n int, end time.Time) []types.Bar {
	out := make([]types.Bar, n)
	for i := range out {
		out[i] = types.Bar{Date: end.AddDate(0, 0, i-n+1), Open: 10, High: 10, Low: 10, Close: 10, Volume: 1e6}
	}
	return out
}

// flakySource fails the first failures calls.
type flakySource struct {
	failures int
	calls    int
	bars     []types.Bar
}

func (s *flakySource) Bars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("connection reset")
	}
	return s.bars, nil
}

type memCache struct {
	saved map[string][]types.Bar
}

func (m *memCache) SaveBars(ctx context.Context, instrument string, b []types.Bar) (int, error) {
	m.saved[instrument] = append(m.saved[instrument], b...)
	return len(b), nil
}

func (m *memCache) LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error) {
	return m.saved[instrument], nil
}

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Data.MaxRetries = 3
	cfg.Data.RetryBaseMs = 500
	return cfg
}

func newTestFetcher(src *flakySource, cache *memCache) (*Fetcher, *[]time.Duration) {
	var sleeps []time.Duration
	f := NewFetcher(src, cache, testConfig(), WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}))
	return f, &sleeps
}

func TestHistoryRetriesWithIncreasingDelay(t *testing.T) {
	src := &flakySource{failures: 2, bars: bars(5, day0)}
	cache := &memCache{saved: map[string][]types.Bar{}}
	f, sleeps := newTestFetcher(src, cache)

	h, err := f.History(context.Background(), "510300", day0.AddDate(0, 0, -10), day0)
	require.NoError(t, err)
	assert.True(t, h.Fresh)
	assert.Len(t, h.Bars, 5)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *sleeps)
	assert.Len(t, cache.saved["510300"], 5, "fresh bars are cached")
}

func TestHistoryFallsBackToCache(t *testing.T) {
	src := &flakySource{failures: 10}
	cache := &memCache{saved: map[string][]types.Bar{"510300": bars(4, day0.AddDate(0, 0, 1))}}
	f, sleeps := newTestFetcher(src, cache)

	h, err := f.History(context.Background(), "510300", day0.AddDate(0, 0, -10), day0)
	require.NoError(t, err)
	assert.False(t, h.Fresh)
	assert.Len(t, h.Bars, 3, "bars after end are dropped")
	assert.Equal(t, 3, src.calls)
	assert.Len(t, *sleeps, 2)
}

func TestHistoryUnavailableWithoutCache(t *testing.T) {
	src := &flakySource{failures: 10}
	f, _ := newTestFetcher(src, &memCache{saved: map[string][]types.Bar{}})

	_, err := f.History(context.Background(), "510300", day0.AddDate(0, 0, -10), day0)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
	assert.ErrorContains(t, err, "connection reset")
}

func TestHistoryTreatsEmptyResultAsFailure(t *testing.T) {
	src := &flakySource{}
	cache := &memCache{saved: map[string][]types.Bar{"510300": bars(2, day0)}}
	f, _ := newTestFetcher(src, cache)

	h, err := f.History(context.Background(), "510300", day0.AddDate(0, 0, -10), day0)
	require.NoError(t, err)
	assert.False(t, h.Fresh)
	assert.Equal(t, 3, src.calls)
}

func TestHistoryStopsOnCancel(t *testing.T) {
	src := &flakySource{failures: 10}
	cache := &memCache{saved: map[string][]types.Bar{}}
	f, _ := newTestFetcher(src, cache)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.History(ctx, "510300", day0.AddDate(0, 0, -10), day0)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
	assert.Equal(t, 1, src.calls)
}
