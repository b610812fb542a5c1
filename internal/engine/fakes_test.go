package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"etf-trader/internal/types"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// memLedger is an in-memory interfaces.Ledger.
type memLedger struct {
	mu        sync.Mutex
	trades    []types.Trade
	decisions []types.Decision
	snapshots map[string]types.EquitySnapshot
	bars      map[string][]types.Bar
	failTrade error
}

func newMemLedger() *memLedger {
	return &memLedger{snapshots: map[string]types.EquitySnapshot{}, bars: map[string][]types.Bar{}}
}

func (m *memLedger) SaveBars(ctx context.Context, instrument string, bars []types.Bar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[instrument] = append(m.bars[instrument], bars...)
	return len(bars), nil
}

func (m *memLedger) LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bars[instrument], nil
}

func (m *memLedger) AppendTrade(ctx context.Context, t types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTrade != nil {
		return m.failTrade
	}
	m.trades = append(m.trades, t)
	return nil
}

func (m *memLedger) Trades(ctx context.Context) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Trade(nil), m.trades...), nil
}

func (m *memLedger) TradesOn(ctx context.Context, date time.Time) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Trade
	for _, t := range m.trades {
		if t.Date.Equal(date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memLedger) AppendDecision(ctx context.Context, d types.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *memLedger) DecisionsOn(ctx context.Context, date time.Time) ([]types.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Decision
	for _, d := range m.decisions {
		if d.Date.Equal(date) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memLedger) AppendSnapshot(ctx context.Context, s types.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := types.DateKey(s.Date)
	if _, ok := m.snapshots[key]; ok {
		return types.ErrSnapshotExists
	}
	m.snapshots[key] = s
	return nil
}

func (m *memLedger) Snapshot(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[types.DateKey(date)]
	return s, ok, nil
}

func (m *memLedger) LatestSnapshotBefore(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best types.EquitySnapshot
	found := false
	for _, s := range m.snapshots {
		if s.Date.Before(date) && (!found || s.Date.After(best.Date)) {
			best, found = s, true
		}
	}
	return best, found, nil
}

// fakeHistory serves canned histories; a missing instrument is unavailable.
type fakeHistory struct {
	histories map[string]types.History
}

func (f *fakeHistory) History(ctx context.Context, instrument string, start, end time.Time) (types.History, error) {
	h, ok := f.histories[instrument]
	if !ok {
		return types.History{}, errors.Join(types.ErrDataUnavailable, errors.New("provider down"))
	}
	return h, nil
}

// fakeJudge answers with a fixed action per instrument and records calls.
type fakeJudge struct {
	mu      sync.Mutex
	answers map[string]types.Judgment
	calls   []string
}

func (f *fakeJudge) Judge(ctx context.Context, req types.JudgmentRequest) types.Judgment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Instrument)
	if j, ok := f.answers[req.Instrument]; ok {
		j.Instrument, j.Date = req.Instrument, req.Date
		return j
	}
	return types.Judgment{Instrument: req.Instrument, Date: req.Date, Action: types.ActionBuy, Confidence: 0.7, Reasoning: "looks strong", Model: "fake", Attempts: 1}
}

func (f *fakeJudge) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// barsEnding returns one bar per day for closes, the last dated end.
func barsEnding(end time.Time, closes ...float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Date:   end.AddDate(0, 0, i-len(closes)+1),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1e6,
		}
	}
	return bars
}

func flatThen(n int, px, last float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = px
	}
	closes[n-1] = last
	return closes
}
