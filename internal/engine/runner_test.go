package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

const baseConfig = `
mode: LIVE
initial_capital: 100000
universe:
  core: [A]
strategy:
  mode: BREAKOUT
llm:
  provider: noop
  daily_cap: 10
sizing:
  base_pct: 0.2
  min_pct: 0.05
  max_pct: 0.3
  lot_size: 100
`

func testConfig(t *testing.T, core, observe []string) *store.Config {
	t.Helper()
	cfg, err := store.ParseConfig([]byte(baseConfig))
	require.NoError(t, err)
	cfg.Universe.Core = core
	cfg.Universe.Observe = observe
	return cfg
}

func breakoutBars() []types.Bar { return barsEnding(day0, flatThen(30, 10, 11)...) }
func flatBars() []types.Bar     { return barsEnding(day0, flatThen(30, 10, 10)...) }

func fresh(bars []types.Bar) types.History { return types.History{Bars: bars, Fresh: true} }

type fixture struct {
	cfg     *store.Config
	ledger  *memLedger
	history *fakeHistory
	judge   *fakeJudge
}

func newFixture(t *testing.T, core, observe []string) *fixture {
	return &fixture{
		cfg:     testConfig(t, core, observe),
		ledger:  newMemLedger(),
		history: &fakeHistory{histories: map[string]types.History{}},
		judge:   &fakeJudge{answers: map[string]types.Judgment{}},
	}
}

func (f *fixture) run(t *testing.T) (*types.RunResult, error) {
	t.Helper()
	r, err := NewRunner(f.cfg, f.history, f.judge, f.ledger)
	require.NoError(t, err)
	return r.Run(context.Background(), day0)
}

func outcomeOf(res *types.RunResult, inst string) *types.Outcome {
	for i := range res.Outcomes {
		if res.Outcomes[i].Instrument == inst {
			return &res.Outcomes[i]
		}
	}
	return nil
}

func TestRunDailyCapLimitsJudgmentCalls(t *testing.T) {
	core := []string{"A", "B", "C", "D", "E"}
	f := newFixture(t, core, nil)
	f.cfg.LLM.DailyCap = 2
	for _, inst := range core {
		f.history.histories[inst] = fresh(breakoutBars())
	}

	res, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 2, res.JudgmentCalls)
	assert.ElementsMatch(t, []string{"A", "B"}, f.judge.called())
	for _, inst := range []string{"C", "D", "E"} {
		o := outcomeOf(res, inst)
		require.NotNil(t, o, inst)
		require.NotNil(t, o.Judgment, inst)
		assert.True(t, o.Judgment.Neutral)
		assert.Zero(t, o.Judgment.Confidence)
		assert.Equal(t, "daily judgment cap reached", o.Judgment.Reasoning)
		assert.Equal(t, types.ActionHold, o.Decision.Action)
		assert.Nil(t, o.Trade)
	}

	require.Len(t, res.Trades, 2)
	for _, tr := range res.Trades {
		assert.Equal(t, types.ActionBuy, tr.Action)
		assert.EqualValues(t, 1800, tr.Quantity)
		assert.Equal(t, types.TriggerConsensus, tr.Trigger)
	}
	assert.Len(t, f.ledger.trades, 2)
	assert.Len(t, f.ledger.decisions, 5)
	assert.Equal(t, 1, res.Waves)
	assert.Contains(t, f.ledger.snapshots, types.DateKey(day0))
	assert.False(t, res.Snapshot.Stale)
}

func TestRunObservePoolOnlyWhenCoreDoesNotBuy(t *testing.T) {
	f := newFixture(t, []string{"A"}, []string{"B"})
	f.history.histories["A"] = fresh(flatBars())
	f.history.histories["B"] = fresh(breakoutBars())

	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Waves)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "B", res.Trades[0].Instrument)
	assert.Equal(t, types.PoolObserve, outcomeOf(res, "B").Pool)

	g := newFixture(t, []string{"A"}, []string{"B"})
	g.history.histories["A"] = fresh(breakoutBars())
	g.history.histories["B"] = fresh(breakoutBars())

	res, err = g.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Waves)
	assert.Equal(t, []string{"A"}, g.judge.called())
	assert.Nil(t, outcomeOf(res, "B"))
}

func TestRunIsolatesInstrumentFailures(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, nil)
	f.history.histories["B"] = fresh(breakoutBars())

	res, err := f.run(t)
	require.NoError(t, err)

	a := outcomeOf(res, "A")
	require.NotNil(t, a)
	assert.NotEmpty(t, a.Err)
	assert.Nil(t, a.Decision)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "B", res.Trades[0].Instrument)
	assert.Equal(t, []string{"B"}, f.judge.called())
}

func TestRunStaleDataCarriesSnapshotForward(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.history.histories["A"] = types.History{Bars: breakoutBars(), Fresh: false}
	prev := types.EquitySnapshot{
		Date:           day0.AddDate(0, 0, -1),
		Cash:           decimal.NewFromInt(123456),
		PositionsValue: decimal.Zero,
		TotalEquity:    decimal.NewFromInt(123456),
	}
	f.ledger.snapshots[types.DateKey(prev.Date)] = prev

	res, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.Snapshot.Stale)
	assert.False(t, res.Snapshot.Suspect)
	assert.Equal(t, "123456", res.Snapshot.TotalEquity.String())
	assert.Empty(t, f.judge.called())
	assert.Empty(t, res.Trades)
	assert.NotEmpty(t, outcomeOf(res, "A").Err)
}

func TestRunEquityGuardFlagsLargeMove(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.history.histories["A"] = fresh(flatBars())
	prev := types.EquitySnapshot{Date: day0.AddDate(0, 0, -1), Cash: decimal.NewFromInt(50000), TotalEquity: decimal.NewFromInt(50000)}
	f.ledger.snapshots[types.DateKey(prev.Date)] = prev

	res, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.Snapshot.Suspect)
	assert.Equal(t, "100000", res.Snapshot.TotalEquity.String())
}

func TestRunRiskOverlayActsBeforeDecisions(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.cfg.Risk.HardStopPct = 0.05
	f.history.histories["A"] = fresh(barsEnding(day0, flatThen(30, 10, 9.4)...))
	f.ledger.trades = []types.Trade{{
		ID:         "seed",
		Instrument: "A",
		Date:       day0.AddDate(0, 0, -1),
		Action:     types.ActionBuy,
		Quantity:   1000,
		ExecPrice:  decimal.NewFromInt(10),
		Fee:        decimal.Zero,
		CashAfter:  decimal.NewFromInt(90000),
		Trigger:    types.TriggerConsensus,
	}}

	res, err := f.run(t)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, types.ActionSell, tr.Action)
	assert.EqualValues(t, 1000, tr.Quantity)
	assert.Equal(t, types.TriggerHardStop, tr.Trigger)
	assert.Equal(t, types.TriggerHardStop, outcomeOf(res, "A").Risk)
	assert.Nil(t, outcomeOf(res, "A").Decision)
	assert.Empty(t, f.judge.called())
	assert.Len(t, f.ledger.trades, 2)
	assert.True(t, res.Snapshot.PositionsValue.IsZero())
}

func TestRunRefusesDateWithSnapshot(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.history.histories["A"] = fresh(breakoutBars())
	f.ledger.snapshots[types.DateKey(day0)] = types.EquitySnapshot{Date: day0}

	_, err := f.run(t)
	assert.ErrorIs(t, err, types.ErrSnapshotExists)
	assert.Empty(t, f.judge.called())
	assert.Empty(t, f.ledger.trades)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	f.cfg.Mode = "DRY_RUN"
	f.history.histories["A"] = fresh(breakoutBars())

	res, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	require.Len(t, res.Trades, 1)
	assert.Empty(t, f.ledger.trades)
	assert.Empty(t, f.ledger.decisions)
	assert.Empty(t, f.ledger.snapshots)
	assert.Equal(t, "100000", res.Snapshot.TotalEquity.String())
}

func TestRunOnlyOnRuleSignalSkipsJudgment(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, nil)
	f.cfg.LLM.OnlyOnRuleSignal = true
	f.history.histories["A"] = fresh(flatBars())
	f.history.histories["B"] = fresh(breakoutBars())

	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, f.judge.called())
	assert.Equal(t, 1, res.JudgmentCalls)
	assert.True(t, outcomeOf(res, "A").Judgment.Neutral)
}

func TestRunJudgmentStopExitsNextDay(t *testing.T) {
	f := newFixture(t, []string{"A"}, nil)
	stop, target := 0.03, 0.25
	f.judge.answers["A"] = types.Judgment{Action: types.ActionBuy, Confidence: 0.7, Reasoning: "breakout", StopLossPct: &stop, TakeProfitPct: &target}
	f.history.histories["A"] = fresh(breakoutBars())

	res, err := f.run(t)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 0.03, res.Trades[0].StopLossPct)
	assert.Equal(t, 0.25, res.Trades[0].TakeProfitPct)

	next := day0.AddDate(0, 0, 1)
	f.history.histories["A"] = fresh(barsEnding(next, append(flatThen(30, 10, 11), 10.5)...))
	r, err := NewRunner(f.cfg, f.history, f.judge, f.ledger)
	require.NoError(t, err)
	res, err = r.Run(context.Background(), next)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.TriggerModelStop, res.Trades[0].Trigger)
	assert.Equal(t, types.ActionSell, res.Trades[0].Action)
	assert.EqualValues(t, 1800, res.Trades[0].Quantity)
	assert.Equal(t, []string{"A"}, f.judge.called(), "no judgment after the stop fired")
}
