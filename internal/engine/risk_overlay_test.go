package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"etf-trader/internal/types"
)

func position(qty int64, avg float64) *types.Position {
	return &types.Position{Instrument: "510300", Quantity: qty, AverageCost: decimal.NewFromFloat(avg), OpenedOn: day0}
}

func TestHardStopForcesFullExit(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{HardStopPct: 0.05, LotSize: 100})
	ev := r.Evaluate(position(1000, 10), 9.4)

	assert.True(t, ev.Fired())
	assert.Equal(t, types.TriggerHardStop, ev.Trigger)
	assert.Equal(t, types.RiskStopped, ev.State)
	assert.EqualValues(t, 1000, ev.Quantity)
	assert.InDelta(t, -0.06, ev.Gain, 1e-9)
}

func TestHardStopWinsOverTrailing(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{HardStopPct: 0.05, TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})
	pos := position(1000, 10)
	pos.HighWaterMark = 12
	ev := r.Evaluate(pos, 9.4)
	assert.Equal(t, types.TriggerHardStop, ev.Trigger)
}

func TestTakeProfitOncePerPosition(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TakeProfitTriggerPct: 0.10, TakeProfitSellFraction: 0.5, TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})
	pos := position(1000, 10)

	ev := r.Evaluate(pos, 11.5)
	assert.Equal(t, types.TriggerTakeProfit, ev.Trigger)
	assert.Equal(t, types.RiskTookProfit, ev.State)
	assert.EqualValues(t, 500, ev.Quantity)
	assert.Equal(t, 11.5, pos.HighWaterMark)

	pos.TookProfit = true
	ev = r.Evaluate(pos, 11.5)
	assert.False(t, ev.Fired())
	assert.Equal(t, types.RiskOpen, ev.State)
}

func TestTakeProfitQuantityRounding(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TakeProfitSellFraction: 0.5, LotSize: 100})
	assert.EqualValues(t, 100, r.takeProfitQty(150), "at least one lot, remainder stays open")
	assert.EqualValues(t, 100, r.takeProfitQty(300))
	assert.EqualValues(t, 100, r.takeProfitQty(200))
	assert.Zero(t, r.takeProfitQty(100), "a single lot cannot be partly sold")

	most := NewRiskOverlay(RiskConfig{TakeProfitSellFraction: 0.8, LotSize: 100})
	assert.EqualValues(t, 100, most.takeProfitQty(150))
	assert.EqualValues(t, 800, most.takeProfitQty(1000))

	all := NewRiskOverlay(RiskConfig{TakeProfitSellFraction: 1, LotSize: 100})
	assert.EqualValues(t, 150, all.takeProfitQty(150))
}

func TestTakeProfitWinsOverTrailing(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TakeProfitTriggerPct: 0.10, TakeProfitSellFraction: 0.5, TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})
	pos := position(1000, 10)
	pos.HighWaterMark = 13

	// 11.5 is 11.5% below the mark and 15% above cost
	ev := r.Evaluate(pos, 11.5)
	assert.Equal(t, types.TriggerTakeProfit, ev.Trigger)
	assert.EqualValues(t, 500, ev.Quantity)
}

func TestSingleLotSkipsTakeProfit(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TakeProfitTriggerPct: 0.10, TakeProfitSellFraction: 0.5, TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})

	ev := r.Evaluate(position(100, 10), 11.5)
	assert.False(t, ev.Fired())

	pos := position(100, 10)
	pos.HighWaterMark = 13
	ev = r.Evaluate(pos, 11.5)
	assert.Equal(t, types.TriggerTrailingStop, ev.Trigger)
	assert.EqualValues(t, 100, ev.Quantity)
}

func TestJudgmentStop(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{HardStopPct: 0.05, LotSize: 100})
	pos := position(1000, 10)
	pos.StopLossPct = 0.03

	ev := r.Evaluate(pos, 9.6)
	assert.Equal(t, types.TriggerModelStop, ev.Trigger)
	assert.Equal(t, types.RiskStopped, ev.State)
	assert.EqualValues(t, 1000, ev.Quantity)

	ev = r.Evaluate(pos, 9.4)
	assert.Equal(t, types.TriggerHardStop, ev.Trigger, "hard stop comes first")

	assert.False(t, r.Evaluate(pos, 9.8).Fired())
}

func TestJudgmentTarget(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{LotSize: 100})
	pos := position(1000, 10)
	pos.TakeProfitPct = 0.08

	assert.False(t, r.Evaluate(pos, 10.7).Fired())

	ev := r.Evaluate(pos, 10.9)
	assert.Equal(t, types.TriggerModelTarget, ev.Trigger)
	assert.Equal(t, types.RiskClosed, ev.State)
	assert.EqualValues(t, 1000, ev.Quantity)
}

func TestTakeProfitBeforeJudgmentTarget(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TakeProfitTriggerPct: 0.10, TakeProfitSellFraction: 0.5, LotSize: 100})
	pos := position(1000, 10)
	pos.TakeProfitPct = 0.08

	ev := r.Evaluate(pos, 11.5)
	assert.Equal(t, types.TriggerTakeProfit, ev.Trigger)
	assert.EqualValues(t, 500, ev.Quantity)

	pos.TookProfit = true
	pos.Quantity = 500
	ev = r.Evaluate(pos, 11.5)
	assert.Equal(t, types.TriggerModelTarget, ev.Trigger)
	assert.EqualValues(t, 500, ev.Quantity)
}

func TestTrailingStopFromRebuiltHighWater(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{HardStopPct: 0.05, TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})
	pos := position(1000, 10)

	r.RebuildHighWater(pos, []float64{10.05, 10.2, 10.25, 12})
	assert.Equal(t, 12.0, pos.HighWaterMark)

	ev := r.Evaluate(pos, 11.3)
	assert.Equal(t, types.TriggerTrailingStop, ev.Trigger)
	assert.Equal(t, types.RiskClosed, ev.State)
	assert.EqualValues(t, 1000, ev.Quantity)
	assert.Equal(t, 12.0, pos.HighWaterMark, "mark never moves down")
}

func TestRatchetStep(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TrailingStepPct: 0.01})
	assert.Equal(t, 10.0, r.Ratchet(10, 10.05), "below one step")
	assert.Equal(t, 10.2, r.Ratchet(10, 10.2))
	assert.Equal(t, 12.0, r.Ratchet(12, 11))
}

func TestFlatPositionNeverFires(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{HardStopPct: 0.05})
	ev := r.Evaluate(position(0, 10), 1)
	assert.False(t, ev.Fired())
	assert.Equal(t, types.RiskFlat, ev.State)
}

func TestTrailingStopArmedFromEntry(t *testing.T) {
	r := NewRiskOverlay(RiskConfig{TrailingEnabled: true, TrailingPct: 0.05, TrailingStepPct: 0.01, LotSize: 100})
	pos := position(1000, 10)

	ev := r.Evaluate(pos, 9.4)
	assert.Equal(t, types.TriggerTrailingStop, ev.Trigger)
	assert.Equal(t, 10.0, ev.HighWaterMark, "mark starts at average cost")
}
