package signal

import (
	"testing"
	"time"

	"etf-trader/internal/ta"
	"etf-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1e6}
	}
	return bars
}

// decliningThenJump drifts down 0.01 a day for n-1 bars, then closes at last.
func decliningThenJump(n int, last float64) []float64 {
	closes := make([]float64, n)
	for i := 0; i < n-1; i++ {
		closes[i] = 12 - 0.01*float64(i)
	}
	closes[n-1] = last
	return closes
}

func flat(n int, px float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = px
	}
	return closes
}

func table(closes []float64) []types.IndicatorRow {
	return ta.Table(barsFromCloses(closes), ta.DefaultParams())
}

func TestMACrossBuyOnFreshCross(t *testing.T) {
	g, err := NewGenerator(MACross, DefaultThresholds())
	require.NoError(t, err)

	rows := table(decliningThenJump(80, 18))
	// no cross anywhere before the last bar
	for i := 60; i < len(rows)-1; i++ {
		require.LessOrEqual(t, rows[i].MAShort, rows[i].MALong, "bar %d", i)
	}

	sig := g.Generate("510300", rows, RankUnknown)
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, ConfidenceMACross, sig.Confidence)
	assert.Equal(t, []string{"MA_CROSS"}, sig.Rules)
	assert.Contains(t, sig.Reasoning, "MA_CROSS")
	assert.Equal(t, rows[len(rows)-1].Date, sig.Date)
}

func TestMACrossSellOnMirroredCross(t *testing.T) {
	g, _ := NewGenerator(MACross, DefaultThresholds())

	closes := make([]float64, 80)
	for i := 0; i < 79; i++ {
		closes[i] = 10 + 0.01*float64(i)
	}
	closes[79] = 4
	sig := g.Generate("510500", table(closes), RankUnknown)
	assert.Equal(t, types.ActionSell, sig.Action)
	assert.Equal(t, ConfidenceMACross, sig.Confidence)
}

func TestSubRuleAbstainsWithShortHistory(t *testing.T) {
	g, _ := NewGenerator(MACross, DefaultThresholds())
	sig := g.Generate("510300", table(decliningThenJump(30, 18)), RankUnknown)
	assert.Equal(t, types.ActionHold, sig.Action)
	assert.Equal(t, "insufficient data", sig.Reasoning)
}

func TestNoRowsHolds(t *testing.T) {
	g, _ := NewGenerator(Aggregate, DefaultThresholds())
	sig := g.Generate("510300", nil, RankTopK)
	assert.Equal(t, types.ActionHold, sig.Action)
	assert.Equal(t, "insufficient data", sig.Reasoning)
	assert.Equal(t, ConfidenceHold, sig.Confidence)
}

func TestBreakoutAndMeanReversion(t *testing.T) {
	closes := flat(30, 10)
	closes[29] = 11

	g, _ := NewGenerator(Breakout, DefaultThresholds())
	sig := g.Generate("159915", table(closes), RankUnknown)
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, ConfidenceBreakout, sig.Confidence)

	closes[29] = 9
	sig = g.Generate("159915", table(closes), RankUnknown)
	assert.Equal(t, types.ActionSell, sig.Action)

	// RSI(2) is 0 after two down days
	closes = flat(30, 10)
	closes[28], closes[29] = 9.5, 9
	mr, _ := NewGenerator(MeanReversion, DefaultThresholds())
	sig = mr.Generate("159915", table(closes), RankUnknown)
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, ConfidenceMeanReversion, sig.Confidence)
}

func TestAggregatePrefersBuyAndNamesAllBuyRules(t *testing.T) {
	g, _ := NewGenerator(Aggregate, DefaultThresholds())
	sig := g.Generate("510300", table(decliningThenJump(80, 18)), RankOutside)

	// breakout, MA cross and KDJ/MACD buy; RSI(2) overbought sells but buy wins
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, ConfidenceKDJMACD, sig.Confidence)
	assert.Equal(t, []string{"BREAKOUT", "MA_CROSS", "KDJ_MACD"}, sig.Rules)
	assert.NotContains(t, sig.Reasoning, "MEAN_REVERSION")
}

func TestKDJMACDBuyOnJointCross(t *testing.T) {
	g, _ := NewGenerator(KDJMACD, DefaultThresholds())
	sig := g.Generate("510300", table(decliningThenJump(80, 18)), RankUnknown)
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, ConfidenceKDJMACD, sig.Confidence)

	sig = g.Generate("510300", table(flat(80, 10)), RankUnknown)
	assert.Equal(t, types.ActionHold, sig.Action)
	assert.Equal(t, "no rule signal", sig.Reasoning)
}

func TestAggregateRankingNudge(t *testing.T) {
	g, _ := NewGenerator(Aggregate, DefaultThresholds())
	rows := table(flat(80, 10))

	tests := []struct {
		name       string
		rank       Rank
		action     types.Action
		confidence float64
	}{
		{"unknown keeps hold", RankUnknown, types.ActionHold, ConfidenceHold},
		{"top-k promotes hold to buy", RankTopK, types.ActionBuy, ConfidenceRankPromote},
		{"outside demotes hold to soft sell", RankOutside, types.ActionSell, ConfidenceRankSoftSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := g.Generate("512880", rows, tt.rank)
			assert.Equal(t, tt.action, sig.Action)
			assert.Equal(t, tt.confidence, sig.Confidence)
		})
	}

	single, _ := NewGenerator(MACross, DefaultThresholds())
	assert.Equal(t, types.ActionHold, single.Generate("512880", rows, RankTopK).Action)
}

func TestUnknownStrategy(t *testing.T) {
	_, err := NewGenerator("RANDOM", DefaultThresholds())
	assert.Error(t, err)
}

func TestTopKMomentum(t *testing.T) {
	histories := map[string][]types.Bar{
		"A": barsFromCloses([]float64{10, 10, 10, 12}),
		"B": barsFromCloses([]float64{10, 10, 10, 11}),
		"C": barsFromCloses([]float64{10, 10, 10, 9}),
		"D": barsFromCloses([]float64{10, 11}),
	}
	ranks, scored := TopKMomentum(histories, 4, 2)

	assert.Equal(t, RankTopK, ranks["A"])
	assert.Equal(t, RankTopK, ranks["B"])
	assert.Equal(t, RankOutside, ranks["C"])
	assert.Equal(t, RankUnknown, ranks["D"])
	require.Len(t, scored, 3)
	assert.Equal(t, "A", scored[0].Instrument)
	assert.InDelta(t, 0.2, scored[0].Return, 1e-12)
}
