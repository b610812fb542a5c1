package llm

import (
	"math"
	"testing"
	"time"

	"etf-trader/internal/ta"
	"etf-trader/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func rowsFrom(closes []float64) []types.IndicatorRow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c + 0.05, Low: c - 0.05, Close: c, Volume: 1000 + float64(i)}
	}
	return ta.Table(bars, ta.DefaultParams())
}

func TestBuildPromptSummarizesHistory(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 3 + 0.01*float64(i)
	}
	req := types.JudgmentRequest{
		Instrument: "510300",
		Date:       time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Rows:       rowsFrom(closes),
		Rule:       types.RuleSignal{Action: types.ActionBuy, Confidence: 0.65, Reasoning: "BREAKOUT: close broke above 20-day high"},
		Position:   &types.Position{Instrument: "510300", Quantity: 500, AverageCost: decimal.RequireFromString("3.2")},
	}

	p := BuildPrompt(req, "")

	assert.Equal(t, DefaultSystemPrompt, p.System)
	assert.Contains(t, p.User, "Instrument 510300 (as of 2024-03-10)")
	assert.Contains(t, p.User, "trend: up")
	assert.Contains(t, p.User, "buy (confidence 0.65)")
	assert.Contains(t, p.User, "500 shares at average cost 3.2000")
	assert.Contains(t, p.User, "2024-03-10 3.6900")
	assert.NotContains(t, p.User, "2024-03-05 ")
}

func TestBuildPromptShortHistory(t *testing.T) {
	p := BuildPrompt(types.JudgmentRequest{Instrument: "159915", Rows: rowsFrom([]float64{1, 1.1})}, "custom")
	assert.Equal(t, "custom", p.System)
	assert.Contains(t, p.User, "trend: unknown")
	assert.Contains(t, p.User, "5-day return: n/a")
	assert.Contains(t, p.User, "- flat")

	p = BuildPrompt(types.JudgmentRequest{Instrument: "159915"}, "")
	assert.Contains(t, p.User, "No price history available.")
}

func TestVolatilityAndVolumeChange(t *testing.T) {
	assert.InDelta(t, 1.0, volumeChange([]float64{10, 10, 10, 10, 10, 20}), 1e-12)
	assert.True(t, math.IsNaN(volatility([]float64{1, 2}, 20)))
	flat := make([]float64, 21)
	for i := range flat {
		flat[i] = 5
	}
	assert.InDelta(t, 0.0, volatility(flat, 20), 1e-12)
}
