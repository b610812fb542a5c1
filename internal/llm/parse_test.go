package llm

import (
	"testing"

	"etf-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		action     types.Action
		confidence float64
		reasoning  string
	}{
		{"plain", `{"decision":"buy","confidence":0.72,"reasoning":"breakout"}`, types.ActionBuy, 0.72, "breakout"},
		{"fenced", "```json\n{\"decision\":\"sell\",\"confidence\":0.6}\n```", types.ActionSell, 0.6, ""},
		{"prose around object", `Here you go: {"decision":"Hold","confidence":0.4,"reasoning":"wait"} thanks`, types.ActionHold, 0.4, "wait"},
		{"action alias", `{"action":"SELL","confidence":0.9,"reason":"weak"}`, types.ActionSell, 0.9, "weak"},
		{"unknown action is hold", `{"decision":"strong buy","confidence":0.9}`, types.ActionHold, 0.9, ""},
		{"missing fields default", `{}`, types.ActionHold, 0.5, ""},
		{"confidence clamped", `{"decision":"buy","confidence":7}`, types.ActionBuy, 1, ""},
		{"typographic quotes", `{“decision”:“buy”,“confidence”:0.55}`, types.ActionBuy, 0.55, ""},
		{"unknown fields ignored", `{"decision":"buy","confidence":0.6,"target_price":3.1,"extra":{"a":1}}`, types.ActionBuy, 0.6, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := ParseJudgment(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.action, j.Action)
			assert.InDelta(t, tt.confidence, j.Confidence, 1e-12)
			assert.Equal(t, tt.reasoning, j.Reasoning)
		})
	}
}

func TestParseJudgmentRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "buy now", `["buy"]`, `{"decision":"buy",}`, `{"confidence":"high"}`} {
		_, err := ParseJudgment(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseJudgmentOptionalPcts(t *testing.T) {
	j, err := ParseJudgment(`{"decision":"buy","stop_loss_pct":0.05,"take_profit_pct":15,"position_pct":null}`)
	require.NoError(t, err)
	require.NotNil(t, j.StopLossPct)
	assert.InDelta(t, 0.05, *j.StopLossPct, 1e-12)
	require.NotNil(t, j.TakeProfitPct)
	assert.InDelta(t, 0.15, *j.TakeProfitPct, 1e-12)
	assert.Nil(t, j.PositionPct)

	j, err = ParseJudgment(`{"decision":"buy","position_pct":-0.2}`)
	require.NoError(t, err)
	assert.Nil(t, j.PositionPct)

	j, err = ParseJudgment(`{"decision":"buy","position_pct":250}`)
	require.NoError(t, err)
	require.NotNil(t, j.PositionPct)
	assert.Equal(t, 1.0, *j.PositionPct)
}
