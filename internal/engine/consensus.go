package engine

import (
	"fmt"

	"etf-trader/internal/types"
)

// Resolve combines a rule signal and a judgment. Capital moves only when both
// sides name the same non-hold action; anything else is a zero-confidence hold.
func Resolve(rule types.RuleSignal, j types.Judgment) types.Decision {
	d := types.Decision{
		Instrument:     rule.Instrument,
		Date:           rule.Date,
		Action:         types.ActionHold,
		Reasoning:      fmt.Sprintf("rule: %s; judgment: %s", rule.Reasoning, j.Reasoning),
		RuleAction:     rule.Action,
		JudgmentAction: j.Action,
		JudgmentModel:  j.Model,
	}
	if d.Instrument == "" {
		d.Instrument = j.Instrument
	}
	if d.Date.IsZero() {
		d.Date = j.Date
	}
	if rule.Action != types.ActionHold && rule.Action == j.Action {
		d.Action = rule.Action
		d.Confidence = (rule.Confidence + j.Confidence) / 2
	}
	return d
}
