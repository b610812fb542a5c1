package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"etf-trader/internal/types"
)

// defaultConfidence fills a reply that omits confidence.
const defaultConfidence = 0.5

var errEmptyResponse = errors.New("empty completion response")

// rawJudgment is the wire shape of a completion reply. Unknown fields are
// ignored; both "decision" and "action" are accepted for the direction.
type rawJudgment struct {
	Decision      string   `json:"decision"`
	Action        string   `json:"action"`
	Confidence    *float64 `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Reason        string   `json:"reason"`
	StopLossPct   *float64 `json:"stop_loss_pct"`
	TakeProfitPct *float64 `json:"take_profit_pct"`
	PositionPct   *float64 `json:"position_pct"`
}

var quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")

// extractObject trims fences, stray prose and typographic quotes around the
// JSON object in text.
func extractObject(text string) (string, error) {
	t := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if t == "" {
		return "", errEmptyResponse
	}
	if i := strings.Index(t, "```"); i >= 0 {
		body := t[i+3:]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		body = strings.TrimSpace(body)
		if strings.HasPrefix(strings.ToLower(body), "json") {
			body = body[4:]
		}
		t = strings.TrimSpace(body)
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response: %.80q", t)
	}
	return quoteReplacer.Replace(t[start : end+1]), nil
}

// ParseJudgment validates a raw completion reply. The returned Judgment
// carries only the parsed fields; the caller stamps instrument, date and
// model.
func ParseJudgment(text string) (types.Judgment, error) {
	obj, err := extractObject(text)
	if err != nil {
		return types.Judgment{}, err
	}
	var raw rawJudgment
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return types.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}

	j := types.Judgment{
		Action:        normalizeAction(raw.Decision, raw.Action),
		Confidence:    defaultConfidence,
		Reasoning:     strings.TrimSpace(raw.Reasoning),
		StopLossPct:   normalizePct(raw.StopLossPct),
		TakeProfitPct: normalizePct(raw.TakeProfitPct),
		PositionPct:   normalizePct(raw.PositionPct),
	}
	if j.Reasoning == "" {
		j.Reasoning = strings.TrimSpace(raw.Reason)
	}
	if raw.Confidence != nil {
		j.Confidence = clamp01(*raw.Confidence)
	}
	return j, nil
}

// normalizeAction maps the reply's direction onto an Action. Anything that
// is not buy or sell is a hold.
func normalizeAction(fields ...string) types.Action {
	for _, f := range fields {
		a := types.Action(strings.ToLower(strings.TrimSpace(f)))
		if a == "" {
			continue
		}
		if a.Valid() {
			return a
		}
		return types.ActionHold
	}
	return types.ActionHold
}

// normalizePct accepts fractions or whole percents (15 means 0.15) and
// clamps into [0,1]. Non-positive suggestions are dropped.
func normalizePct(p *float64) *float64 {
	if p == nil || *p <= 0 {
		return nil
	}
	v := *p
	if v > 1 && v <= 100 {
		v /= 100
	}
	v = clamp01(v)
	return &v
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
