package signal

import (
	"fmt"
	"strings"

	"etf-trader/internal/types"
)

// Rank is an instrument's membership in the external top-K ranking.
type Rank int

const (
	RankUnknown Rank = iota
	RankTopK
	RankOutside
)

func (r Rank) String() string {
	switch r {
	case RankTopK:
		return "top-k"
	case RankOutside:
		return "outside"
	}
	return "unknown"
}

// Generator turns an indicator table into a RuleSignal.
type Generator struct {
	strategy   Strategy
	thresholds Thresholds
}

func NewGenerator(strategy Strategy, th Thresholds) (*Generator, error) {
	if _, ok := rules[strategy]; !ok && strategy != Aggregate {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	return &Generator{strategy: strategy, thresholds: th}, nil
}

func (g *Generator) Strategy() Strategy {
	return g.strategy
}

// Generate evaluates the configured strategy on the last two rows of the
// table. Rules whose lookback is not met abstain; the generator never fails.
func (g *Generator) Generate(instrument string, rows []types.IndicatorRow, rank Rank) types.RuleSignal {
	sig := types.RuleSignal{Instrument: instrument, Action: types.ActionHold, Confidence: ConfidenceHold}
	if len(rows) == 0 {
		sig.Reasoning = "insufficient data"
		return sig
	}
	cur := rows[len(rows)-1]
	sig.Date = cur.Date
	// with a single row prev == cur, so the crossing rules cannot fire
	prev := cur
	if len(rows) > 1 {
		prev = rows[len(rows)-2]
	}

	if g.strategy != Aggregate {
		return fromVotes(sig, []vote{rules[g.strategy](prev, cur, g.thresholds)})
	}

	votes := make([]vote, 0, len(aggregateOrder))
	for _, name := range aggregateOrder {
		votes = append(votes, rules[name](prev, cur, g.thresholds))
	}
	sig = fromVotes(sig, votes)
	return applyRank(sig, rank)
}

// fromVotes picks buy over sell over hold; within the winning direction the
// highest confidence is kept and every firing rule is named.
func fromVotes(sig types.RuleSignal, votes []vote) types.RuleSignal {
	for _, dir := range []types.Action{types.ActionBuy, types.ActionSell} {
		var names, reasons []string
		best := 0.0
		for _, v := range votes {
			if !v.ok || v.action != dir {
				continue
			}
			names = append(names, string(v.rule))
			reasons = append(reasons, fmt.Sprintf("%s: %s", v.rule, v.reason))
			if v.confidence > best {
				best = v.confidence
			}
		}
		if len(names) > 0 {
			sig.Action = dir
			sig.Confidence = best
			sig.Rules = names
			sig.Reasoning = strings.Join(reasons, "; ")
			return sig
		}
	}

	abstained := 0
	for _, v := range votes {
		if !v.ok {
			abstained++
		}
	}
	if abstained == len(votes) {
		sig.Reasoning = "insufficient data"
	} else {
		sig.Reasoning = "no rule signal"
	}
	return sig
}

func applyRank(sig types.RuleSignal, rank Rank) types.RuleSignal {
	if sig.Action != types.ActionHold {
		return sig
	}
	switch rank {
	case RankTopK:
		sig.Action = types.ActionBuy
		sig.Confidence = ConfidenceRankPromote
		sig.Rules = append(sig.Rules, "TOPK")
		sig.Reasoning = "ranking: in top-K, promoted from hold"
	case RankOutside:
		sig.Action = types.ActionSell
		sig.Confidence = ConfidenceRankSoftSell
		sig.Rules = append(sig.Rules, "TOPK")
		sig.Reasoning = "ranking: outside top-K, soft sell"
	}
	return sig
}
