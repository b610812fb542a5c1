package signal

import (
	"sort"

	"etf-trader/internal/types"
)

// Momentum is an instrument's lookback return used for ranking.
type Momentum struct {
	Instrument string
	Return     float64
}

// TopKMomentum ranks instruments by close_last / close_first - 1 over the
// last lookback bars and marks the best k as RankTopK. Instruments with
// fewer than lookback bars are RankUnknown and do not take a slot.
func TopKMomentum(histories map[string][]types.Bar, lookback, k int) (map[string]Rank, []Momentum) {
	ranks := make(map[string]Rank, len(histories))
	scored := make([]Momentum, 0, len(histories))
	for inst, bars := range histories {
		ranks[inst] = RankUnknown
		if lookback < 2 || len(bars) < lookback {
			continue
		}
		first := bars[len(bars)-lookback].Close
		last := bars[len(bars)-1].Close
		if first <= 0 {
			continue
		}
		scored = append(scored, Momentum{Instrument: inst, Return: last/first - 1})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Return != scored[j].Return {
			return scored[i].Return > scored[j].Return
		}
		return scored[i].Instrument < scored[j].Instrument
	})

	for i, m := range scored {
		if i < k {
			ranks[m.Instrument] = RankTopK
		} else {
			ranks[m.Instrument] = RankOutside
		}
	}
	return ranks, scored
}
