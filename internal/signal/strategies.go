package signal

import (
	"fmt"
	"math"

	"etf-trader/internal/types"
)

// Strategy selects which rule family the generator evaluates.
type Strategy string

const (
	MACross       Strategy = "MA_CROSS"
	Breakout      Strategy = "BREAKOUT"
	MeanReversion Strategy = "MEAN_REVERSION"
	KDJMACD       Strategy = "KDJ_MACD"
	Aggregate     Strategy = "AGGREGATE"
)

// Fixed confidences per rule family.
const (
	ConfidenceMACross       = 0.60
	ConfidenceBreakout      = 0.65
	ConfidenceMeanReversion = 0.70
	ConfidenceKDJMACD       = 0.75
	ConfidenceHold          = 0.50
	ConfidenceRankPromote   = 0.55
	ConfidenceRankSoftSell  = 0.40
)

// Thresholds are the tunable bounds of the rule families.
type Thresholds struct {
	BreakoutN int
	RSIN      int
	RSILow    float64
	RSIHigh   float64
	KDJLow    float64
	KDJHigh   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{BreakoutN: 20, RSIN: 2, RSILow: 10, RSIHigh: 95, KDJLow: 20, KDJHigh: 80}
}

// vote is one rule's opinion. ok=false means the rule abstained because its
// lookback is not satisfied.
type vote struct {
	rule       Strategy
	action     types.Action
	confidence float64
	reason     string
	ok         bool
}

type rule func(prev, cur types.IndicatorRow, th Thresholds) vote

func valid(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func abstain(r Strategy) vote {
	return vote{rule: r, action: types.ActionHold, reason: fmt.Sprintf("%s: insufficient data", r)}
}

func hold(r Strategy) vote {
	return vote{rule: r, action: types.ActionHold, confidence: ConfidenceHold, ok: true}
}

func maCross(prev, cur types.IndicatorRow, _ Thresholds) vote {
	if !valid(prev.MAShort, prev.MALong, cur.MAShort, cur.MALong) {
		return abstain(MACross)
	}
	if prev.MAShort <= prev.MALong && cur.MAShort > cur.MALong && cur.Close > cur.MAShort {
		return vote{MACross, types.ActionBuy, ConfidenceMACross, "short MA crossed above long MA", true}
	}
	if prev.MAShort >= prev.MALong && cur.MAShort < cur.MALong && cur.Close < cur.MAShort {
		return vote{MACross, types.ActionSell, ConfidenceMACross, "short MA crossed below long MA", true}
	}
	return hold(MACross)
}

func breakout(_, cur types.IndicatorRow, th Thresholds) vote {
	if !valid(cur.DonchianHigh, cur.DonchianLow) {
		return abstain(Breakout)
	}
	if cur.Close > cur.DonchianHigh {
		return vote{Breakout, types.ActionBuy, ConfidenceBreakout, fmt.Sprintf("close broke above %d-day high", th.BreakoutN), true}
	}
	if cur.Close < cur.DonchianLow {
		return vote{Breakout, types.ActionSell, ConfidenceBreakout, fmt.Sprintf("close broke below %d-day low", th.BreakoutN), true}
	}
	return hold(Breakout)
}

func meanReversion(_, cur types.IndicatorRow, th Thresholds) vote {
	if !valid(cur.RSI) {
		return abstain(MeanReversion)
	}
	if cur.RSI < th.RSILow {
		return vote{MeanReversion, types.ActionBuy, ConfidenceMeanReversion, fmt.Sprintf("RSI(%d)=%.1f oversold", th.RSIN, cur.RSI), true}
	}
	if cur.RSI > th.RSIHigh {
		return vote{MeanReversion, types.ActionSell, ConfidenceMeanReversion, fmt.Sprintf("RSI(%d)=%.1f overbought", th.RSIN, cur.RSI), true}
	}
	return hold(MeanReversion)
}

func kdjMACD(prev, cur types.IndicatorRow, th Thresholds) vote {
	if !valid(prev.J, cur.J, prev.DIF, prev.DEA, cur.DIF, cur.DEA) {
		return abstain(KDJMACD)
	}
	jUp := prev.J < th.KDJLow && cur.J > th.KDJLow
	macdUp := prev.DIF < prev.DEA && cur.DIF > cur.DEA
	if jUp && macdUp {
		return vote{KDJMACD, types.ActionBuy, ConfidenceKDJMACD, fmt.Sprintf("J crossed up through %.0f with MACD golden cross", th.KDJLow), true}
	}
	jDown := prev.J > th.KDJHigh && cur.J < th.KDJHigh
	macdDown := prev.DIF > prev.DEA && cur.DIF < cur.DEA
	if jDown && macdDown {
		return vote{KDJMACD, types.ActionSell, ConfidenceKDJMACD, fmt.Sprintf("J crossed down through %.0f with MACD death cross", th.KDJHigh), true}
	}
	return hold(KDJMACD)
}

var rules = map[Strategy]rule{
	MACross:       maCross,
	Breakout:      breakout,
	MeanReversion: meanReversion,
	KDJMACD:       kdjMACD,
}

// aggregateOrder is the evaluation order used by AGGREGATE.
var aggregateOrder = []Strategy{Breakout, MeanReversion, MACross, KDJMACD}
