package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"etf-trader/internal/types"
)

var (
	one   = decimal.NewFromInt(1)
	bpsIn = decimal.NewFromInt(10000)
)

// floorLot rounds q down to a whole number of lots.
func floorLot(q, lot int64) int64 {
	if lot <= 1 {
		if q < 0 {
			return 0
		}
		return q
	}
	if q <= 0 {
		return 0
	}
	return q / lot * lot
}

func bps(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Div(bpsIn)
}

// closesSince returns closes of bars dated on or after from and strictly
// before until.
func closesSince(bars []types.Bar, from, until time.Time) []float64 {
	var out []float64
	for _, b := range bars {
		if b.Date.Before(from) || !b.Date.Before(until) {
			continue
		}
		out = append(out, b.Close)
	}
	return out
}

// upTo drops bars dated after asOf.
func upTo(bars []types.Bar, asOf time.Time) []types.Bar {
	end := len(bars)
	for end > 0 && bars[end-1].Date.After(asOf) {
		end--
	}
	return bars[:end]
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
