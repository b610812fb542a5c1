package engine

import (
	"github.com/shopspring/decimal"

	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

// Costs holds slippage and fee rates as fractions (bps / 10000).
type Costs struct {
	Slippage decimal.Decimal
	Cost     decimal.Decimal
}

func CostsFrom(cfg *store.Config) Costs {
	return NewCosts(cfg.Costs.SlippageBps, cfg.Costs.CostBps)
}

func NewCosts(slippageBps, costBps float64) Costs {
	return Costs{Slippage: bps(slippageBps), Cost: bps(costBps)}
}

// Fill is the execution price: close raised by slippage for buys and
// lowered for sells.
func (c Costs) Fill(action types.Action, close float64) decimal.Decimal {
	px := decimal.NewFromFloat(close)
	switch action {
	case types.ActionBuy:
		return px.Mul(one.Add(c.Slippage))
	case types.ActionSell:
		return px.Mul(one.Sub(c.Slippage))
	}
	return px
}

// Fee is cost bps of the notional.
func (c Costs) Fee(qty int64, exec decimal.Decimal) decimal.Decimal {
	return exec.Mul(decimal.NewFromInt(qty)).Mul(c.Cost)
}
