package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"etf-trader/internal/types"
)

// applyTrade mutates state by one trade: cash moves by the trade's cash delta,
// buys reweight the average cost and refresh any judgment stop or target they
// carry, sells leave the cost unchanged and a position that reaches zero is
// removed.
func applyTrade(state *types.PortfolioState, t types.Trade) error {
	if t.Quantity <= 0 {
		return fmt.Errorf("trade %s: non-positive quantity %d", t.ID, t.Quantity)
	}
	p := state.Positions[t.Instrument]
	switch t.Action {
	case types.ActionBuy:
		if p == nil {
			p = &types.Position{Instrument: t.Instrument, OpenedOn: t.Date}
			state.Positions[t.Instrument] = p
		}
		total := p.AverageCost.Mul(decimal.NewFromInt(p.Quantity)).Add(t.Notional())
		p.Quantity += t.Quantity
		p.AverageCost = total.Div(decimal.NewFromInt(p.Quantity))
		if t.StopLossPct > 0 {
			p.StopLossPct = t.StopLossPct
		}
		if t.TakeProfitPct > 0 {
			p.TakeProfitPct = t.TakeProfitPct
		}
	case types.ActionSell:
		if p == nil || p.Quantity < t.Quantity {
			return fmt.Errorf("trade %s: sell %d %s exceeds holding %d", t.ID, t.Quantity, t.Instrument, heldOf(p))
		}
		p.Quantity -= t.Quantity
		if p.Quantity == 0 {
			delete(state.Positions, t.Instrument)
			p = nil
		}
	default:
		return fmt.Errorf("trade %s: unexpected action %q", t.ID, t.Action)
	}
	if p != nil && t.Trigger == types.TriggerTakeProfit {
		p.TookProfit = true
	}
	state.Cash = state.Cash.Add(t.CashDelta())
	return nil
}

func heldOf(p *types.Position) int64 {
	if p == nil {
		return 0
	}
	return p.Quantity
}

// Replay derives the portfolio from the trade ledger. Each trade's recorded
// cash_after must match the replayed cash.
func Replay(initialCash decimal.Decimal, trades []types.Trade) (*types.PortfolioState, error) {
	state := types.NewPortfolioState(initialCash)
	for _, t := range trades {
		if err := applyTrade(state, t); err != nil {
			return nil, err
		}
		if !t.CashAfter.Equal(state.Cash) {
			return nil, fmt.Errorf("trade %s: recorded cash_after %s, replayed %s", t.ID, t.CashAfter, state.Cash)
		}
	}
	return state, nil
}

// Diff lists the differences between two portfolio states; empty means equal.
func Diff(a, b *types.PortfolioState) []string {
	var out []string
	if !a.Cash.Equal(b.Cash) {
		out = append(out, fmt.Sprintf("cash %s != %s", a.Cash, b.Cash))
	}
	seen := map[string]bool{}
	for inst := range a.Positions {
		seen[inst] = true
	}
	for inst := range b.Positions {
		seen[inst] = true
	}
	insts := make([]string, 0, len(seen))
	for inst := range seen {
		insts = append(insts, inst)
	}
	sort.Strings(insts)
	for _, inst := range insts {
		pa, pb := a.Positions[inst], b.Positions[inst]
		if heldOf(pa) != heldOf(pb) {
			out = append(out, fmt.Sprintf("%s quantity %d != %d", inst, heldOf(pa), heldOf(pb)))
			continue
		}
		if pa != nil && pb != nil && !pa.AverageCost.Equal(pb.AverageCost) {
			out = append(out, fmt.Sprintf("%s average cost %s != %s", inst, pa.AverageCost, pb.AverageCost))
		}
	}
	return out
}

// HeldInstruments returns the instruments with an open position, sorted.
func HeldInstruments(state *types.PortfolioState) []string {
	out := make([]string, 0, len(state.Positions))
	for inst, p := range state.Positions {
		if p.Quantity > 0 {
			out = append(out, inst)
		}
	}
	sort.Strings(out)
	return out
}
