package engine

import (
	"github.com/shopspring/decimal"

	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

type SizingConfig struct {
	Dynamic bool
	BasePct float64
	MinPct  float64
	MaxPct  float64
	LotSize int64
}

func SizingFrom(cfg *store.Config) SizingConfig {
	return SizingConfig{
		Dynamic: cfg.Sizing.Dynamic,
		BasePct: cfg.Sizing.BasePct,
		MinPct:  cfg.Sizing.MinPct,
		MaxPct:  cfg.Sizing.MaxPct,
		LotSize: cfg.Sizing.LotSize,
	}
}

// Sizer turns a decision into a share quantity. It is pure.
type Sizer struct {
	cfg   SizingConfig
	costs Costs
}

func NewSizer(cfg SizingConfig, costs Costs) Sizer {
	if cfg.LotSize < 1 {
		cfg.LotSize = 1
	}
	return Sizer{cfg: cfg, costs: costs}
}

// TargetPct is the allocation as a fraction of total equity. In dynamic mode
// a suggested pct overrides base×(1+confidence); the result is clamped to
// [min, max]. Fixed mode always returns the base.
func (s Sizer) TargetPct(confidence float64, suggested *float64) float64 {
	if !s.cfg.Dynamic {
		return s.cfg.BasePct
	}
	pct := s.cfg.BasePct * (1 + confidence)
	if suggested != nil {
		pct = *suggested
	}
	if pct < s.cfg.MinPct {
		pct = s.cfg.MinPct
	}
	if pct > s.cfg.MaxPct {
		pct = s.cfg.MaxPct
	}
	return pct
}

// targetShares is floor_lot(pct × equity / close).
func (s Sizer) targetShares(pct float64, equity decimal.Decimal, close float64) int64 {
	if close <= 0 || pct <= 0 || !equity.IsPositive() {
		return 0
	}
	q := equity.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromFloat(close)).IntPart()
	return floorLot(q, s.cfg.LotSize)
}

// Quantity sizes d, whose PositionPct is already resolved. Buys top up the
// holding to the target and are capped by cash; sells never exceed the
// holding and close it outright when less than a lot would remain.
func (s Sizer) Quantity(d types.Decision, held int64, cash, equity decimal.Decimal, close float64) int64 {
	target := s.targetShares(d.PositionPct, equity, close)
	switch d.Action {
	case types.ActionBuy:
		q := target - held
		if q <= 0 {
			return 0
		}
		if affordable := s.Affordable(cash, close); q > affordable {
			q = affordable
		}
		return q
	case types.ActionSell:
		if held <= 0 {
			return 0
		}
		q := target
		if q > held {
			q = held
		}
		if held-q < s.cfg.LotSize {
			q = held
		}
		return q
	}
	return 0
}

// Affordable is the largest lot multiple whose fill plus fee fits in cash.
func (s Sizer) Affordable(cash decimal.Decimal, close float64) int64 {
	if close <= 0 || !cash.IsPositive() {
		return 0
	}
	perShare := s.costs.Fill(types.ActionBuy, close).Mul(one.Add(s.costs.Cost))
	return floorLot(cash.Div(perShare).IntPart(), s.cfg.LotSize)
}
