package engine

import (
	"fmt"

	"etf-trader/internal/store"
	"etf-trader/internal/types"
)

type RiskConfig struct {
	HardStopPct            float64
	TakeProfitTriggerPct   float64
	TakeProfitSellFraction float64
	TrailingEnabled        bool
	TrailingPct            float64
	TrailingStepPct        float64
	LotSize                int64
}

func RiskFrom(cfg *store.Config) RiskConfig {
	return RiskConfig{
		HardStopPct:            cfg.Risk.HardStopPct,
		TakeProfitTriggerPct:   cfg.Risk.TakeProfitTriggerPct,
		TakeProfitSellFraction: cfg.Risk.TakeProfitSellFraction,
		TrailingEnabled:        cfg.Risk.TrailingEnabled,
		TrailingPct:            cfg.Risk.TrailingPct,
		TrailingStepPct:        cfg.Risk.TrailingStepPct,
		LotSize:                cfg.Sizing.LotSize,
	}
}

// RiskEvent is the overlay's verdict for one position on one close.
// Trigger is empty when nothing fired.
type RiskEvent struct {
	Instrument    string
	Trigger       types.Trigger
	State         types.RiskState
	Quantity      int64
	Close         float64
	Gain          float64
	HighWaterMark float64
	Reason        string
}

func (e RiskEvent) Fired() bool {
	return e.Trigger != ""
}

// RiskOverlay evaluates, in priority order, the hard stop, the judgment's
// stop, the quick take-profit, the judgment's target and the trailing stop,
// before any decision may act.
type RiskOverlay struct {
	cfg RiskConfig
}

func NewRiskOverlay(cfg RiskConfig) RiskOverlay {
	if cfg.LotSize < 1 {
		cfg.LotSize = 1
	}
	return RiskOverlay{cfg: cfg}
}

// Ratchet raises hwm to close when close clears hwm by at least the step.
// The mark never moves down.
func (r RiskOverlay) Ratchet(hwm, close float64) float64 {
	if close >= hwm*(1+r.cfg.TrailingStepPct) && close > hwm {
		return close
	}
	return hwm
}

// RebuildHighWater replays the ratchet from the average cost over the
// closes seen since the position was opened.
func (r RiskOverlay) RebuildHighWater(pos *types.Position, closes []float64) {
	hwm := pos.AverageCost.InexactFloat64()
	for _, c := range closes {
		hwm = r.Ratchet(hwm, c)
	}
	pos.HighWaterMark = hwm
}

// Evaluate ratchets the high-water mark with close and reports at most one
// trigger. pos is updated in place only for the mark.
func (r RiskOverlay) Evaluate(pos *types.Position, close float64) RiskEvent {
	ev := RiskEvent{Instrument: pos.Instrument, Close: close, State: types.RiskFlat}
	if pos.Quantity <= 0 || close <= 0 {
		return ev
	}
	ev.State = types.RiskOpen

	avg := pos.AverageCost.InexactFloat64()
	if pos.HighWaterMark <= 0 {
		pos.HighWaterMark = avg
	}
	pos.HighWaterMark = r.Ratchet(pos.HighWaterMark, close)
	ev.HighWaterMark = pos.HighWaterMark
	if avg <= 0 {
		return ev
	}
	ev.Gain = (close - avg) / avg

	hardStop := r.cfg.HardStopPct > 0 && ev.Gain <= -r.cfg.HardStopPct
	modelStop := pos.StopLossPct > 0 && ev.Gain <= -pos.StopLossPct
	var tpQty int64
	if r.cfg.TakeProfitTriggerPct > 0 && !pos.TookProfit && ev.Gain >= r.cfg.TakeProfitTriggerPct {
		tpQty = r.takeProfitQty(pos.Quantity)
	}
	modelTarget := pos.TakeProfitPct > 0 && ev.Gain >= pos.TakeProfitPct
	trailing := r.cfg.TrailingEnabled && r.cfg.TrailingPct > 0 && close <= pos.HighWaterMark*(1-r.cfg.TrailingPct)

	switch {
	case hardStop:
		ev.Trigger, ev.State, ev.Quantity = types.TriggerHardStop, types.RiskStopped, pos.Quantity
		ev.Reason = fmt.Sprintf("hard stop: %.2f%% from cost %.4f", ev.Gain*100, avg)

	case modelStop:
		ev.Trigger, ev.State, ev.Quantity = types.TriggerModelStop, types.RiskStopped, pos.Quantity
		ev.Reason = fmt.Sprintf("judgment stop %.2f%%: %.2f%% from cost %.4f", pos.StopLossPct*100, ev.Gain*100, avg)

	case tpQty > 0:
		ev.Trigger, ev.State, ev.Quantity = types.TriggerTakeProfit, types.RiskTookProfit, tpQty
		ev.Reason = fmt.Sprintf("take profit: +%.2f%% from cost %.4f, selling %d of %d", ev.Gain*100, avg, ev.Quantity, pos.Quantity)

	case modelTarget:
		ev.Trigger, ev.State, ev.Quantity = types.TriggerModelTarget, types.RiskClosed, pos.Quantity
		ev.Reason = fmt.Sprintf("judgment target %.2f%%: +%.2f%% from cost %.4f", pos.TakeProfitPct*100, ev.Gain*100, avg)

	case trailing:
		ev.Trigger, ev.State, ev.Quantity = types.TriggerTrailingStop, types.RiskClosed, pos.Quantity
		ev.Reason = fmt.Sprintf("trailing stop: %.4f is %.2f%% below high %.4f", close, (1-close/pos.HighWaterMark)*100, pos.HighWaterMark)
	}
	return ev
}

// takeProfitQty sells the configured fraction floored to lots, at least one
// lot. The remainder stays open. A position of one lot or less cannot be
// partly sold, so it yields zero and the take-profit does not fire.
func (r RiskOverlay) takeProfitQty(held int64) int64 {
	frac := r.cfg.TakeProfitSellFraction
	if frac >= 1 {
		return held
	}
	if frac <= 0 || held <= r.cfg.LotSize {
		return 0
	}
	q := floorLot(int64(float64(held)*frac), r.cfg.LotSize)
	if q < r.cfg.LotSize {
		q = r.cfg.LotSize
	}
	return q
}
