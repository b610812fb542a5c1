package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"etf-trader/internal/id"
	"etf-trader/internal/logger"
	"etf-trader/internal/types"
)

// TradeAppender is the slice of the ledger the executor writes to.
type TradeAppender interface {
	AppendTrade(ctx context.Context, t types.Trade) error
}

// Order is a request to trade that has not been filled yet.
type Order struct {
	Instrument string
	Date       time.Time
	Action     types.Action
	Quantity   int64
	Close      float64
	Trigger    types.Trigger
	Reasoning  string

	// judgment levels recorded with a buy
	StopLossPct   float64
	TakeProfitPct float64
}

// Executor is the only writer of the portfolio. Every fill is appended to
// the ledger first and applied to the portfolio second, under one lock.
type Executor struct {
	mu     sync.Mutex
	ledger TradeAppender
	state  *types.PortfolioState
	costs  Costs
	lot    int64
	dryRun bool
	newID  func() string
}

func NewExecutor(ledger TradeAppender, state *types.PortfolioState, costs Costs, lotSize int64, dryRun bool) *Executor {
	if lotSize < 1 {
		lotSize = 1
	}
	return &Executor{ledger: ledger, state: state, costs: costs, lot: lotSize, dryRun: dryRun, newID: id.New}
}

// State exposes the live portfolio. Callers must not mutate it.
func (e *Executor) State() *types.PortfolioState {
	return e.state
}

// Execute fills o at o.Close adjusted for slippage and fee. Holds and orders
// that clamp to zero shares return (nil, nil) without touching anything.
// Sells are clamped to the holding and buys to what cash affords.
func (e *Executor) Execute(ctx context.Context, o Order) (*types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o.Action == types.ActionHold || o.Quantity <= 0 || o.Close <= 0 {
		return nil, nil
	}

	qty := o.Quantity
	exec := e.costs.Fill(o.Action, o.Close)
	switch o.Action {
	case types.ActionSell:
		if held := e.state.Held(o.Instrument); qty > held {
			logger.Debug(ctx, "Sell clamped to holding", "instrument", o.Instrument, "requested", qty, "held", held)
			qty = held
		}
	case types.ActionBuy:
		perShare := exec.Mul(one.Add(e.costs.Cost))
		affordable := floorLot(e.state.Cash.Div(perShare).IntPart(), e.lot)
		if qty > affordable {
			logger.Debug(ctx, "Buy clamped to available cash", "instrument", o.Instrument, "requested", qty, "affordable", affordable)
			qty = affordable
		}
	default:
		return nil, fmt.Errorf("execute %s: unexpected action %q", o.Instrument, o.Action)
	}
	if qty <= 0 {
		return nil, nil
	}

	t := types.Trade{
		ID:         e.newID(),
		Instrument: o.Instrument,
		Date:       o.Date,
		Action:     o.Action,
		Quantity:   qty,
		ExecPrice:  exec,
		Fee:        e.costs.Fee(qty, exec),
		Trigger:    o.Trigger,
		Reasoning:  o.Reasoning,
	}
	if o.Action == types.ActionBuy {
		t.StopLossPct, t.TakeProfitPct = o.StopLossPct, o.TakeProfitPct
	}
	t.CashAfter = e.state.Cash.Add(t.CashDelta())

	if e.dryRun {
		logger.Info(ctx, "Dry run, trade not recorded",
			"instrument", t.Instrument,
			"side", t.Action,
			"qty", t.Quantity,
			"exec_price", t.ExecPrice.String(),
			"trigger", t.Trigger,
		)
		return &t, nil
	}

	if err := e.ledger.AppendTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("record trade %s %s: %w", t.Action, t.Instrument, err)
	}
	if err := applyTrade(e.state, t); err != nil {
		// the row is already in the ledger; the next replay will surface this
		return nil, err
	}

	logger.Trade(ctx, t.Instrument, string(t.Action), t.Quantity, t.ExecPrice.InexactFloat64(), t.ID,
		"fee", t.Fee.String(),
		"cash_after", t.CashAfter.String(),
		"trigger", t.Trigger,
	)
	return &t, nil
}
