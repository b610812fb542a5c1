package eod

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"etf-trader/internal/engine"
	"etf-trader/internal/interfaces"
	"etf-trader/internal/types"
)

// LedgerReader is the read side of the ledger the reports need.
type LedgerReader interface {
	Trades(ctx context.Context) ([]types.Trade, error)
	TradesOn(ctx context.Context, date time.Time) ([]types.Trade, error)
	LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error)
}

type eodSummarizer struct {
	ledger      LedgerReader
	dir         string
	initialCash decimal.Decimal
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

type agg struct {
	buyQty, sellQty     int64
	buyValue, sellValue decimal.Decimal
	fees, realized      decimal.Decimal
}

// position cost tracker used to price realized PnL
type lot struct {
	qty int64
	avg decimal.Decimal
}

// SummarizeDay writes one row per instrument traded on day plus a TOTAL
// row. It returns an empty path when nothing traded.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, day time.Time) (string, error) {
	day = types.Day(day)
	all, err := s.ledger.Trades(ctx)
	if err != nil {
		return "", fmt.Errorf("load trades: %w", err)
	}

	aggs := map[string]*agg{}
	lots := map[string]*lot{}
	for _, t := range all {
		if t.Date.After(day) {
			continue
		}
		l := lots[t.Instrument]
		if l == nil {
			l = &lot{}
			lots[t.Instrument] = l
		}
		q := decimal.NewFromInt(t.Quantity)

		var realized decimal.Decimal
		switch t.Action {
		case types.ActionBuy:
			l.avg = l.avg.Mul(decimal.NewFromInt(l.qty)).Add(t.Notional()).Div(decimal.NewFromInt(l.qty + t.Quantity))
			l.qty += t.Quantity
		case types.ActionSell:
			realized = t.ExecPrice.Sub(l.avg).Mul(q).Sub(t.Fee)
			l.qty -= t.Quantity
			if l.qty <= 0 {
				delete(lots, t.Instrument)
			}
		}
		if !t.Date.Equal(day) {
			continue
		}

		a := aggs[t.Instrument]
		if a == nil {
			a = &agg{}
			aggs[t.Instrument] = a
		}
		a.fees = a.fees.Add(t.Fee)
		if t.Action == types.ActionBuy {
			a.buyQty += t.Quantity
			a.buyValue = a.buyValue.Add(t.Notional())
		} else {
			a.sellQty += t.Quantity
			a.sellValue = a.sellValue.Add(t.Notional())
			a.realized = a.realized.Add(realized)
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]*summaryRow, 0, len(keys)+1)
	var total agg
	for _, k := range keys {
		a := aggs[k]
		rows = append(rows, &summaryRow{
			Instrument:     k,
			BuyQty:         a.buyQty,
			BuyAvg:         avgPrice(a.buyValue, a.buyQty),
			SellQty:        a.sellQty,
			SellAvg:        avgPrice(a.sellValue, a.sellQty),
			Fees:           a.fees.StringFixed(2),
			RealizedPnL:    a.realized.StringFixed(2),
			GrossBuyValue:  a.buyValue.StringFixed(2),
			GrossSellValue: a.sellValue.StringFixed(2),
		})
		total.fees = total.fees.Add(a.fees)
		total.realized = total.realized.Add(a.realized)
		total.buyValue = total.buyValue.Add(a.buyValue)
		total.sellValue = total.sellValue.Add(a.sellValue)
	}
	rows = append(rows, &summaryRow{
		Instrument:     "TOTAL",
		Fees:           total.fees.StringFixed(2),
		RealizedPnL:    total.realized.StringFixed(2),
		GrossBuyValue:  total.buyValue.StringFixed(2),
		GrossSellValue: total.sellValue.StringFixed(2),
	})

	path := eodCSVPath(s.dir, day)
	if err := writeCSV(path, &rows); err != nil {
		return "", err
	}
	return path, nil
}

func avgPrice(value decimal.Decimal, qty int64) string {
	if qty == 0 {
		return decimal.Zero.StringFixed(4)
	}
	return value.Div(decimal.NewFromInt(qty)).StringFixed(4)
}

// HoldingsBreakdown values the portfolio as of the close of day: one row per
// position at its last stored close (average cost when none), then CASH.
func (s *eodSummarizer) HoldingsBreakdown(ctx context.Context, day time.Time) (string, error) {
	day = types.Day(day)
	all, err := s.ledger.Trades(ctx)
	if err != nil {
		return "", fmt.Errorf("load trades: %w", err)
	}
	upTo := all[:0:0]
	for _, t := range all {
		if !t.Date.After(day) {
			upTo = append(upTo, t)
		}
	}
	state, err := engine.Replay(s.initialCash, upTo)
	if err != nil {
		return "", fmt.Errorf("replay ledger: %w", err)
	}

	closes := map[string]float64{}
	for _, inst := range engine.HeldInstruments(state) {
		bars, err := s.ledger.LoadBars(ctx, inst, day.AddDate(0, 0, -30))
		if err != nil {
			return "", fmt.Errorf("load bars %s: %w", inst, err)
		}
		for i := len(bars) - 1; i >= 0; i-- {
			if !bars[i].Date.After(day) {
				closes[inst] = bars[i].Close
				break
			}
		}
	}
	cash, _, total := state.Equity(closes)

	weight := func(v decimal.Decimal) string {
		if !total.IsPositive() {
			return "0.0000"
		}
		return v.Div(total).StringFixed(4)
	}

	var rows []*holdingRow
	for _, inst := range engine.HeldInstruments(state) {
		pos := state.Positions[inst]
		px := pos.AverageCost
		if c, ok := closes[inst]; ok {
			px = decimal.NewFromFloat(c)
		}
		value := px.Mul(decimal.NewFromInt(pos.Quantity))
		rows = append(rows, &holdingRow{
			Instrument:  inst,
			Quantity:    pos.Quantity,
			AverageCost: pos.AverageCost.StringFixed(4),
			Close:       px.StringFixed(4),
			Value:       value.StringFixed(2),
			Weight:      weight(value),
		})
	}
	rows = append(rows, &holdingRow{
		Instrument: "CASH",
		Value:      cash.StringFixed(2),
		Weight:     weight(cash),
	})

	path := holdingsCSVPath(s.dir, day)
	if err := writeCSV(path, &rows); err != nil {
		return "", err
	}
	return path, nil
}
