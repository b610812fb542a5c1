package marketdata

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/types"
)

// exchange quotes are stamped in China Standard Time
var cst = time.FixedZone("CST", 8*60*60)

// Yahoo reads daily bars from the Yahoo Finance chart endpoint.
type Yahoo struct{}

var _ interfaces.MarketData = (*Yahoo)(nil)

func NewYahoo() *Yahoo {
	return &Yahoo{}
}

// YahooSymbol maps a six digit exchange code to its Yahoo ticker: Shanghai
// codes start with 5 or 6, everything else trades in Shenzhen. Anything that
// already carries a suffix is returned unchanged.
func YahooSymbol(instrument string) string {
	if len(instrument) != 6 {
		return instrument
	}
	for _, r := range instrument {
		if r < '0' || r > '9' {
			return instrument
		}
	}
	switch instrument[0] {
	case '5', '6':
		return instrument + ".SS"
	}
	return instrument + ".SZ"
}

func (y *Yahoo) Bars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// chart end is exclusive
	until := end.AddDate(0, 0, 1)
	iter := chart.Get(&chart.Params{
		Symbol:   YahooSymbol(instrument),
		Start:    datetime.New(&start),
		End:      datetime.New(&until),
		Interval: datetime.OneDay,
	})

	var bars []types.Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b, ok := barFromChart(iter.Bar()); ok {
			bars = append(bars, b)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", instrument, err)
	}
	return bars, nil
}

// barFromChart converts one chart bar. Bars without a close are gaps in the
// feed and are dropped.
func barFromChart(b *finance.ChartBar) (types.Bar, bool) {
	if b == nil || !b.Close.IsPositive() {
		return types.Bar{}, false
	}
	return types.Bar{
		Date:   types.Day(time.Unix(int64(b.Timestamp), 0).In(cst)),
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: float64(b.Volume),
	}, true
}
