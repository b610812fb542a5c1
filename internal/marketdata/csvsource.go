package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/types"
)

type csvBar struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// CSV serves bars from <dir>/<instrument>.csv files with a
// date,open,high,low,close,volume header. Used for offline runs and replays
// of exported history.
type CSV struct {
	dir string
}

var _ interfaces.MarketData = (*CSV)(nil)

func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

func (c *CSV) Bars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(c.dir, instrument+".csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
	}

	start, end = types.Day(start), types.Day(end)
	bars := make([]types.Bar, 0, len(rows))
	for i, r := range rows {
		d, err := time.Parse(types.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", f.Name(), i+1, err)
		}
		if d.Before(start) || d.After(end) || r.Close <= 0 {
			continue
		}
		bars = append(bars, types.Bar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
