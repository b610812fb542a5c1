package eod

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"etf-trader/internal/types"
)

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "eod", types.DateKey(t)+".csv")
}

func holdingsCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "holdings", types.DateKey(t)+".csv")
}

// writeCSV replaces path with rows marshalled by gocsv.
func writeCSV(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(rows, out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
