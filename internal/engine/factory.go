package engine

import (
	"etf-trader/internal/interfaces"
	"etf-trader/internal/store"
)

func New(cfg *store.Config, history interfaces.HistorySource, judge interfaces.Judge, ledger interfaces.Ledger) (interfaces.Runner, error) {
	return NewRunner(cfg, history, judge, ledger)
}
