package interfaces

import (
	"context"
	"time"

	"etf-trader/internal/types"
)

// Ledger is the append-only persistence store.
type Ledger interface {
	SaveBars(ctx context.Context, instrument string, bars []types.Bar) (int, error)
	LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error)

	AppendTrade(ctx context.Context, t types.Trade) error
	Trades(ctx context.Context) ([]types.Trade, error)
	TradesOn(ctx context.Context, date time.Time) ([]types.Trade, error)

	AppendDecision(ctx context.Context, d types.Decision) error
	DecisionsOn(ctx context.Context, date time.Time) ([]types.Decision, error)

	AppendSnapshot(ctx context.Context, s types.EquitySnapshot) error
	Snapshot(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error)
	LatestSnapshotBefore(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error)
}
