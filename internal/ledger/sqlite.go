package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/types"
)

// SQLite is the append-only ledger backed by an embedded database file.
type SQLite struct {
	db *sql.DB
}

var _ interfaces.Ledger = (*SQLite)(nil)

func Open(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA busy_timeout=3000;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func parseDate(v string) (time.Time, error) {
	return time.Parse(types.DateLayout, v)
}

// SaveBars inserts bars that are not yet stored. Existing rows are never
// rewritten. It returns the number of new rows.
func (s *SQLite) SaveBars(ctx context.Context, instrument string, bars []types.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO bars (instrument, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.ExecContext(ctx, instrument, types.DateKey(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return 0, fmt.Errorf("insert bar %s %s: %w", instrument, types.DateKey(b.Date), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// LoadBars returns stored bars on or after since, oldest first.
func (s *SQLite) LoadBars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume FROM bars
		WHERE instrument = ? AND date >= ?
		ORDER BY date`, instrument, types.DateKey(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Bar
	for rows.Next() {
		var (
			b types.Bar
			d string
		)
		if err := rows.Scan(&d, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		if b.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendTrade(ctx context.Context, t types.Trade) error {
	if t.ID == "" {
		return errors.New("trade id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, instrument, date, action, quantity, exec_price, fee, cash_after, cause, reasoning, stop_loss_pct, take_profit_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Instrument, types.DateKey(t.Date), string(t.Action), t.Quantity,
		t.ExecPrice, t.Fee, t.CashAfter, string(t.Trigger), t.Reasoning,
		t.StopLossPct, t.TakeProfitPct,
	)
	if err != nil {
		return fmt.Errorf("append trade %s: %w", t.ID, err)
	}
	return nil
}

// Trades returns the whole ledger in append order.
func (s *SQLite) Trades(ctx context.Context) ([]types.Trade, error) {
	return s.queryTrades(ctx, `SELECT id, instrument, date, action, quantity, exec_price, fee, cash_after, cause, reasoning, stop_loss_pct, take_profit_pct
		FROM trades ORDER BY seq`)
}

func (s *SQLite) TradesOn(ctx context.Context, date time.Time) ([]types.Trade, error) {
	return s.queryTrades(ctx, `SELECT id, instrument, date, action, quantity, exec_price, fee, cash_after, cause, reasoning, stop_loss_pct, take_profit_pct
		FROM trades WHERE date = ? ORDER BY seq`, types.DateKey(date))
}

func (s *SQLite) queryTrades(ctx context.Context, q string, args ...any) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var (
			t               types.Trade
			d, act, trigger string
		)
		if err := rows.Scan(&t.ID, &t.Instrument, &d, &act, &t.Quantity, &t.ExecPrice, &t.Fee, &t.CashAfter, &trigger, &t.Reasoning, &t.StopLossPct, &t.TakeProfitPct); err != nil {
			return nil, err
		}
		if t.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		t.Action = types.Action(act)
		t.Trigger = types.Trigger(trigger)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendDecision(ctx context.Context, d types.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (instrument, date, action, confidence, reasoning, position_pct, rule_action, judgment_action, judgment_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Instrument, types.DateKey(d.Date), string(d.Action), d.Confidence, d.Reasoning,
		d.PositionPct, string(d.RuleAction), string(d.JudgmentAction), d.JudgmentModel,
	)
	return err
}

func (s *SQLite) DecisionsOn(ctx context.Context, date time.Time) ([]types.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, date, action, confidence, reasoning, position_pct, rule_action, judgment_action, judgment_model
		FROM decisions WHERE date = ? ORDER BY seq`, types.DateKey(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		var (
			d                          types.Decision
			day, act, ruleAct, judgAct string
		)
		if err := rows.Scan(&d.Instrument, &day, &act, &d.Confidence, &d.Reasoning, &d.PositionPct, &ruleAct, &judgAct, &d.JudgmentModel); err != nil {
			return nil, err
		}
		if d.Date, err = parseDate(day); err != nil {
			return nil, err
		}
		d.Action, d.RuleAction, d.JudgmentAction = types.Action(act), types.Action(ruleAct), types.Action(judgAct)
		out = append(out, d)
	}
	return out, rows.Err()
}

// AppendSnapshot writes the equity snapshot of a day. A second snapshot
// for the same day fails with types.ErrSnapshotExists.
func (s *SQLite) AppendSnapshot(ctx context.Context, e types.EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity (date, cash, positions_value, total_equity, stale, suspect)
		VALUES (?, ?, ?, ?, ?, ?)`,
		types.DateKey(e.Date), e.Cash, e.PositionsValue, e.TotalEquity, e.Stale, e.Suspect,
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", types.ErrSnapshotExists, types.DateKey(e.Date))
	}
	return err
}

func (s *SQLite) Snapshot(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error) {
	return s.scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT date, cash, positions_value, total_equity, stale, suspect
		FROM equity WHERE date = ?`, types.DateKey(date)))
}

// LatestSnapshotBefore returns the most recent snapshot strictly before date.
func (s *SQLite) LatestSnapshotBefore(ctx context.Context, date time.Time) (types.EquitySnapshot, bool, error) {
	return s.scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT date, cash, positions_value, total_equity, stale, suspect
		FROM equity WHERE date < ? ORDER BY date DESC LIMIT 1`, types.DateKey(date)))
}

func (s *SQLite) scanSnapshot(row *sql.Row) (types.EquitySnapshot, bool, error) {
	var (
		e types.EquitySnapshot
		d string
	)
	err := row.Scan(&d, &e.Cash, &e.PositionsValue, &e.TotalEquity, &e.Stale, &e.Suspect)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EquitySnapshot{}, false, nil
	}
	if err != nil {
		return types.EquitySnapshot{}, false, err
	}
	if e.Date, err = parseDate(d); err != nil {
		return types.EquitySnapshot{}, false, err
	}
	return e, true, nil
}
