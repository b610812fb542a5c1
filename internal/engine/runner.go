package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"etf-trader/internal/id"
	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/signal"
	"etf-trader/internal/store"
	"etf-trader/internal/ta"
	"etf-trader/internal/types"
)

// Stage names the step of the daily pipeline currently running.
type Stage string

const (
	StageIdle         Stage = "IDLE"
	StageFetching     Stage = "FETCHING"
	StageSignaling    Stage = "SIGNALING"
	StageJudging      Stage = "JUDGING"
	StageResolving    Stage = "RESOLVING"
	StageExecuting    Stage = "EXECUTING"
	StageSnapshotting Stage = "SNAPSHOTTING"
)

// Runner executes the daily pipeline: replay, fetch, risk overlay, the core
// wave, the observe wave when the core produced no buy, then the snapshot.
type Runner struct {
	cfg     *store.Config
	history interfaces.HistorySource
	judge   interfaces.Judge
	ledger  interfaces.Ledger

	gen    *signal.Generator
	params ta.Params
	sizer  Sizer
	risk   RiskOverlay
	costs  Costs
}

var _ interfaces.Runner = (*Runner)(nil)

func NewRunner(cfg *store.Config, history interfaces.HistorySource, judge interfaces.Judge, ledger interfaces.Ledger) (*Runner, error) {
	gen, err := signal.NewGenerator(signal.Strategy(cfg.Strategy.Mode), ThresholdsFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	costs := CostsFrom(cfg)
	return &Runner{
		cfg:     cfg,
		history: history,
		judge:   judge,
		ledger:  ledger,
		gen:     gen,
		params:  ParamsFrom(cfg),
		sizer:   NewSizer(SizingFrom(cfg), costs),
		risk:    NewRiskOverlay(RiskFrom(cfg)),
		costs:   costs,
	}, nil
}

func ParamsFrom(cfg *store.Config) ta.Params {
	p := ta.DefaultParams()
	p.MAShort = cfg.Strategy.MAShort
	p.MALong = cfg.Strategy.MALong
	p.RSIPeriod = cfg.Strategy.RSIN
	p.BreakoutN = cfg.Strategy.BreakoutN
	if cfg.Strategy.ATRPeriod > 0 {
		p.ATRPeriod = cfg.Strategy.ATRPeriod
	}
	return p
}

func ThresholdsFrom(cfg *store.Config) signal.Thresholds {
	return signal.Thresholds{
		BreakoutN: cfg.Strategy.BreakoutN,
		RSIN:      cfg.Strategy.RSIN,
		RSILow:    cfg.Strategy.RSILow,
		RSIHigh:   cfg.Strategy.RSIHigh,
		KDJLow:    cfg.Strategy.KDJLow,
		KDJHigh:   cfg.Strategy.KDJHigh,
	}
}

// dayRun is the state of one Run call.
type dayRun struct {
	asOf      time.Time
	res       *types.RunResult
	exec      *Executor
	histories map[string]types.History
	fetchErr  map[string]error
	closes    map[string]float64
	ranks     map[string]signal.Rank
	riskActed map[string]bool
	outcomes  map[string]*types.Outcome
	order     []string
	budget    int
	anyFresh  bool
}

func (d *dayRun) outcome(inst string, pool types.Pool) *types.Outcome {
	if o, ok := d.outcomes[inst]; ok {
		return o
	}
	o := &types.Outcome{Instrument: inst, Pool: pool}
	d.outcomes[inst] = o
	d.order = append(d.order, inst)
	return o
}

func (r *Runner) stage(ctx context.Context, s Stage, args ...any) {
	logger.Info(ctx, "Runner stage", append([]any{"stage", string(s)}, args...)...)
}

func (r *Runner) poolOf(inst string) types.Pool {
	for _, s := range r.cfg.Universe.Core {
		if s == inst {
			return types.PoolCore
		}
	}
	for _, s := range r.cfg.Universe.Observe {
		if s == inst {
			return types.PoolObserve
		}
	}
	return types.PoolHeld
}

// Run processes one trading date. Instrument failures are recorded in the
// result and never abort the run. A date that already has a snapshot is
// refused with types.ErrSnapshotExists.
func (r *Runner) Run(ctx context.Context, asOf time.Time) (*types.RunResult, error) {
	asOf = types.Day(asOf)
	dryRun := r.cfg.DryRun()
	res := &types.RunResult{RunID: id.New(), Date: asOf, DryRun: dryRun}
	dateKey := types.DateKey(asOf)

	if !dryRun {
		_, exists, err := r.ledger.Snapshot(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("check snapshot %s: %w", dateKey, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", types.ErrSnapshotExists, dateKey)
		}
	}

	r.stage(ctx, StageFetching, "date", dateKey, "run_id", res.RunID)
	initial := decimal.NewFromFloat(r.cfg.InitialCapital)
	trades, err := r.ledger.Trades(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	state, err := Replay(initial, trades)
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}

	d := &dayRun{
		asOf:      asOf,
		res:       res,
		exec:      NewExecutor(r.ledger, state, r.costs, r.cfg.Sizing.LotSize, dryRun),
		histories: map[string]types.History{},
		fetchErr:  map[string]error{},
		closes:    map[string]float64{},
		ranks:     map[string]signal.Rank{},
		riskActed: map[string]bool{},
		outcomes:  map[string]*types.Outcome{},
		budget:    r.cfg.LLM.DailyCap,
	}

	r.fetch(ctx, d, HeldInstruments(state))
	if r.cfg.Ranking.Enabled {
		r.rank(ctx, d)
	}

	r.stage(ctx, StageExecuting, "step", "risk_overlay")
	r.applyRisk(ctx, d)

	res.Waves = 1
	if bought := r.wave(ctx, d, types.PoolCore, r.cfg.Universe.Core); !bought && len(r.cfg.Universe.Observe) > 0 {
		logger.Info(ctx, "No buy in core pool, evaluating observe pool", "observe", len(r.cfg.Universe.Observe))
		res.Waves = 2
		r.wave(ctx, d, types.PoolObserve, r.cfg.Universe.Observe)
	}

	r.stage(ctx, StageSnapshotting)
	snap, err := r.snapshot(ctx, d)
	res.Snapshot = snap
	for _, inst := range d.order {
		res.Outcomes = append(res.Outcomes, *d.outcomes[inst])
	}
	if err != nil {
		return res, err
	}
	if !dryRun {
		r.replayGuard(ctx, initial, d.exec.State())
	}

	r.stage(ctx, StageIdle,
		"trades", len(res.Trades),
		"judgment_calls", res.JudgmentCalls,
		"total_equity", snap.TotalEquity.StringFixed(2),
		"stale", snap.Stale,
	)
	return res, nil
}

// fetch loads history for the core and observe pools plus any held
// instrument outside them.
func (r *Runner) fetch(ctx context.Context, d *dayRun, held []string) {
	start := d.asOf.AddDate(0, 0, -r.cfg.Data.HistoryDays)
	seen := map[string]bool{}
	universe := append(r.cfg.Instruments(), held...)
	for _, inst := range universe {
		if seen[inst] {
			continue
		}
		seen[inst] = true

		h, err := r.history.History(ctx, inst, start, d.asOf)
		if err == nil {
			h.Bars = upTo(h.Bars, d.asOf)
			if len(h.Bars) == 0 {
				err = fmt.Errorf("%w: no bars up to %s", types.ErrDataUnavailable, types.DateKey(d.asOf))
			}
		}
		if err != nil {
			d.fetchErr[inst] = err
			logger.ErrorWithErr(ctx, "Instrument data unavailable", err,
				"instrument", inst,
				"date", types.DateKey(d.asOf),
			)
			continue
		}
		d.histories[inst] = h
		last, _ := h.Last()
		d.closes[inst] = last.Close
		if h.Fresh {
			d.anyFresh = true
		} else {
			logger.Warn(ctx, "Using stored bars", "instrument", inst, "last_bar", types.DateKey(last.Date))
		}
	}
}

func (r *Runner) rank(ctx context.Context, d *dayRun) {
	hist := map[string][]types.Bar{}
	for _, inst := range r.cfg.Instruments() {
		if h, ok := d.histories[inst]; ok {
			hist[inst] = h.Bars
		}
	}
	ranks, scored := signal.TopKMomentum(hist, r.cfg.Ranking.Lookback, r.cfg.Ranking.TopK)
	d.ranks = ranks
	if logger.IsDebugEnabled() {
		for i, m := range scored {
			logger.Debug(ctx, "Momentum rank", "rank", i+1, "instrument", m.Instrument, "return", m.Return)
		}
	}
}

// applyRisk evaluates every open position before any decision may act. An
// instrument the overlay acted on is skipped by the waves.
func (r *Runner) applyRisk(ctx context.Context, d *dayRun) {
	state := d.exec.State()
	for _, inst := range HeldInstruments(state) {
		pos := state.Positions[inst]
		h, ok := d.histories[inst]
		if !ok {
			continue
		}
		last, _ := h.Last()
		r.risk.RebuildHighWater(pos, closesSince(h.Bars, pos.OpenedOn, last.Date))
		if !h.Fresh {
			continue
		}

		ev := r.risk.Evaluate(pos, last.Close)
		if !ev.Fired() {
			continue
		}
		d.riskActed[inst] = true
		logger.Risk(ctx, inst, string(ev.Trigger),
			"state", string(ev.State),
			"close", ev.Close,
			"gain", ev.Gain,
			"high_water_mark", ev.HighWaterMark,
			"quantity", ev.Quantity,
		)

		out := d.outcome(inst, r.poolOf(inst))
		out.Risk = ev.Trigger
		t, err := d.exec.Execute(ctx, Order{
			Instrument: inst,
			Date:       d.asOf,
			Action:     types.ActionSell,
			Quantity:   ev.Quantity,
			Close:      ev.Close,
			Trigger:    ev.Trigger,
			Reasoning:  ev.Reason,
		})
		if err != nil {
			out.Err = err.Error()
			logger.ErrorWithErr(ctx, "Risk exit failed", err, "instrument", inst, "date", types.DateKey(d.asOf))
			continue
		}
		if t != nil {
			out.Trade = t
			d.res.Trades = append(d.res.Trades, *t)
		}
	}
}

// liquid applies the minimum average turnover filter.
func (r *Runner) liquid(h types.History) (bool, float64) {
	floor := r.cfg.Universe.MinAvgTurnover
	if floor <= 0 {
		return true, 0
	}
	n := r.cfg.Universe.TurnoverWindow
	if n <= 0 || n > len(h.Bars) {
		n = len(h.Bars)
	}
	turnover := make([]float64, 0, n)
	for _, b := range h.Bars[len(h.Bars)-n:] {
		turnover = append(turnover, b.Close*b.Volume)
	}
	avg, err := stats.Mean(turnover)
	if err != nil {
		return false, 0
	}
	return avg >= floor, avg
}

type judgeJob struct {
	inst     string
	rule     types.RuleSignal
	req      types.JudgmentRequest
	call     bool
	judgment types.Judgment
	out      *types.Outcome
}

// wave runs one pool: signals serially, judgments concurrently, then
// resolution and execution serially in pool order. It reports whether any
// decision was a buy.
func (r *Runner) wave(ctx context.Context, d *dayRun, pool types.Pool, insts []string) bool {
	r.stage(ctx, StageSignaling, "pool", string(pool), "instruments", len(insts))
	state := d.exec.State()
	var jobs []*judgeJob
	for _, inst := range insts {
		out := d.outcome(inst, pool)
		if d.riskActed[inst] {
			logger.Info(ctx, "Risk overlay acted today, decision skipped", "instrument", inst)
			continue
		}
		if err := d.fetchErr[inst]; err != nil {
			out.Err = err.Error()
			continue
		}
		h := d.histories[inst]
		if !h.Fresh {
			out.Err = "no fresh data, holding"
			continue
		}
		if ok, avg := r.liquid(h); !ok {
			out.Err = fmt.Sprintf("average turnover %.0f below minimum", avg)
			logger.Info(ctx, "Instrument filtered by turnover", "instrument", inst, "avg_turnover", avg)
			continue
		}

		rows := ta.Table(h.Bars, r.params)
		rule := r.gen.Generate(inst, rows, d.ranks[inst])
		rule.Date = d.asOf
		out.Rule = &rule

		job := &judgeJob{inst: inst, rule: rule, out: out}
		job.req = types.JudgmentRequest{Instrument: inst, Date: d.asOf, Rows: rows, Rule: rule}
		if pos := state.Positions[inst]; pos != nil {
			cp := *pos
			job.req.Position = &cp
		}
		switch {
		case r.cfg.LLM.OnlyOnRuleSignal && rule.Action == types.ActionHold:
			job.judgment = types.NeutralJudgment(inst, d.asOf, "rule signal is hold, judgment skipped")
		case d.budget <= 0:
			job.judgment = types.NeutralJudgment(inst, d.asOf, "daily judgment cap reached")
		default:
			d.budget--
			d.res.JudgmentCalls++
			job.call = true
		}
		jobs = append(jobs, job)
	}

	r.stage(ctx, StageJudging, "pool", string(pool), "calls", countCalls(jobs))
	r.judgeAll(ctx, jobs)

	r.stage(ctx, StageResolving, "pool", string(pool))
	bought := false
	for _, job := range jobs {
		if r.resolve(ctx, d, pool, job) == types.ActionBuy {
			bought = true
		}
	}
	return bought
}

func countCalls(jobs []*judgeJob) int {
	n := 0
	for _, j := range jobs {
		if j.call {
			n++
		}
	}
	return n
}

// judgeAll issues the real judgment calls with bounded concurrency.
func (r *Runner) judgeAll(ctx context.Context, jobs []*judgeJob) {
	limit := r.cfg.LLM.Concurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, job := range jobs {
		if !job.call {
			continue
		}
		wg.Add(1)
		go func(job *judgeJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			job.judgment = r.judge.Judge(ctx, job.req)
		}(job)
	}
	wg.Wait()
}

// resolve reconciles, sizes and executes one instrument.
func (r *Runner) resolve(ctx context.Context, d *dayRun, pool types.Pool, job *judgeJob) types.Action {
	jm := job.judgment
	job.out.Judgment = &jm

	dec := Resolve(job.rule, jm)
	dec.Date = d.asOf
	if dec.Action != types.ActionHold {
		dec.PositionPct = r.sizer.TargetPct(dec.Confidence, jm.PositionPct)
	}
	job.out.Decision = &dec
	logger.Decision(ctx, job.inst, string(dec.Action), dec.Confidence, dec.Reasoning,
		"pool", string(pool),
		"rule_action", string(dec.RuleAction),
		"judgment_action", string(dec.JudgmentAction),
		"judgment_neutral", jm.Neutral,
	)
	if !d.res.DryRun {
		if err := r.ledger.AppendDecision(ctx, dec); err != nil {
			logger.ErrorWithErr(ctx, "Failed to record decision", err, "instrument", job.inst)
		}
	}
	if dec.Action == types.ActionHold {
		return dec.Action
	}

	state := d.exec.State()
	px := d.closes[job.inst]
	_, _, equity := state.Equity(d.closes)
	qty := r.sizer.Quantity(dec, state.Held(job.inst), state.Cash, equity, px)
	if qty == 0 {
		logger.Info(ctx, "Decision sized to zero shares", "instrument", job.inst, "action", string(dec.Action), "position_pct", dec.PositionPct)
		return dec.Action
	}

	t, err := d.exec.Execute(ctx, Order{
		Instrument: job.inst,
		Date:       d.asOf,
		Action:     dec.Action,
		Quantity:   qty,
		Close:      px,
		Trigger:    types.TriggerConsensus,
		Reasoning:  dec.Reasoning,

		StopLossPct:   valueOr(jm.StopLossPct, 0),
		TakeProfitPct: valueOr(jm.TakeProfitPct, 0),
	})
	if err != nil {
		job.out.Err = err.Error()
		logger.ErrorWithErr(ctx, "Trade execution failed", err, "instrument", job.inst, "date", types.DateKey(d.asOf))
		return dec.Action
	}
	if t != nil {
		job.out.Trade = t
		d.res.Trades = append(d.res.Trades, *t)
	}
	return dec.Action
}

// snapshot values the portfolio at the latest known closes and writes the
// day's equity row.
func (r *Runner) snapshot(ctx context.Context, d *dayRun) (types.EquitySnapshot, error) {
	state := d.exec.State()
	cash, positions, total := state.Equity(d.closes)
	snap := types.EquitySnapshot{
		Date:           d.asOf,
		Cash:           cash,
		PositionsValue: positions,
		TotalEquity:    total,
		Stale:          !d.anyFresh,
	}

	prev, hasPrev, err := r.ledger.LatestSnapshotBefore(ctx, d.asOf)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load previous snapshot", err, "date", types.DateKey(d.asOf))
		hasPrev = false
	}
	if snap.Stale {
		logger.Warn(ctx, "No fresh market data today, snapshot is stale", "date", types.DateKey(d.asOf))
		if hasPrev && len(d.res.Trades) == 0 {
			snap.Cash, snap.PositionsValue, snap.TotalEquity = prev.Cash, prev.PositionsValue, prev.TotalEquity
		}
	}

	if guard := r.cfg.EquityGuard.MaxDailyChangePct; hasPrev && guard > 0 && prev.TotalEquity.IsPositive() {
		change := snap.TotalEquity.Div(prev.TotalEquity).Sub(one).Abs().InexactFloat64()
		if change > guard {
			snap.Suspect = true
			logger.Risk(ctx, "", "EQUITY_GUARD",
				"previous", prev.TotalEquity.StringFixed(2),
				"current", snap.TotalEquity.StringFixed(2),
				"change", change,
				"limit", guard,
			)
		}
	}

	if d.res.DryRun {
		return snap, nil
	}
	if err := r.ledger.AppendSnapshot(ctx, snap); err != nil {
		if errors.Is(err, types.ErrSnapshotExists) {
			return snap, err
		}
		return snap, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// replayGuard re-derives the portfolio from the ledger and compares it with
// the live state.
func (r *Runner) replayGuard(ctx context.Context, initial decimal.Decimal, live *types.PortfolioState) {
	op := logger.StartOperation(ctx, "replay_guard")
	trades, err := r.ledger.Trades(op.Context())
	if err != nil {
		op.EndWithError(err, "step", "load_trades")
		return
	}
	replayed, err := Replay(initial, trades)
	if err != nil {
		op.EndWithError(err, "step", "replay")
		return
	}
	if diffs := Diff(replayed, live); len(diffs) > 0 {
		logger.Error(op.Context(), "Replay guard mismatch", "diffs", diffs)
	}
	op.End("trades", len(trades))
}
