package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical day key used in the ledger and logs.
const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is one of buy, sell or hold.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Bar is one daily OHLCV row for an instrument. Persisted bars are never mutated.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// IndicatorRow is a Bar plus derived indicator values. NaN marks a value
// whose lookback is not yet satisfied.
type IndicatorRow struct {
	Bar
	MAShort      float64 `json:"ma_short"`
	MALong       float64 `json:"ma_long"`
	RSI          float64 `json:"rsi"`
	K            float64 `json:"k"`
	D            float64 `json:"d"`
	J            float64 `json:"j"`
	DIF          float64 `json:"dif"`
	DEA          float64 `json:"dea"`
	MACDHist     float64 `json:"macd_hist"`
	DonchianHigh float64 `json:"donchian_high"`
	DonchianLow  float64 `json:"donchian_low"`
	ATR          float64 `json:"atr"`
}

type RuleSignal struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Rules      []string  `json:"rules,omitempty"`
}

// Judgment is the parsed answer of the completion service. Optional
// suggestions are nil when the model did not supply them.
type Judgment struct {
	Instrument    string    `json:"instrument"`
	Date          time.Time `json:"date"`
	Action        Action    `json:"action"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning"`
	StopLossPct   *float64  `json:"stop_loss_pct,omitempty"`
	TakeProfitPct *float64  `json:"take_profit_pct,omitempty"`
	PositionPct   *float64  `json:"position_pct,omitempty"`
	Model         string    `json:"model,omitempty"`
	Attempts      int       `json:"attempts"`
	Neutral       bool      `json:"neutral"`
}

// NeutralJudgment is the degraded answer used when no model could be reached
// or the daily call budget is spent.
func NeutralJudgment(instrument string, date time.Time, reason string) Judgment {
	return Judgment{
		Instrument: instrument,
		Date:       date,
		Action:     ActionHold,
		Confidence: 0,
		Reasoning:  reason,
		Neutral:    true,
	}
}

// Decision is the consensus output that is actually acted on.
type Decision struct {
	Instrument     string    `json:"instrument"`
	Date           time.Time `json:"date"`
	Action         Action    `json:"action"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning"`
	PositionPct    float64   `json:"position_pct"`
	RuleAction     Action    `json:"rule_action"`
	JudgmentAction Action    `json:"judgment_action"`
	JudgmentModel  string    `json:"judgment_model,omitempty"`
}

type RiskState string

const (
	RiskFlat       RiskState = "FLAT"
	RiskOpen       RiskState = "OPEN"
	RiskStopped    RiskState = "STOPPED"
	RiskTookProfit RiskState = "TOOK_PROFIT"
	RiskClosed     RiskState = "CLOSED"
)

type Position struct {
	Instrument    string          `json:"instrument"`
	Quantity      int64           `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	HighWaterMark float64         `json:"high_water_mark"`
	OpenedOn      time.Time       `json:"opened_on"`
	TookProfit    bool            `json:"took_profit"`

	// levels suggested by the judgment at entry, as fractions of average
	// cost; zero when none was given
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
}

// Trigger names what caused a trade.
type Trigger string

const (
	TriggerConsensus    Trigger = "RULE_CONSENSUS"
	TriggerHardStop     Trigger = "HARD_STOP"
	TriggerTakeProfit   Trigger = "TAKE_PROFIT"
	TriggerTrailingStop Trigger = "TRAILING_STOP"
	TriggerModelStop    Trigger = "MODEL_STOP"
	TriggerModelTarget  Trigger = "MODEL_TARGET"
)

// Trade is an immutable ledger row.
type Trade struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"`
	Date       time.Time       `json:"date"`
	Action     Action          `json:"action"`
	Quantity   int64           `json:"quantity"`
	ExecPrice  decimal.Decimal `json:"exec_price"`
	Fee        decimal.Decimal `json:"fee"`
	CashAfter  decimal.Decimal `json:"cash_after"`
	Trigger    Trigger         `json:"trigger"`
	Reasoning  string          `json:"reasoning"`

	// judgment stop and target carried by buys, zero when absent
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
}

// Notional is quantity times execution price.
func (t Trade) Notional() decimal.Decimal {
	return t.ExecPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// CashDelta is the signed cash movement of the trade.
func (t Trade) CashDelta() decimal.Decimal {
	switch t.Action {
	case ActionBuy:
		return t.Notional().Add(t.Fee).Neg()
	case ActionSell:
		return t.Notional().Sub(t.Fee)
	}
	return decimal.Zero
}

type EquitySnapshot struct {
	Date           time.Time       `json:"date"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalEquity    decimal.Decimal `json:"total_equity"`
	Stale          bool            `json:"stale"`
	Suspect        bool            `json:"suspect"`
}

// PortfolioState is the derived view of the ledger for one run.
type PortfolioState struct {
	Cash      decimal.Decimal      `json:"cash"`
	Positions map[string]*Position `json:"positions"`
}

func NewPortfolioState(cash decimal.Decimal) *PortfolioState {
	return &PortfolioState{Cash: cash, Positions: map[string]*Position{}}
}

// Held returns the held quantity of instrument, zero when flat.
func (p *PortfolioState) Held(instrument string) int64 {
	if pos := p.Positions[instrument]; pos != nil {
		return pos.Quantity
	}
	return 0
}

// Equity values the portfolio at the given closes, falling back to the
// average cost when an instrument has no price.
func (p *PortfolioState) Equity(closes map[string]float64) (cash, positions, total decimal.Decimal) {
	positions = decimal.Zero
	for inst, pos := range p.Positions {
		px := pos.AverageCost
		if c, ok := closes[inst]; ok && c > 0 {
			px = decimal.NewFromFloat(c)
		}
		positions = positions.Add(px.Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return p.Cash, positions, p.Cash.Add(positions)
}
