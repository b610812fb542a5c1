package types

import "time"

// Prompt is one completion request body, split the way chat APIs expect it.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// JudgmentRequest is what the Judgment Requester needs about one instrument.
type JudgmentRequest struct {
	Instrument string
	Date       time.Time
	Rows       []IndicatorRow
	Rule       RuleSignal
	// Position is nil when flat.
	Position *Position
}

type Pool string

const (
	PoolCore    Pool = "core"
	PoolObserve Pool = "observe"
	PoolHeld    Pool = "held"
)

// Outcome is what happened to one instrument during a run.
type Outcome struct {
	Instrument string      `json:"instrument"`
	Pool       Pool        `json:"pool"`
	Rule       *RuleSignal `json:"rule,omitempty"`
	Judgment   *Judgment   `json:"judgment,omitempty"`
	Decision   *Decision   `json:"decision,omitempty"`
	Trade      *Trade      `json:"trade,omitempty"`
	Risk       Trigger     `json:"risk,omitempty"`
	Err        string      `json:"error,omitempty"`
}

type RunResult struct {
	RunID         string         `json:"run_id"`
	Date          time.Time      `json:"date"`
	Waves         int            `json:"waves"`
	JudgmentCalls int            `json:"judgment_calls"`
	Outcomes      []Outcome      `json:"outcomes"`
	Trades        []Trade        `json:"trades"`
	Snapshot      EquitySnapshot `json:"snapshot"`
	DryRun        bool           `json:"dry_run"`
}

// History is an instrument's bar series as returned by the fetch layer.
// Fresh is false when the provider failed and stored bars were used.
type History struct {
	Instrument string
	Bars       []Bar
	Fresh      bool
}

// Last returns the most recent bar and false when the series is empty.
func (h History) Last() (Bar, bool) {
	if len(h.Bars) == 0 {
		return Bar{}, false
	}
	return h.Bars[len(h.Bars)-1], true
}
