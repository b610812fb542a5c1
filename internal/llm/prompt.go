package llm

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"

	"etf-trader/internal/ta"
	"etf-trader/internal/types"
)

// DefaultSystemPrompt asks for the single JSON object ParseJudgment reads.
const DefaultSystemPrompt = `You are a disciplined ETF portfolio advisor with long experience in trend following and mean reversion.
Principles: trend first; volume confirms breakouts; fade prices stretched far from their averages; always define risk.
Reply with ONE JSON object and nothing else:
{"decision":"buy|sell|hold","confidence":0.0-1.0,"reasoning":"short rationale","stop_loss_pct":number|null,"take_profit_pct":number|null,"position_pct":number|null}
Percentages are fractions of 1 (0.05 means 5%).`

const recentBars = 5

// BuildPrompt serializes the recent history of one instrument into a compact
// user message. Missing indicator values render as "n/a".
func BuildPrompt(req types.JudgmentRequest, system string) types.Prompt {
	if system == "" {
		system = DefaultSystemPrompt
	}
	var b strings.Builder
	rows := req.Rows
	fmt.Fprintf(&b, "## Instrument %s (as of %s)\n", req.Instrument, types.DateKey(req.Date))
	if len(rows) == 0 {
		b.WriteString("No price history available.\n")
		return types.Prompt{System: system, User: b.String()}
	}
	last := rows[len(rows)-1]
	closes := make([]float64, len(rows))
	vols := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Close
		vols[i] = r.Volume
	}

	b.WriteString("\n## Recent bars (date open high low close volume)\n")
	from := len(rows) - recentBars
	if from < 0 {
		from = 0
	}
	for _, r := range rows[from:] {
		fmt.Fprintf(&b, "%s %.4f %.4f %.4f %.4f %.0f\n", types.DateKey(r.Date), r.Open, r.High, r.Low, r.Close, r.Volume)
	}

	b.WriteString("\n## Indicators\n")
	fmt.Fprintf(&b, "- MA short %s | MA long %s | trend: %s\n", num(last.MAShort), num(last.MALong), trend(last))
	fmt.Fprintf(&b, "- RSI %s | K %s D %s J %s\n", num(last.RSI), num(last.K), num(last.D), num(last.J))
	fmt.Fprintf(&b, "- MACD DIF %s DEA %s hist %s\n", num(last.DIF), num(last.DEA), num(last.MACDHist))
	fmt.Fprintf(&b, "- Donchian resistance/support %s / %s\n", num(last.DonchianHigh), num(last.DonchianLow))
	fmt.Fprintf(&b, "- ATR(14) %s\n", num(last.ATR))

	b.WriteString("\n## Statistics\n")
	fmt.Fprintf(&b, "- volume vs 5-day average: %s\n", pct(volumeChange(vols)))
	fmt.Fprintf(&b, "- 5-day return: %s\n", pct(periodReturn(closes, recentBars)))
	fmt.Fprintf(&b, "- 20-day volatility: %s\n", pct(volatility(closes, 20)))

	b.WriteString("\n## Rule signal\n")
	fmt.Fprintf(&b, "- %s (confidence %.2f): %s\n", req.Rule.Action, req.Rule.Confidence, req.Rule.Reasoning)

	b.WriteString("\n## Position\n")
	if req.Position == nil || req.Position.Quantity == 0 {
		b.WriteString("- flat\n")
	} else {
		fmt.Fprintf(&b, "- %d shares at average cost %s\n", req.Position.Quantity, req.Position.AverageCost.StringFixed(4))
	}

	fmt.Fprintf(&b, "\nDecide buy, sell or hold for %s. Reply with the JSON object only.\n", req.Instrument)
	return types.Prompt{System: system, User: b.String()}
}

func trend(r types.IndicatorRow) string {
	switch {
	case math.IsNaN(r.MAShort) || math.IsNaN(r.MALong):
		return "unknown"
	case r.MAShort > r.MALong:
		return "up"
	case r.MAShort < r.MALong:
		return "down"
	}
	return "sideways"
}

// volumeChange compares the last volume with the average of the five bars
// before it.
func volumeChange(vols []float64) float64 {
	if len(vols) < recentBars+1 {
		return math.NaN()
	}
	avg := ta.SMA(vols[:len(vols)-1], recentBars)
	if avg == 0 || math.IsNaN(avg) {
		return math.NaN()
	}
	return vols[len(vols)-1]/avg - 1
}

func periodReturn(closes []float64, n int) float64 {
	if len(closes) < n || closes[len(closes)-n] == 0 {
		return math.NaN()
	}
	return closes[len(closes)-1]/closes[len(closes)-n] - 1
}

// volatility is the sample standard deviation of the last n daily returns.
func volatility(closes []float64, n int) float64 {
	if len(closes) < n+1 {
		return math.NaN()
	}
	rets := ta.Returns(closes[len(closes)-n-1:])
	sd, err := stats.StandardDeviationSample(rets)
	if err != nil {
		return math.NaN()
	}
	return sd
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func pct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}
