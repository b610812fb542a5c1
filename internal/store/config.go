package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"etf-trader/internal/types"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode           string  `yaml:"mode"`
	InitialCapital float64 `yaml:"initial_capital"`
	Universe       struct {
		Core           []string `yaml:"core"`
		Observe        []string `yaml:"observe"`
		MinAvgTurnover float64  `yaml:"min_avg_turnover"`
		TurnoverWindow int      `yaml:"turnover_window"`
	} `yaml:"universe"`
	Data struct {
		Source      string `yaml:"source"`
		CSVDir      string `yaml:"csv_dir"`
		HistoryDays int    `yaml:"history_days"`
		MaxRetries  int    `yaml:"max_retries"`
		RetryBaseMs int    `yaml:"retry_base_ms"`
	} `yaml:"data"`
	Strategy struct {
		Mode      string  `yaml:"mode"`
		MAShort   int     `yaml:"ma_short"`
		MALong    int     `yaml:"ma_long"`
		BreakoutN int     `yaml:"breakout_n"`
		RSIN      int     `yaml:"rsi_n"`
		RSILow    float64 `yaml:"rsi_low"`
		RSIHigh   float64 `yaml:"rsi_high"`
		KDJLow    float64 `yaml:"kdj_low"`
		KDJHigh   float64 `yaml:"kdj_high"`
		ATRPeriod int     `yaml:"atr_period"`
	} `yaml:"strategy"`
	Ranking struct {
		Enabled  bool `yaml:"enabled"`
		TopK     int  `yaml:"top_k"`
		Lookback int  `yaml:"lookback"`
	} `yaml:"ranking"`
	LLM struct {
		Provider          string   `yaml:"provider"`
		Model             string   `yaml:"model"`
		FallbackModels    []string `yaml:"fallback_models"`
		BaseURL           string   `yaml:"base_url"`
		TimeoutSeconds    int      `yaml:"timeout_seconds"`
		MaxRetries        int      `yaml:"max_retries"`
		BaseDelaySeconds  float64  `yaml:"base_delay_seconds"`
		Temperature       float32  `yaml:"temperature"`
		MaxTokens         int      `yaml:"max_tokens"`
		RequestsPerMinute int      `yaml:"requests_per_minute"`
		Concurrency       int      `yaml:"concurrency"`
		DailyCap          int      `yaml:"daily_cap"`
		OnlyOnRuleSignal  bool     `yaml:"only_on_rule_signal"`
		System            string   `yaml:"system"`
	} `yaml:"llm"`
	Sizing struct {
		Dynamic bool    `yaml:"dynamic"`
		BasePct float64 `yaml:"base_pct"`
		MinPct  float64 `yaml:"min_pct"`
		MaxPct  float64 `yaml:"max_pct"`
		LotSize int64   `yaml:"lot_size"`
	} `yaml:"sizing"`
	Risk struct {
		HardStopPct            float64 `yaml:"hard_stop_pct"`
		TakeProfitTriggerPct   float64 `yaml:"take_profit_trigger_pct"`
		TakeProfitSellFraction float64 `yaml:"take_profit_sell_fraction"`
		TrailingEnabled        bool    `yaml:"trailing_enabled"`
		TrailingPct            float64 `yaml:"trailing_pct"`
		TrailingStepPct        float64 `yaml:"trailing_step_pct"`
	} `yaml:"risk"`
	Costs struct {
		SlippageBps float64 `yaml:"slippage_bps"`
		CostBps     float64 `yaml:"cost_bps"`
	} `yaml:"costs"`
	EquityGuard struct {
		MaxDailyChangePct float64 `yaml:"max_daily_change_pct"`
	} `yaml:"equity_guard"`
	Storage struct {
		DBPath           string `yaml:"db_path"`
		LogDir           string `yaml:"log_dir"`
		LogRetentionDays int    `yaml:"log_retention_days"`
		ReportDir        string `yaml:"report_dir"`
	} `yaml:"storage"`
}

// DryRun reports whether trades are simulated without touching the ledger.
func (c *Config) DryRun() bool {
	return c.Mode == "DRY_RUN"
}

// Instruments returns the core pool followed by the observe pool, without duplicates.
func (c *Config) Instruments() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(c.Universe.Core)+len(c.Universe.Observe))
	for _, s := range append(append([]string{}, c.Universe.Core...), c.Universe.Observe...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func inUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %.4f", name, v)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %.2f", c.InitialCapital)
	}
	if len(c.Universe.Core) == 0 {
		return errors.New("universe.core cannot be empty")
	}
	if c.Data.Source != "yahoo" && c.Data.Source != "csv" {
		return fmt.Errorf("invalid data.source '%s': must be 'yahoo' or 'csv'", c.Data.Source)
	}

	switch c.Strategy.Mode {
	case "MA_CROSS", "BREAKOUT", "MEAN_REVERSION", "KDJ_MACD", "AGGREGATE":
	default:
		return fmt.Errorf("invalid strategy.mode '%s'", c.Strategy.Mode)
	}
	if c.Strategy.MAShort <= 0 || c.Strategy.MAShort >= c.Strategy.MALong {
		return fmt.Errorf("strategy.ma_short must be positive and below ma_long, got %d/%d", c.Strategy.MAShort, c.Strategy.MALong)
	}
	if c.Strategy.BreakoutN <= 0 || c.Strategy.RSIN <= 0 {
		return errors.New("strategy.breakout_n and strategy.rsi_n must be positive")
	}
	if c.Strategy.RSILow < 0 || c.Strategy.RSIHigh > 100 || c.Strategy.RSILow >= c.Strategy.RSIHigh {
		return fmt.Errorf("strategy rsi bounds must satisfy 0 <= rsi_low < rsi_high <= 100, got %.1f/%.1f", c.Strategy.RSILow, c.Strategy.RSIHigh)
	}
	if c.Strategy.KDJLow >= c.Strategy.KDJHigh {
		return fmt.Errorf("strategy.kdj_low must be below kdj_high, got %.1f/%.1f", c.Strategy.KDJLow, c.Strategy.KDJHigh)
	}
	if c.Ranking.Enabled && (c.Ranking.TopK <= 0 || c.Ranking.Lookback <= 1) {
		return errors.New("ranking.top_k must be positive and ranking.lookback above 1")
	}

	switch c.LLM.Provider {
	case "openai", "claude", "noop":
	default:
		return fmt.Errorf("invalid llm.provider '%s': must be 'openai', 'claude' or 'noop'", c.LLM.Provider)
	}
	if c.LLM.Provider != "noop" && c.LLM.Model == "" {
		return errors.New("llm.model cannot be empty")
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("llm.max_retries must be at least 1, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.TimeoutSeconds <= 0 || c.LLM.BaseDelaySeconds < 0 {
		return errors.New("llm.timeout_seconds must be positive and llm.base_delay_seconds non-negative")
	}
	if c.LLM.DailyCap < 0 {
		return fmt.Errorf("llm.daily_cap cannot be negative, got %d", c.LLM.DailyCap)
	}

	for name, v := range map[string]float64{
		"sizing.base_pct":                c.Sizing.BasePct,
		"sizing.min_pct":                 c.Sizing.MinPct,
		"sizing.max_pct":                 c.Sizing.MaxPct,
		"risk.hard_stop_pct":             c.Risk.HardStopPct,
		"risk.take_profit_trigger_pct":   c.Risk.TakeProfitTriggerPct,
		"risk.take_profit_sell_fraction": c.Risk.TakeProfitSellFraction,
		"risk.trailing_pct":              c.Risk.TrailingPct,
		"risk.trailing_step_pct":         c.Risk.TrailingStepPct,
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}
	if c.Sizing.MinPct > c.Sizing.BasePct || c.Sizing.BasePct > c.Sizing.MaxPct {
		return fmt.Errorf("sizing must satisfy min_pct <= base_pct <= max_pct, got %.3f/%.3f/%.3f", c.Sizing.MinPct, c.Sizing.BasePct, c.Sizing.MaxPct)
	}
	if c.Sizing.LotSize < 1 {
		return fmt.Errorf("sizing.lot_size must be at least 1, got %d", c.Sizing.LotSize)
	}
	if c.Costs.SlippageBps < 0 || c.Costs.CostBps < 0 {
		return errors.New("costs basis points cannot be negative")
	}
	if c.EquityGuard.MaxDailyChangePct < 0 {
		return errors.New("equity_guard.max_daily_change_pct cannot be negative")
	}
	return nil
}

// defaultConfig holds the defaults for settings where zero is a meaningful
// value. The yaml is decoded on top of it, so only absent keys keep them.
func defaultConfig() Config {
	var c Config
	c.Strategy.RSILow = 10
	c.LLM.BaseDelaySeconds = 5
	c.LLM.Temperature = 0.3
	c.Sizing.MinPct = 0.05
	c.Risk.TakeProfitSellFraction = 0.5
	c.Risk.TrailingPct = 0.05
	c.Risk.TrailingStepPct = 0.01
	c.Costs.SlippageBps = 2
	c.Costs.CostBps = 5
	c.EquityGuard.MaxDailyChangePct = 0.10
	return c
}

// applyDefaults fills settings for which zero is not a usable value, whether
// absent or given as 0. Booleans are left as given.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "LIVE"
	}
	if c.InitialCapital == 0 {
		c.InitialCapital = 100000
	}
	if c.Universe.TurnoverWindow == 0 {
		c.Universe.TurnoverWindow = 20
	}

	d := &c.Data
	if d.Source == "" {
		d.Source = "yahoo"
	}
	if d.CSVDir == "" {
		d.CSVDir = "data"
	}
	if d.HistoryDays == 0 {
		d.HistoryDays = 700
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = 3
	}
	if d.RetryBaseMs == 0 {
		d.RetryBaseMs = 500
	}

	s := &c.Strategy
	if s.Mode == "" {
		s.Mode = "AGGREGATE"
	}
	s.Mode = strings.ToUpper(s.Mode)
	if s.MAShort == 0 {
		s.MAShort = 20
	}
	if s.MALong == 0 {
		s.MALong = 60
	}
	if s.BreakoutN == 0 {
		s.BreakoutN = 20
	}
	if s.RSIN == 0 {
		s.RSIN = 2
	}
	if s.RSIHigh == 0 {
		s.RSIHigh = 95
	}
	if s.KDJLow == 0 {
		s.KDJLow = 20
	}
	if s.KDJHigh == 0 {
		s.KDJHigh = 80
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = 14
	}

	if c.Ranking.TopK == 0 {
		c.Ranking.TopK = 2
	}
	if c.Ranking.Lookback == 0 {
		c.Ranking.Lookback = 60
	}

	l := &c.LLM
	if l.Provider == "" {
		l.Provider = "noop"
	}
	l.Provider = strings.ToLower(l.Provider)
	if l.TimeoutSeconds == 0 {
		l.TimeoutSeconds = 120
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 3
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 800
	}
	if l.Concurrency == 0 {
		l.Concurrency = 2
	}
	if l.DailyCap == 0 {
		l.DailyCap = 10
	}

	z := &c.Sizing
	if z.BasePct == 0 {
		z.BasePct = 0.2
	}
	if z.MaxPct == 0 {
		z.MaxPct = 0.3
	}
	if z.LotSize == 0 {
		z.LotSize = 100
	}

	st := &c.Storage
	if st.DBPath == "" {
		st.DBPath = "etf_trader.db"
	}
	if st.LogDir == "" {
		st.LogDir = "logs"
	}
	if st.ReportDir == "" {
		st.ReportDir = "reports"
	}
}

// ParseConfig decodes yaml, applies defaults and validates. Every failure
// wraps types.ErrConfigInvalid.
func ParseConfig(b []byte) (*Config, error) {
	c := defaultConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: config validation failed: %v", types.ErrConfigInvalid, err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrConfigInvalid, path, err)
	}
	return ParseConfig(b)
}
