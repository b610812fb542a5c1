package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"etf-trader/internal/engine"
	"etf-trader/internal/engine/engineobs"
	"etf-trader/internal/eod"
	"etf-trader/internal/eod/eodobs"
	"etf-trader/internal/interfaces"
	"etf-trader/internal/ledger"
	"etf-trader/internal/llm"
	"etf-trader/internal/llm/claude"
	"etf-trader/internal/llm/llmobs"
	"etf-trader/internal/llm/noop"
	"etf-trader/internal/llm/openai"
	"etf-trader/internal/logger"
	"etf-trader/internal/marketdata"
	"etf-trader/internal/marketdata/marketdataobs"
	"etf-trader/internal/store"
	"etf-trader/internal/trace"
	"etf-trader/internal/tradelog"
	"etf-trader/internal/types"
)

// exchange dates follow China Standard Time
var cst = time.FixedZone("CST", 8*60*60)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads the configuration and points the audit log at its log dir
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	tradelog.SetDir(cfg.Storage.LogDir)
	return cfg, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return types.Day(time.Now().In(cst)), nil
	}
	d, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --date %q: %w", s, err)
	}
	return d, nil
}

func openLedger(ctx context.Context, cfg *store.Config) (*ledger.SQLite, error) {
	led, err := ledger.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open ledger", err, "path", cfg.Storage.DBPath)
		return nil, err
	}
	return led, nil
}

// compressOldLogs compresses old audit files if retention is configured
func compressOldLogs(ctx context.Context, cfg *store.Config) {
	if cfg.Storage.LogRetentionDays <= 0 {
		return
	}
	n, err := tradelog.CompressOlder(cfg.Storage.LogRetentionDays)
	if err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old audit logs", "files", n)
	}
}

// initializeHistory builds the market data provider with observability and
// wraps it in the retrying, caching fetcher
func initializeHistory(ctx context.Context, cfg *store.Config, led *ledger.SQLite) interfaces.HistorySource {
	var source interfaces.MarketData
	switch cfg.Data.Source {
	case "csv":
		logger.Info(ctx, "Using CSV market data", "dir", cfg.Data.CSVDir)
		source = marketdataobs.Wrap(marketdata.NewCSV(cfg.Data.CSVDir), "csv")
	default:
		source = marketdataobs.Wrap(marketdata.NewYahoo(), "yahoo")
	}
	return marketdata.NewFetcher(source, led, cfg)
}

// initializeJudge picks the completion provider and wraps the requester with
// observability
func initializeJudge(ctx context.Context, cfg *store.Config) (interfaces.Judge, error) {
	var (
		completer interfaces.Completer
		err       error
	)

	switch cfg.LLM.Provider {
	case "openai":
		completer, err = openai.New(cfg)
	case "claude":
		completer, err = claude.New(cfg)
	default:
		completer = noop.Completer{}
		logger.Warn(ctx, "No LLM provider configured - every judgment is a zero confidence hold")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: llm provider %s: %v", types.ErrConfigInvalid, cfg.LLM.Provider, err)
	}

	return llmobs.Wrap(llm.NewRequester(completer, llm.ConfigFrom(cfg))), nil
}

// initializeRunner initializes and returns the daily runner with observability
func initializeRunner(cfg *store.Config, history interfaces.HistorySource, judge interfaces.Judge, led interfaces.Ledger) (interfaces.Runner, error) {
	r, err := engine.New(cfg, history, judge, led)
	if err != nil {
		return nil, err
	}
	if cfg.DryRun() {
		logger.Warn(context.Background(), "Running in DRY_RUN mode - nothing is written to the ledger")
	}
	return engineobs.Wrap(r), nil
}

func initializeEOD(cfg *store.Config, led *ledger.SQLite) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(led, cfg))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
