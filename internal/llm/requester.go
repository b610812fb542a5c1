package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/logger"
	"etf-trader/internal/store"
	"etf-trader/internal/tradelog"
	"etf-trader/internal/types"
)

// Config drives the retry and fallback policy of a Requester.
type Config struct {
	Model          string
	FallbackModels []string
	// MaxRetries is the number of attempts on the primary model.
	MaxRetries int
	BaseDelay  time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	System  string
}

// ConfigFrom reads the llm section of the application config.
func ConfigFrom(cfg *store.Config) Config {
	return Config{
		Model:          cfg.LLM.Model,
		FallbackModels: cfg.LLM.FallbackModels,
		MaxRetries:     cfg.LLM.MaxRetries,
		BaseDelay:      time.Duration(cfg.LLM.BaseDelaySeconds * float64(time.Second)),
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		System:         cfg.LLM.System,
	}
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type AuditFunc func(tradelog.AuditEntry) error

type Option func(*Requester)

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) Option {
	return func(r *Requester) { r.sleep = fn }
}

// WithAudit replaces the audit sink.
func WithAudit(fn AuditFunc) Option {
	return func(r *Requester) { r.audit = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Requester) { r.now = now }
}

// Requester asks a completion service for a Judgment, retrying the primary
// model with exponential backoff and then each fallback model once.
type Requester struct {
	completer interfaces.Completer
	cfg       Config
	sleep     SleepFunc
	audit     AuditFunc
	now       func() time.Time
}

var _ interfaces.Judge = (*Requester)(nil)

func NewRequester(c interfaces.Completer, cfg Config, opts ...Option) *Requester {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	r := &Requester{
		completer: c,
		cfg:       cfg,
		sleep:     sleepCtx,
		audit:     tradelog.AppendAudit,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type phase int

const (
	phaseAttempt phase = iota
	phaseBackoff
	phaseNextModel
	phaseExhausted
)

// retryState is the whole of the retry loop's memory.
type retryState struct {
	phase   phase
	model   int // index into models()
	attempt int // 1-based attempt on the current model
	total   int
	lastErr error
}

func (r *Requester) models() []string {
	out := make([]string, 0, 1+len(r.cfg.FallbackModels))
	out = append(out, r.cfg.Model)
	for _, m := range r.cfg.FallbackModels {
		if m != "" && m != r.cfg.Model {
			out = append(out, m)
		}
	}
	return out
}

// budget is the number of attempts a model gets.
func (r *Requester) budget(model int) int {
	if model == 0 {
		return r.cfg.MaxRetries
	}
	return 1
}

// Backoff is the delay after the given failed attempt on the primary model.
func (r *Requester) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return r.cfg.BaseDelay * time.Duration(1<<(attempt-1))
}

// Judge never fails: when every model is exhausted, or ctx ends, the
// neutral Judgment carrying the last error is returned.
func (r *Requester) Judge(ctx context.Context, req types.JudgmentRequest) types.Judgment {
	prompt := BuildPrompt(req, r.cfg.System)
	models := r.models()
	st := retryState{phase: phaseAttempt, attempt: 1}

	for {
		switch st.phase {
		case phaseAttempt:
			if err := ctx.Err(); err != nil {
				st.lastErr = err
				st.phase = phaseExhausted
				continue
			}
			st.total++
			j, err := r.attempt(ctx, req, prompt, models[st.model], st)
			if err == nil {
				j.Attempts = st.total
				return j
			}
			st.lastErr = err
			switch {
			case st.attempt < r.budget(st.model):
				st.phase = phaseBackoff
			case st.model+1 < len(models):
				st.phase = phaseNextModel
			default:
				st.phase = phaseExhausted
			}

		case phaseBackoff:
			if err := r.sleep(ctx, r.Backoff(st.attempt)); err != nil {
				st.lastErr = err
				st.phase = phaseExhausted
				continue
			}
			st.attempt++
			st.phase = phaseAttempt

		case phaseNextModel:
			st.model++
			st.attempt = 1
			st.phase = phaseAttempt
			logger.Info(ctx, "Falling back to next model",
				"instrument", req.Instrument,
				"model", models[st.model],
			)

		case phaseExhausted:
			logger.Warn(ctx, "Judgment degraded to neutral",
				"instrument", req.Instrument,
				"date", types.DateKey(req.Date),
				"attempts", st.total,
				"cause", fmt.Errorf("%w: %v", types.ErrJudgmentUnavailable, st.lastErr).Error(),
			)
			reason := types.ErrJudgmentUnavailable.Error()
			if st.lastErr != nil {
				reason = st.lastErr.Error()
			}
			j := types.NeutralJudgment(req.Instrument, req.Date, reason)
			j.Attempts = st.total
			return j
		}
	}
}

// attempt performs one completion call under its own deadline, parses the
// reply and audits the exchange.
func (r *Requester) attempt(ctx context.Context, req types.JudgmentRequest, prompt types.Prompt, model string, st retryState) (types.Judgment, error) {
	actx := ctx
	cancel := func() {}
	if r.cfg.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
	}
	start := r.now()
	raw, err := r.completer.Complete(actx, model, prompt)
	cancel()
	latency := r.now().Sub(start)

	var j types.Judgment
	if err == nil {
		j, err = ParseJudgment(raw)
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("model %s timed out after %s: %w", model, r.cfg.Timeout, err)
	} else if err != nil {
		err = fmt.Errorf("model %s attempt %d: %w", model, st.attempt, err)
	}

	entry := tradelog.AuditEntry{
		Instrument: req.Instrument,
		Date:       types.DateKey(req.Date),
		Model:      model,
		Attempt:    st.total,
		Request:    prompt,
		Response:   raw,
		LatencyMs:  latency.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := r.audit(entry); aerr != nil {
		logger.ErrorWithErr(ctx, "Failed to write completion audit", aerr, "instrument", req.Instrument)
	}

	if err != nil {
		logger.Warn(ctx, "Judgment attempt failed",
			"instrument", req.Instrument,
			"model", model,
			"attempt", st.attempt,
			"error", err.Error(),
		)
		return types.Judgment{}, err
	}

	j.Instrument = req.Instrument
	j.Date = req.Date
	j.Model = model
	return j, nil
}
