package claude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/llm"
	"etf-trader/internal/store"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// Completer implements interfaces.Completer using the Anthropic messages API.
type Completer struct {
	client      *resty.Client
	endpoint    string
	limiter     *rate.Limiter
	temperature float32
	maxTokens   int
}

var _ interfaces.Completer = (*Completer)(nil)

// New creates a Claude completer. ANTHROPIC_API_KEY is required; if you use a
// proxy set the endpoint via CLAUDE_API_ENDPOINT.
func New(cfg *store.Config) (*Completer, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY missing")
	}
	endpoint := defaultEndpoint
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	client := resty.New().SetHeader("x-api-key", apiKey)
	return NewWithClient(client, endpoint, cfg), nil
}

func NewWithClient(client *resty.Client, endpoint string, cfg *store.Config) *Completer {
	maxTokens := cfg.LLM.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &Completer{
		client: client.
			SetHeader("anthropic-version", anthropicVersion).
			SetHeader("Content-Type", "application/json"),
		endpoint:    endpoint,
		limiter:     llm.NewLimiter(cfg.LLM.RequestsPerMinute),
		temperature: cfg.LLM.Temperature,
		maxTokens:   maxTokens,
	}
}

type messagesRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []map[string]string `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float32             `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete returns the concatenated text blocks of the reply.
func (c *Completer) Complete(ctx context.Context, model string, p types.Prompt) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var out messagesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(messagesRequest{
			Model:       model,
			System:      p.System,
			Messages:    []map[string]string{{"role": "user", "content": p.User}},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("claude http %d: %s", resp.StatusCode(), resp.String())
	}

	var b strings.Builder
	for _, blk := range out.Content {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		// not a messages payload; let the parser try the raw body
		text = strings.TrimSpace(resp.String())
	}
	return text, nil
}
