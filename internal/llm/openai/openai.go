package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"etf-trader/internal/interfaces"
	"etf-trader/internal/llm"
	"etf-trader/internal/store"
	"etf-trader/internal/trace"
	"etf-trader/internal/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Completer talks to any OpenAI-compatible chat completions endpoint.
type Completer struct {
	client      *resty.Client
	limiter     *rate.Limiter
	temperature float32
	maxTokens   int
	jsonMode    bool
}

var _ interfaces.Completer = (*Completer)(nil)

// New builds a Completer from config. The base URL comes from llm.base_url,
// then LLM_BASE_URL, then the public endpoint. The key comes from OPENAI_API_KEY.
func New(cfg *store.Config) (*Completer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	base := cfg.LLM.BaseURL
	if base == "" {
		base = os.Getenv("LLM_BASE_URL")
	}
	if base == "" {
		base = defaultBaseURL
	}
	return NewWithClient(resty.New().SetBaseURL(base).SetAuthToken(apiKey), cfg), nil
}

// NewWithClient wraps a preconfigured resty client. Tests point it at an
// httptest server.
func NewWithClient(client *resty.Client, cfg *store.Config) *Completer {
	// some compatible endpoints reject response_format
	jsonMode := !strings.Contains(strings.ToLower(client.BaseURL), "open.bigmodel.cn")
	return &Completer{
		client:      client.SetHeader("Content-Type", "application/json"),
		limiter:     llm.NewLimiter(cfg.LLM.RequestsPerMinute),
		temperature: cfg.LLM.Temperature,
		maxTokens:   cfg.LLM.MaxTokens,
		jsonMode:    jsonMode,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Completer) Complete(ctx context.Context, model string, p types.Prompt) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai.Complete")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := chatRequest{
		Model:       model,
		Messages:    []message{{Role: "system", Content: p.System}, {Role: "user", Content: p.User}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var out chatResponse
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("openai http %d after %s: %s", resp.StatusCode(), time.Since(start).Round(time.Millisecond), truncate(resp.String(), 200))
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
