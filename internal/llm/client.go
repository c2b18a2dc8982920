// Package llm talks to the hosted text-generation services used for sheet
// structure analysis. Two wire dialects are supported: OpenAI-style chat
// completions (OpenAI, Moonshot, Zhipu) and Anthropic-style messages
// (Anthropic, Kimi Coding).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"dataclean/internal/config"
)

var (
	ErrNoAPIKey        = errors.New("missing api key")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrEmptyResponse   = errors.New("empty completion")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Provider completes a conversation and returns the reply text.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

type dialect int

const (
	dialectOpenAI dialect = iota
	dialectAnthropic
)

type preset struct {
	dialect dialect
	baseURL string
	path    string
	model   string
}

var presets = map[string]preset{
	"openai":      {dialect: dialectOpenAI, baseURL: "https://api.openai.com", path: "/v1/chat/completions", model: "gpt-4o-mini"},
	"kimi":        {dialect: dialectOpenAI, baseURL: "https://api.moonshot.cn", path: "/v1/chat/completions", model: "moonshot-v1-8k"},
	"zhipu":       {dialect: dialectOpenAI, baseURL: "https://open.bigmodel.cn/api/paas/v4", path: "/chat/completions", model: "glm-4-flash"},
	"anthropic":   {dialect: dialectAnthropic, baseURL: "https://api.anthropic.com", path: "/v1/messages", model: "claude-3-haiku-20240307"},
	"kimi-coding": {dialect: dialectAnthropic, baseURL: "https://api.kimi.com/coding", path: "/v1/messages", model: "Kimi code"},
}

const maxAttempts = 4

type Client struct {
	provider    string
	preset      preset
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	limiter     *RateLimiter
}

// New builds a client for cfg.AIProvider. It fails with ErrNoAPIKey when the
// provider needs a key and none is configured.
func New(cfg config.Config) (*Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.AIProvider)
	}
	if strings.TrimSpace(cfg.AIAPIKey) == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNoAPIKey)
	}
	baseURL := p.baseURL
	if cfg.AIBaseURL != "" {
		baseURL = cfg.AIBaseURL
	}
	model := p.model
	if cfg.AIModel != "" {
		model = cfg.AIModel
	}
	return &Client{
		provider:    name,
		preset:      p,
		apiKey:      cfg.AIAPIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTokens:   cfg.AIMaxTokens,
		temperature: cfg.AITemperature,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.AITimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.AIRateLimit),
	}, nil
}

func (c *Client) Name() string { return c.provider + "/" + c.model }

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}

	body, err := c.encode(req)
	if err != nil {
		return "", err
	}
	raw, err := c.post(ctx, body)
	if err != nil {
		return "", err
	}
	return c.decode(raw)
}

func (c *Client) encode(req Request) ([]byte, error) {
	switch c.preset.dialect {
	case dialectAnthropic:
		msgs := make([]Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			if m.Role != "system" {
				msgs = append(msgs, m)
			}
		}
		return json.Marshal(map[string]any{
			"model":       c.model,
			"system":      req.System,
			"messages":    msgs,
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		})
	default:
		msgs := make([]Message, 0, len(req.Messages)+1)
		if req.System != "" {
			msgs = append(msgs, Message{Role: "system", Content: req.System})
		}
		msgs = append(msgs, req.Messages...)
		return json.Marshal(map[string]any{
			"model":       c.model,
			"messages":    msgs,
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		})
	}
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) decode(raw []byte) (string, error) {
	switch c.preset.dialect {
	case dialectAnthropic:
		var resp anthropicResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("decode %s response: %w", c.provider, err)
		}
		for _, part := range resp.Content {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	default:
		var resp openAIResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("decode %s response: %w", c.provider, err)
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
			return resp.Choices[0].Message.Content, nil
		}
	}
	return "", ErrEmptyResponse
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	url := c.baseURL + c.preset.path

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.preset.dialect == dialectAnthropic {
			req.Header.Set("x-api-key", c.apiKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		} else {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%s rejected api key: status=%d", c.provider, resp.StatusCode)
		case isRetryableStatus(resp.StatusCode) && attempt < maxAttempts:
			backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
			lastErr = fmt.Errorf("%s status %d", c.provider, resp.StatusCode)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%s: %w", c.provider, ErrRateLimited)
		}
		return nil, fmt.Errorf("%s api error: status=%d body=%s", c.provider, resp.StatusCode, truncate(string(raw), 300))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s request failed", c.provider)
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
