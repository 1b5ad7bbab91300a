package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited marks a 429 from the model service.
	ErrRateLimited = errors.New("llm service rate limited")

	// ErrTimeout marks a deadline hit while awaiting the model service.
	ErrTimeout = errors.New("llm service timeout")
)

// Invoker is the black-box model invocation the research engine consumes.
// Implementations own their transport concerns; callers see text or an error.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, params Params) (string, error)
}

// Params tunes one model invocation.
type Params struct {
	AgentID     string  `json:"agent_id,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	ModelTier   string  `json:"model_tier,omitempty"`
}

// Config for the HTTP client to the model service.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	// RatePerSec caps request rate client-side; 0 disables the limiter.
	RatePerSec float64
	Burst      int
}

// Client talks to the model service over HTTP (POST {base}/agent/query).
// 429 and timeouts are retried with backoff up to MaxAttempts; anything
// past that bubbles up classified so workers can mark the topic failed.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client with sane defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

type queryRequest struct {
	Query       string  `json:"query"`
	AgentID     string  `json:"agent_id,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	ModelTier   string  `json:"model_tier,omitempty"`
}

type queryResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
	Error      string `json:"error,omitempty"`
}

// Invoke sends the prompt and returns the model's text.
func (c *Client) Invoke(ctx context.Context, prompt string, params Params) (string, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("llm rate wait: %w", err)
			}
		}

		text, err := c.doQuery(ctx, prompt, params)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrTimeout) {
			return "", err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("llm invoke: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("llm invoke after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) doQuery(ctx context.Context, prompt string, params Params) (string, error) {
	body, err := json.Marshal(queryRequest{
		Query:       prompt,
		AgentID:     params.AgentID,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		ModelTier:   params.ModelTier,
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/agent/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if params.AgentID != "" {
		req.Header.Set("X-Agent-ID", params.AgentID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("llm query: %w", ErrTimeout)
		}
		return "", fmt.Errorf("llm query: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("llm query HTTP 429: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return "", fmt.Errorf("llm query HTTP 504: %w", ErrTimeout)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("llm query HTTP %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if !out.Success && out.Error != "" {
		return "", fmt.Errorf("llm query: %s", out.Error)
	}
	return out.Response, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
