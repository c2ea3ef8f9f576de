// Package llm provides a fault-tolerant client for the platform's internal
// completion/embedding proxy. All requests route through a single proxy URL;
// the client never holds provider API keys.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// maxResponseSize limits the proxy response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultTimeout bounds a single proxy round trip.
const defaultTimeout = 30 * time.Second

// Message is a chat message sent to the proxy.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	Messages    []Message
	Model       string // empty = client default
	Temperature float64
	MaxTokens   int
}

// TokenUsage reports token consumption for billing.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative.
type Choice struct {
	Message Message `json:"message"`
}

// ModelResponse is the proxy's completion result.
type ModelResponse struct {
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   TokenUsage `json:"usage"`
}

// Client is the completion/embedding contract the rest of the platform
// depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*ModelResponse, error)
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
}

// RetryConfig controls the transient-error retry loop.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the platform retry policy: up to 3 attempts
// with exponential backoff from 1s capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// ProxyClient talks to the internal LLM proxy over HTTP.
type ProxyClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
	retry        RetryConfig
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
}

// Option customises a ProxyClient.
type Option func(*ProxyClient)

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ProxyClient) { c.httpClient = hc }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc RetryConfig) Option {
	return func(c *ProxyClient) { c.retry = rc }
}

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) Option {
	return func(c *ProxyClient) { c.defaultModel = model }
}

// NewProxyClient creates a client for the internal proxy at baseURL.
func NewProxyClient(baseURL, apiKey string, opts ...Option) *ProxyClient {
	c := &ProxyClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		defaultModel: "gpt-4o-mini",
		httpClient:   &http.Client{Timeout: defaultTimeout},
		retry:        DefaultRetryConfig(),
		logger:       slog.With("component", "llm_client"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "llm-proxy",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type completionPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Complete sends a chat completion to the proxy, retrying transient
// failures per the client retry policy. Token counts are logged for
// billing on every successful call.
func (c *ProxyClient) Complete(ctx context.Context, req CompletionRequest) (*ModelResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	payload := completionPayload{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp ModelResponse
	start := time.Now()
	if err := c.postWithRetry(ctx, "/chat/completions", payload, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("LLM completion",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return &resp, nil
}

type embeddingPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one embedding vector per input text.
func (c *ProxyClient) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}
	var resp embeddingResponse
	if err := c.postWithRetry(ctx, "/embeddings", embeddingPayload{Model: model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	out := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// postWithRetry runs one proxy POST inside the retry loop. Only transient
// categories (rate-limit, unavailable, timeout, connection) are retried;
// everything else surfaces immediately.
func (c *ProxyClient) postWithRetry(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval
	bo.MaxElapsedTime = 0 // attempts bounded below, not by wall clock

	attempt := 0
	operation := func() error {
		attempt++
		err := c.postOnce(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= c.retry.MaxAttempts {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Transient LLM error, retrying",
			"path", path, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// postOnce performs a single proxy round trip through the circuit breaker.
func (c *ProxyClient) postOnce(ctx context.Context, path string, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, classifyTransport(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, classifyHTTPStatus(resp.StatusCode, truncateForError(respBody))
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, &Error{Message: fmt.Sprintf("malformed proxy response: %v", err)}
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &UnavailableError{Message: "llm proxy circuit open"}
	}
	return err
}

func truncateForError(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// ExtractText reads choices[0].message.content from a response, returning
// the empty string if any step is missing. Never panics.
func ExtractText(resp *ModelResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
