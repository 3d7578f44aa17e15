// Package raftai implements the RaftAI features: an OpenAI-compatible chat
// client, the pitch analyzer and the room assistant.
package raftai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptorafts/api/internal/logger"
)

// ErrNoAPIKey is returned when RaftAI is asked to call the LLM without a key.
var ErrNoAPIKey = errors.New("raftai: missing OPENAI_API_KEY")

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// InitialBackoff defaults to one second.
	InitialBackoff time.Duration
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	Temperature float64
	JSON        bool
	MaxTokens   int
}

// Completer is the slice of the chat API RaftAI needs.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
}

// HTTPError is a non-2xx response from the LLM endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	log            *logger.Logger
	baseURL        string
	apiKey         string
	model          string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if log == nil {
		log = logger.Nop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		log:            log,
		baseURL:        baseURL,
		apiKey:         apiKey,
		model:          model,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		initialBackoff: backoff,
		sleep:          sleepContext,
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// Complete calls /v1/chat/completions and returns the first choice's content.
// Rate limits, server errors and transport failures are retried with
// exponential backoff.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	backoff := c.initialBackoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := c.doOnce(ctx, req)
		if err == nil {
			var resp chatResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return "", fmt.Errorf("openai decode: %w", err)
			}
			if len(resp.Choices) == 0 {
				return "", errors.New("openai: empty choices")
			}
			return resp.Choices[0].Message.Content, nil
		}
		if !isRetryable(ctx, err) || attempt >= c.maxRetries {
			return "", err
		}

		wait := backoff
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			wait = min(httpErr.RetryAfter, 10*time.Second)
		}
		c.log.Warn("openai request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", wait.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
		backoff *= 2
	}
}

func (c *Client) doOnce(ctx context.Context, body chatRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			httpErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		return nil, httpErr
	}
	return raw, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
