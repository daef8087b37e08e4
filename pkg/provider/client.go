// Package provider sends chat completion requests to an OpenAI-compatible API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pario-ai/chatline/pkg/config"
	"github.com/pario-ai/chatline/pkg/models"
)

const (
	completionsPath = "/v1/chat/completions"

	// maxResponseSize caps how much of an upstream body is read.
	maxResponseSize = 1 << 20

	// maxErrorBody caps how much of a failed body is kept in a StatusError.
	maxErrorBody = 512
)

// ErrNoChoices is returned when a successful response carries no completion.
var ErrNoChoices = errors.New("completion response has no choices")

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Completion is the extracted result of one successful request.
type Completion struct {
	Text      string
	Model     string
	RequestID string
	Usage     models.Usage
}

// Client issues single-attempt completion requests.
type Client struct {
	cfg     config.ProviderConfig
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLimiter paces outbound requests. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a Client. The HTTP client timeout is cfg.Timeout, and
// cfg.RequestsPerMinute > 0 installs a limiter.
func New(cfg config.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends the system prompt and user message as one request and
// returns the first choice. The system message is sent even when empty.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	temperature := c.cfg.Temperature
	maxTokens := c.cfg.MaxTokens
	body, err := json.Marshal(models.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: userMessage},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	target, err := url.Parse(strings.TrimSuffix(c.cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String()+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	var chatResp models.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	out := &Completion{
		Text:      chatResp.Choices[0].Message.Content,
		Model:     chatResp.Model,
		RequestID: requestID,
	}
	if out.Model == "" {
		out.Model = c.cfg.Model
	}
	if chatResp.Usage != nil {
		out.Usage = *chatResp.Usage
	}
	return out, nil
}
