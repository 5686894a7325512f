// Package anthropic implements mirage.Provider for the Anthropic Messages
// API. The planner sends one user message per request and reads back the
// first text block of the answer.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mirageapi/mirage"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-sonnet-20241022"
	apiVersion     = "2023-06-01"
)

// Provider implements mirage.Provider against the Anthropic Messages API.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
}

var _ mirage.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL, e.g. for a proxy.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithMaxTokens overrides the completion token ceiling.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithHTTPClient replaces the HTTP client, e.g. to change the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates an Anthropic provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   defaultBaseURL,
		maxTokens: 2048,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "anthropic".
func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends prompt as a single user message and returns the first text
// block of the model's answer.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	body := messagesRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &mirage.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: mirage.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &mirage.ErrLLM{Provider: p.Name(), Message: fmt.Sprintf("decode response: %v", err)}
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &mirage.ErrLLM{Provider: p.Name(), Message: "response has no text content"}
}
