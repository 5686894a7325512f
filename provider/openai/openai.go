// Package openai implements mirage.Provider for the OpenAI chat completions
// API and any compatible server (OpenRouter, Groq, Ollama, vLLM, ...).
package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Provider implements mirage.Provider against a chat completions endpoint.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	name      string
	client    *http.Client
}

var _ mirage.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the client at a compatible server. The
// /chat/completions path is appended automatically.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithMaxTokens overrides the completion token ceiling.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithName overrides the reported provider name, useful when the endpoint
// is a compatible server rather than OpenAI itself.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient replaces the HTTP client, e.g. to change the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates an OpenAI-compatible provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   defaultBaseURL,
		maxTokens: 2048,
		name:      "openai",
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider name (default "openai").
func (p *Provider) Name() string { return p.name }

type chatRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &mirage.ErrLLM{Provider: p.name, Message: err.Error()}
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

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &mirage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(out.Choices) == 0 {
		return "", &mirage.ErrLLM{Provider: p.name, Message: "response has no choices"}
	}
	return out.Choices[0].Message.Content, nil
}
