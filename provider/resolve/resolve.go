// Package resolve builds a mirage.Provider from provider-agnostic
// configuration, so the config file can name a backend without the caller
// importing every provider package.
package resolve

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/provider/anthropic"
	"github.com/mirageapi/mirage/provider/openai"
)

// Config holds provider-agnostic planner backend configuration.
type Config struct {
	Provider string // "anthropic", "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // auto-filled for known providers
	Timeout  time.Duration
}

// Provider creates a mirage.Provider from cfg.
func Provider(cfg Config) (mirage.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropicProvider(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func anthropicProvider(cfg Config) mirage.Provider {
	var opts []anthropic.Option
	if cfg.Model != "" {
		opts = append(opts, anthropic.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return anthropic.New(cfg.APIKey, opts...)
}

func openaiProvider(cfg Config) mirage.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	opts := []openai.Option{openai.WithName(cfg.Provider)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return openai.New(cfg.APIKey, opts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
