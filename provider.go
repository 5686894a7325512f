package mirage

import (
	"context"
	"log/slog"
)

// Provider abstracts the LLM backend: one text prompt in, one completion
// out. Transport failures surface as errors; the planner treats any failure
// as terminal for that request.
type Provider interface {
	// Complete sends prompt and returns the model's text completion.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name returns the provider name (e.g. "anthropic", "openai").
	Name() string
}

// nopLogger is a logger that discards all output. Used when WithLogger is
// not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
