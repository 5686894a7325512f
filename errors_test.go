package mirage

import (
	"testing"
	"time"
)

func TestErrLLMError(t *testing.T) {
	tests := []struct {
		provider string
		message  string
		want     string
	}{
		{"anthropic", "rate limited", "anthropic: rate limited"},
		{"openai", "context length exceeded", "openai: context length exceeded"},
	}
	for _, tt := range tests {
		e := &ErrLLM{Provider: tt.provider, Message: tt.message}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrLLM{%q, %q}.Error() = %q, want %q", tt.provider, tt.message, got, tt.want)
		}
	}
}

func TestErrHTTPError(t *testing.T) {
	e := &ErrHTTP{Status: 429, Body: "slow down"}
	if got := e.Error(); got != "http 429: slow down" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"0", 0},
		{"-5", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestErrPlanError(t *testing.T) {
	e := &ErrPlan{Reason: PlanMissingAction, Message: "plan has no action"}
	if got := e.Error(); got != "planning failed (missing_action): plan has no action" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrExecError(t *testing.T) {
	e := &ErrExec{Kind: ExecProgramRaised, Raised: "KeyError", Message: "'name'"}
	if got := e.Error(); got != "execution failed (program_raised): KeyError: 'name'" {
		t.Errorf("Error() = %q", got)
	}
	e = &ErrExec{Kind: ExecTimeout, Message: "program exceeded 8s budget"}
	if got := e.Error(); got != "execution failed (timeout): program exceeded 8s budget" {
		t.Errorf("Error() = %q", got)
	}
}
