package mirage

import (
	"fmt"
	"strconv"
	"time"
)

// ErrLLM reports a provider-level failure (bad response shape, transport
// error wrapped by the client, missing credentials).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-2xx response from a provider API. RetryAfter is the
// parsed Retry-After header, when the server sent one.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value (delta-seconds form).
// Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// --- Planning failures ---

// PlanReason classifies why planning failed.
type PlanReason string

const (
	PlanMissingResource   PlanReason = "missing_resource"
	PlanInvalidResource   PlanReason = "invalid_resource"
	PlanModelUnavailable  PlanReason = "model_unavailable"
	PlanMalformedResponse PlanReason = "malformed_response"
	PlanMissingAction     PlanReason = "missing_action"
)

// ErrPlan reports that no executable plan could be derived for a request.
// The driver maps every ErrPlan to a 400-class reply.
type ErrPlan struct {
	Reason  PlanReason
	Message string
}

func (e *ErrPlan) Error() string {
	return fmt.Sprintf("planning failed (%s): %s", e.Reason, e.Message)
}

// --- Execution failures ---

// ExecKind classifies execution host failures.
type ExecKind string

const (
	// ExecRejected: the safety validator refused the generated program.
	ExecRejected ExecKind = "rejected"
	// ExecProgramRaised: the program raised a permitted exception.
	ExecProgramRaised ExecKind = "program_raised"
	// ExecNoReply: the program completed without binding a valid REPLY.
	ExecNoReply ExecKind = "no_reply"
	// ExecTimeout: the wall-clock budget expired.
	ExecTimeout ExecKind = "timeout"
	// ExecTooLarge: the reply body exceeded the result-size ceiling.
	ExecTooLarge ExecKind = "too_large"
	// ExecInternal: anything the host did not anticipate.
	ExecInternal ExecKind = "internal"
)

// ErrExec reports an execution host failure. Raised is the sandbox exception
// kind ("ValueError", "TypeError", ...) when Kind is ExecProgramRaised.
type ErrExec struct {
	Kind    ExecKind
	Raised  string
	Message string
}

func (e *ErrExec) Error() string {
	if e.Raised != "" {
		return fmt.Sprintf("execution failed (%s): %s: %s", e.Kind, e.Raised, e.Message)
	}
	return fmt.Sprintf("execution failed (%s): %s", e.Kind, e.Message)
}

// --- Store failures ---

// ErrDuplicateID reports an insert with an identifier that is already
// present in the collection. Inside the sandbox it surfaces as a ValueError
// raised by store.insert.
type ErrDuplicateID struct {
	ID any
}

func (e *ErrDuplicateID) Error() string {
	return "resource with identifier already exists"
}
