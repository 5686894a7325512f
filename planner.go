package mirage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// SchemaLookup resolves the learned schema for a resource, used to bias the
// planner prompt toward consistent field names. Absence is not an error.
type SchemaLookup func(resource string) (*SchemaSnapshot, bool)

// Planner turns a request context into an executable Plan by prompting the
// model provider and parsing its structured answer.
type Planner struct {
	provider Provider
	logger   *slog.Logger
	tracer   Tracer
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerLogger sets a structured logger for the planner.
func WithPlannerLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = l }
}

// WithPlannerTracer sets a tracer; each Plan call becomes one span.
func WithPlannerTracer(t Tracer) PlannerOption {
	return func(p *Planner) { p.tracer = t }
}

// NewPlanner creates a Planner over the given provider.
func NewPlanner(provider Provider, opts ...PlannerOption) *Planner {
	p := &Planner{provider: provider, logger: nopLogger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan validates the request's resource path, prompts the provider, and
// parses the returned plan. The generated program text is extracted but
// deliberately not validated here; validation belongs to the execution
// host, exactly once per run.
func (p *Planner) Plan(ctx context.Context, rc RequestContext, schemas SchemaLookup) (Plan, error) {
	if p.tracer != nil {
		var span Span
		ctx, span = p.tracer.Start(ctx, "mirage.plan",
			StringAttr("http.method", rc.Method),
			StringAttr("http.path", rc.Path))
		defer span.End()
	}

	if len(rc.Segments) == 0 || rc.Segments[0] == "" {
		return Plan{}, &ErrPlan{Reason: PlanMissingResource, Message: "request path names no resource"}
	}
	resource := rc.Segments[0]
	if !ValidResourceName(resource) {
		return Plan{}, &ErrPlan{
			Reason:  PlanInvalidResource,
			Message: fmt.Sprintf("invalid resource name %q", resource),
		}
	}

	prompt, err := p.buildPrompt(rc, resource, schemas)
	if err != nil {
		return Plan{}, &ErrPlan{Reason: PlanMalformedResponse, Message: err.Error()}
	}

	raw, err := p.provider.Complete(ctx, prompt)
	if err != nil {
		p.logger.Warn("planning: provider call failed",
			"provider", p.provider.Name(), "error", err)
		return Plan{}, &ErrPlan{Reason: PlanModelUnavailable, Message: err.Error()}
	}

	plan, err := parsePlan(raw)
	if err != nil {
		p.logger.Warn("planning: unparseable response",
			"provider", p.provider.Name(), "error", err)
		return Plan{}, err
	}

	// Path-derived defaults for fields the model omitted.
	if plan.Resource == "" {
		plan.Resource = resource
	}
	if plan.Identifier == nil && len(rc.Segments) > 1 && rc.Segments[1] != "search" {
		plan.Identifier = rc.Segments[1]
	}

	p.logger.Debug("planning: done",
		"action", plan.Action, "resource", plan.Resource, "identifier", plan.Identifier)
	return plan, nil
}

// buildPrompt writes the planning specification: the request context in
// JSON form (raw body bytes excluded by encoding), the store operation
// contract, the learned schema if any, and the required output shape.
func (p *Planner) buildPrompt(rc RequestContext, resource string, schemas SchemaLookup) (string, error) {
	ctxJSON, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode request context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(plannerPreamble)
	sb.WriteString("\nREQUEST CONTEXT:\n")
	sb.Write(ctxJSON)
	sb.WriteString("\n\n")
	sb.WriteString(storeAPIDoc)

	if schemas != nil {
		if snap, ok := schemas(resource); ok {
			snapJSON, err := json.MarshalIndent(snap, "", "  ")
			if err == nil {
				sb.WriteString("\nLEARNED SCHEMA for \"" + resource + "\" (keep field names and types consistent with it):\n")
				sb.Write(snapJSON)
				sb.WriteString("\n")
			}
		}
	}

	sb.WriteString(outputShapeDoc)
	return sb.String(), nil
}

const plannerPreamble = `You are the request planner of a dynamic REST service. For the HTTP
request described below, decide the intended CRUD action and write a short
Python program that services it against the resource store.

The program runs in a restricted sandbox. Available names: ctx (the request
context dict shown below), plan (your own plan dict), store (the resource
store, already scoped to the target resource), and make_response(status,
body, headers=None, is_json=True). Only basic builtins are available; no
imports, no function or class definitions, no try/except, no file or
network access. The program must assign the final response to a variable
named REPLY.
`

const storeAPIDoc = `STORE API (store is scoped to the target resource):
- store.insert(record) -> record           assigns "id" when absent; raises ValueError on duplicate id
- store.get(identifier) -> record | None
- store.delete(identifier) -> bool
- store.replace(identifier, record) -> record | None    full overwrite, id preserved
- store.update(identifier, partial) -> record | None    shallow merge, id immutable
- store.list(limit=None, offset=0, sort=None) -> (items, total)   sort "field" or "-field"
- store.search(criteria) -> [record]       keys support __contains/__icontains/__startswith/__endswith
`

const outputShapeDoc = `
**Now output a single JSON object, nothing else, with this exact shape:**
{
  "action": "create|get|list|replace|patch|delete|search",
  "resource": "<resource name>",
  "identifier": <record id from the path, or null>,
  "code": {"language": "python", "block": "` + "```python\\n<program>\\n```" + `"}
}
`

// planEnvelope is the wire shape of the model's answer. code tolerates both
// the object form and a bare string.
type planEnvelope struct {
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	Identifier any             `json:"identifier"`
	Code       json.RawMessage `json:"code"`
}

// parsePlan locates the JSON object in the model's reply (tolerating a
// surrounding code fence and prose), and extracts the program text.
func parsePlan(raw string) (Plan, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return Plan{}, &ErrPlan{Reason: PlanMalformedResponse, Message: "no JSON object in model response"}
	}

	var env planEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Plan{}, &ErrPlan{Reason: PlanMalformedResponse, Message: "malformed plan: " + err.Error()}
	}
	if strings.TrimSpace(env.Action) == "" {
		return Plan{}, &ErrPlan{Reason: PlanMissingAction, Message: "plan has no action"}
	}

	code, err := extractCode(env.Code)
	if err != nil {
		return Plan{}, &ErrPlan{Reason: PlanMalformedResponse, Message: err.Error()}
	}

	return Plan{
		Action:     Action(env.Action),
		Resource:   env.Resource,
		Identifier: normalizePlanIdentifier(env.Identifier),
		Code:       code,
	}, nil
}

// extractJSONObject returns the outermost {...} span of s, or "".
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// extractCode reads the plan's code field: either a bare string or
// {"language": ..., "block": ...}, with optional fence markers stripped.
func extractCode(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return stripFence(s), nil
	}
	var obj struct {
		Block string `json:"block"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("malformed code field")
	}
	if obj.Block != "" {
		return stripFence(obj.Block), nil
	}
	return stripFence(obj.Code), nil
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.Index(trimmed, "\n"); nl >= 0 {
		// Drop the info string ("python", "py", ...).
		first := strings.TrimSpace(trimmed[:nl])
		if first == "" || isFenceInfo(first) {
			trimmed = trimmed[nl+1:]
		}
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimRight(trimmed, "\n") + "\n"
}

func isFenceInfo(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// normalizePlanIdentifier folds JSON-decoded identifier values: integral
// floats become ints, everything else passes through. Full identifier
// normalization happens in the store.
func normalizePlanIdentifier(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}
