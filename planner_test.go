package mirage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type planStubProvider struct {
	reply      string
	err        error
	lastPrompt string
	calls      int
}

func (p *planStubProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.calls++
	p.lastPrompt = prompt
	return p.reply, p.err
}

func (p *planStubProvider) Name() string { return "stub" }

func planRequest(segments ...string) RequestContext {
	return RequestContext{
		Method:   "GET",
		Path:     "/" + strings.Join(segments, "/"),
		Segments: segments,
		Session:  SessionInfo{ID: "t1"},
	}
}

const goodPlanReply = `{
  "action": "create",
  "resource": "members",
  "identifier": null,
  "code": {"language": "python", "block": "` + "```python\\nREPLY = make_response(201, {})\\n```" + `"}
}`

func TestPlanHappyPath(t *testing.T) {
	p := &planStubProvider{reply: goodPlanReply}
	plan, err := NewPlanner(p).Plan(context.Background(), planRequest("members"), nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != ActionCreate || plan.Resource != "members" {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Code != "REPLY = make_response(201, {})\n" {
		t.Fatalf("code = %q", plan.Code)
	}
}

func TestPlanPromptShape(t *testing.T) {
	p := &planStubProvider{reply: goodPlanReply}
	rc := planRequest("members")
	rc.BodyRaw = []byte(`{"secret": true}`)

	schemas := func(resource string) (*SchemaSnapshot, bool) {
		if resource != "members" {
			t.Fatalf("schema lookup for %q", resource)
		}
		return &SchemaSnapshot{Fields: []string{"id", "name"}, Example: Record{"id": 1, "name": "x"}}, true
	}
	if _, err := NewPlanner(p).Plan(context.Background(), rc, schemas); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"REQUEST CONTEXT:",
		"**Now output",
		"store.insert(record)",
		"LEARNED SCHEMA",
		`"name"`,
	} {
		if !strings.Contains(p.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Raw body bytes never reach the model.
	if strings.Contains(p.lastPrompt, "body_raw") || strings.Contains(p.lastPrompt, "secret") {
		t.Error("prompt leaks raw body")
	}
}

func TestPlanPathValidation(t *testing.T) {
	p := &planStubProvider{reply: goodPlanReply}
	planner := NewPlanner(p)

	_, err := planner.Plan(context.Background(), planRequest(), nil)
	var pe *ErrPlan
	if !errors.As(err, &pe) || pe.Reason != PlanMissingResource {
		t.Fatalf("err = %v", err)
	}

	_, err = planner.Plan(context.Background(), planRequest("bad name!"), nil)
	if !errors.As(err, &pe) || pe.Reason != PlanInvalidResource {
		t.Fatalf("err = %v", err)
	}
	if p.calls != 0 {
		t.Fatalf("provider called %d times for invalid paths", p.calls)
	}
}

func TestPlanProviderFailure(t *testing.T) {
	p := &planStubProvider{err: errors.New("connection refused")}
	_, err := NewPlanner(p).Plan(context.Background(), planRequest("members"), nil)
	var pe *ErrPlan
	if !errors.As(err, &pe) || pe.Reason != PlanModelUnavailable {
		t.Fatalf("err = %v", err)
	}
}

func TestPlanDefaultsFromPath(t *testing.T) {
	// Model omits resource and identifier; the path supplies both.
	p := &planStubProvider{reply: `{"action": "get", "code": "REPLY = 1"}`}
	plan, err := NewPlanner(p).Plan(context.Background(), planRequest("books", "42"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Resource != "books" {
		t.Fatalf("resource = %q", plan.Resource)
	}
	if plan.Identifier != "42" {
		t.Fatalf("identifier = %v", plan.Identifier)
	}
}

func TestPlanSearchPathHasNoIdentifier(t *testing.T) {
	p := &planStubProvider{reply: `{"action": "search", "code": "REPLY = 1"}`}
	plan, err := NewPlanner(p).Plan(context.Background(), planRequest("books", "search"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Identifier != nil {
		t.Fatalf("identifier = %v, want nil", plan.Identifier)
	}
}

func TestParsePlanVariants(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{
			name:     "fenced envelope",
			raw:      "Here is the plan:\n```json\n" + `{"action":"list","code":"x = 1"}` + "\n```",
			wantCode: "x = 1",
		},
		{
			name:     "bare code string",
			raw:      `{"action":"list","code":"x = 1\ny = 2"}`,
			wantCode: "x = 1\ny = 2",
		},
		{
			name:     "fenced code block",
			raw:      `{"action":"list","code":{"language":"python","block":"` + "```python\\nx = 1\\n```" + `"}}`,
			wantCode: "x = 1\n",
		},
		{
			name:     "no code",
			raw:      `{"action":"list"}`,
			wantCode: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parsePlan(tt.raw)
			if err != nil {
				t.Fatalf("parsePlan: %v", err)
			}
			if plan.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", plan.Code, tt.wantCode)
			}
		})
	}
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason PlanReason
	}{
		{"prose only", "I cannot help with that.", PlanMalformedResponse},
		{"broken json", `{"action": "get",`, PlanMalformedResponse},
		{"missing action", `{"resource": "members", "code": "x = 1"}`, PlanMissingAction},
		{"blank action", `{"action": "  ", "code": "x = 1"}`, PlanMissingAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlan(tt.raw)
			var pe *ErrPlan
			if !errors.As(err, &pe) || pe.Reason != tt.reason {
				t.Fatalf("err = %v, want reason %s", err, tt.reason)
			}
		})
	}
}

func TestParsePlanIdentifierNumber(t *testing.T) {
	plan, err := parsePlan(`{"action":"get","identifier": 7, "code": "x = 1"}`)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Identifier != int64(7) {
		t.Fatalf("identifier = %#v, want int64(7)", plan.Identifier)
	}
}
