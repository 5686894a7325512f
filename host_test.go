package mirage_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/memory"
)

func testResource(t *testing.T) mirage.ResourceStore {
	t.Helper()
	sess, err := memory.New().Session("t1")
	if err != nil {
		t.Fatal(err)
	}
	return sess.Resource("members")
}

func execPlan(t *testing.T, h *mirage.Host, res mirage.ResourceStore, code string, rc mirage.RequestContext) (mirage.Reply, error) {
	t.Helper()
	plan := mirage.Plan{Action: mirage.ActionCreate, Resource: "members", Code: code}
	return h.Execute(context.Background(), plan, rc, res)
}

func TestExecuteCreateFlow(t *testing.T) {
	res := testResource(t)
	h := mirage.NewHost()
	rc := mirage.RequestContext{
		Method:   "POST",
		Path:     "/members",
		Segments: []string{"members"},
		BodyJSON: map[string]any{"name": "Alice"},
		Session:  mirage.SessionInfo{ID: "t1"},
	}
	code := strings.Join([]string{
		`rec = store.insert(ctx["body_json"])`,
		`REPLY = make_response(201, rec, headers={"Location": "/members/" + str(rec["id"])})`,
	}, "\n")

	reply, err := execPlan(t, h, res, code, rc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if reply.Status != 201 {
		t.Fatalf("status = %d", reply.Status)
	}
	if reply.Headers["Location"] != "/members/1" {
		t.Fatalf("location = %q", reply.Headers["Location"])
	}
	if reply.Headers["Content-Type"] != "application/json" {
		t.Fatalf("content type = %q", reply.Headers["Content-Type"])
	}
	body, ok := reply.Body.(map[string]any)
	if !ok || body["id"] != int64(1) || body["name"] != "Alice" {
		t.Fatalf("body = %#v", reply.Body)
	}

	// The insert is visible through the store afterwards.
	if _, ok, _ := res.Get(1); !ok {
		t.Fatal("record not persisted")
	}
}

func TestExecuteRejectsForbiddenCode(t *testing.T) {
	for _, code := range []string{
		"import os\nREPLY = 1",
		"def f():\n    pass\nREPLY = 1",
		"x = open('/etc/passwd')",
		"REPLY = (1).__class__",
	} {
		_, err := execPlan(t, mirage.NewHost(), testResource(t), code, mirage.RequestContext{})
		var ee *mirage.ErrExec
		if !errors.As(err, &ee) || ee.Kind != mirage.ExecRejected {
			t.Errorf("code %q: err = %v, want rejected", code, err)
		}
	}
}

func TestExecuteProgramRaised(t *testing.T) {
	_, err := execPlan(t, mirage.NewHost(), testResource(t),
		`raise ValueError("bad input")`, mirage.RequestContext{})
	var ee *mirage.ErrExec
	if !errors.As(err, &ee) || ee.Kind != mirage.ExecProgramRaised {
		t.Fatalf("err = %v", err)
	}
	if ee.Raised != "ValueError" || ee.Message != "bad input" {
		t.Fatalf("raised = %q message = %q", ee.Raised, ee.Message)
	}
}

func TestExecuteDuplicateInsertRaisesValueError(t *testing.T) {
	code := strings.Join([]string{
		`store.insert({"id": 1, "name": "a"})`,
		`store.insert({"id": 1, "name": "b"})`,
		`REPLY = make_response(201, {})`,
	}, "\n")
	res := testResource(t)
	_, err := execPlan(t, mirage.NewHost(), res, code, mirage.RequestContext{})
	var ee *mirage.ErrExec
	if !errors.As(err, &ee) || ee.Kind != mirage.ExecProgramRaised || ee.Raised != "ValueError" {
		t.Fatalf("err = %v", err)
	}
	// The first insert survives the failure.
	if _, ok, _ := res.Get(1); !ok {
		t.Fatal("first insert rolled back")
	}
}

func TestExecuteNoReply(t *testing.T) {
	for _, code := range []string{
		"x = 1",
		"REPLY = 42",
		`REPLY = {"body": "no status"}`,
	} {
		_, err := execPlan(t, mirage.NewHost(), testResource(t), code, mirage.RequestContext{})
		var ee *mirage.ErrExec
		if !errors.As(err, &ee) || ee.Kind != mirage.ExecNoReply {
			t.Errorf("code %q: err = %v, want no_reply", code, err)
		}
	}
}

func TestExecuteTimeout(t *testing.T) {
	h := mirage.NewHost(mirage.WithExecTimeout(50 * time.Millisecond))
	start := time.Now()
	_, err := execPlan(t, h, testResource(t), "while True:\n    pass", mirage.RequestContext{})
	var ee *mirage.ErrExec
	if !errors.As(err, &ee) || ee.Kind != mirage.ExecTimeout {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout fired too late")
	}
}

func TestExecuteResultSizeCeiling(t *testing.T) {
	h := mirage.NewHost(mirage.WithMaxResultBytes(64))
	_, err := execPlan(t, h, testResource(t),
		`REPLY = make_response(200, "x" * 1000, is_json=False)`, mirage.RequestContext{})
	var ee *mirage.ErrExec
	if !errors.As(err, &ee) || ee.Kind != mirage.ExecTooLarge {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteContentTypeRules(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantCT    string
		wantMedia string
	}{
		{
			name:   "json body gets json content type",
			code:   `REPLY = make_response(200, {"a": 1})`,
			wantCT: "application/json",
		},
		{
			name:   "explicit content type wins",
			code:   `REPLY = make_response(200, {"a": 1}, headers={"Content-Type": "application/problem+json"})`,
			wantCT: "application/problem+json",
		},
		{
			name:      "non-json body defaults to binary",
			code:      `REPLY = make_response(200, "raw", is_json=False)`,
			wantMedia: "application/octet-stream",
		},
		{
			name: "bodyless non-json reply drops json content type",
			code: `REPLY = make_response(204, headers={"Content-Type": "application/json"}, is_json=False)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := execPlan(t, mirage.NewHost(), testResource(t), tt.code, mirage.RequestContext{})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got := reply.Headers["Content-Type"]; got != tt.wantCT {
				t.Errorf("content type = %q, want %q", got, tt.wantCT)
			}
			if reply.MediaType != tt.wantMedia {
				t.Errorf("media type = %q, want %q", reply.MediaType, tt.wantMedia)
			}
		})
	}
}

func TestExecuteListPairBinding(t *testing.T) {
	res := testResource(t)
	for _, name := range []string{"E", "C", "A", "D", "B"} {
		if _, err := res.Insert(mirage.Record{"name": name}); err != nil {
			t.Fatal(err)
		}
	}
	code := strings.Join([]string{
		`items, total = store.list(limit=2, offset=2, sort="name")`,
		`REPLY = make_response(200, {"items": items, "total": total})`,
	}, "\n")
	reply, err := execPlan(t, mirage.NewHost(), res, code, mirage.RequestContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	body := reply.Body.(map[string]any)
	if body["total"] != int64(5) {
		t.Fatalf("total = %v", body["total"])
	}
	items := body["items"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["name"] != "C" {
		t.Fatalf("items = %#v", items)
	}
}
