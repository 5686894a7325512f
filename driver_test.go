package mirage_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/memory"
)

// scriptedProvider is a deterministic stand-in for the model: it reads the
// request context back out of the prompt and answers with a fixed program
// per route shape. It exercises the same plan envelope a real model emits.
type scriptedProvider struct {
	err error
}

func (p scriptedProvider) Name() string { return "scripted" }

func (p scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	rc, err := contextFromPrompt(prompt)
	if err != nil {
		return "", err
	}

	var action, code string
	seg := rc.Segments
	switch {
	case len(seg) == 2 && seg[1] == "search":
		action, code = "search", searchCode
	case rc.Method == "POST" && len(seg) == 1:
		action, code = "create", createCode
	case rc.Method == "GET" && len(seg) == 1:
		action, code = "list", listCode
	case rc.Method == "GET":
		action, code = "get", getCode
	case rc.Method == "PUT":
		action, code = "replace", replaceCode
	case rc.Method == "PATCH":
		action, code = "patch", patchCode
	case rc.Method == "DELETE":
		action, code = "delete", deleteCode
	default:
		return "", fmt.Errorf("no template for %s %s", rc.Method, rc.Path)
	}

	env := map[string]any{
		"action":   action,
		"resource": seg[0],
		"code": map[string]any{
			"language": "python",
			"block":    "```python\n" + code + "\n```",
		},
	}
	if len(seg) == 2 && seg[1] != "search" {
		env["identifier"] = seg[1]
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func contextFromPrompt(prompt string) (mirage.RequestContext, error) {
	var rc mirage.RequestContext
	_, rest, ok := strings.Cut(prompt, "REQUEST CONTEXT:\n")
	if !ok {
		return rc, fmt.Errorf("prompt has no request context section")
	}
	body, _, ok := strings.Cut(rest, "\n\nSTORE API")
	if !ok {
		return rc, fmt.Errorf("prompt has no store section")
	}
	if err := json.Unmarshal([]byte(body), &rc); err != nil {
		return rc, fmt.Errorf("request context: %w", err)
	}
	return rc, nil
}

const createCode = `rec = store.insert(ctx["body_json"])
REPLY = make_response(201, rec, headers={"Location": "/" + plan["resource"] + "/" + str(rec["id"])})`

const getCode = `rec = store.get(plan.get("identifier"))
if rec is None:
    REPLY = make_response(404, {"error": "not found"})
else:
    REPLY = make_response(200, rec)`

const listCode = `q = ctx["query"]
limit = None
if "limit" in q:
    limit = int(q["limit"][0])
offset = 0
if "offset" in q:
    offset = int(q["offset"][0])
sort = None
if "sort" in q:
    sort = q["sort"][0]
items, total = store.list(limit=limit, offset=offset, sort=sort)
REPLY = make_response(200, {"items": items, "total": total})`

const searchCode = `criteria = {}
for key in ctx["query"]:
    criteria[key] = ctx["query"][key][0]
hits = store.search(criteria)
REPLY = make_response(200, {"items": hits, "total": len(hits)})`

const replaceCode = `rec = store.replace(plan.get("identifier"), ctx["body_json"])
if rec is None:
    REPLY = make_response(404, {"error": "not found"})
else:
    REPLY = make_response(200, rec)`

const patchCode = `rec = store.update(plan.get("identifier"), ctx["body_json"])
if rec is None:
    REPLY = make_response(404, {"error": "not found"})
else:
    REPLY = make_response(200, rec)`

const deleteCode = `ok = store.delete(plan.get("identifier"))
if ok:
    REPLY = make_response(204)
else:
    REPLY = make_response(404, {"error": "not found"})`

func newTestDriver(provider mirage.Provider) *mirage.Driver {
	return mirage.NewDriver(
		memory.New(),
		mirage.NewPlanner(provider),
		mirage.NewHost(),
	)
}

func request(method, path, session string, body any, query map[string][]string) mirage.RequestContext {
	var segments []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if query == nil {
		query = map[string][]string{}
	}
	return mirage.RequestContext{
		Method:   method,
		Path:     path,
		Segments: segments,
		Query:    query,
		Headers:  map[string]string{},
		BodyJSON: body,
		Session:  mirage.SessionInfo{ID: session},
	}
}

func TestDriverCrudLifecycle(t *testing.T) {
	d := newTestDriver(scriptedProvider{})
	ctx := context.Background()

	reply := d.Handle(ctx, request("POST", "/members", "t1", map[string]any{"name": "Ada"}, nil))
	if reply.Status != 201 {
		t.Fatalf("create status = %d, body = %v", reply.Status, reply.Body)
	}
	if reply.Headers["Location"] != "/members/1" {
		t.Fatalf("location = %q", reply.Headers["Location"])
	}

	reply = d.Handle(ctx, request("GET", "/members/1", "t1", nil, nil))
	if reply.Status != 200 {
		t.Fatalf("get status = %d", reply.Status)
	}
	if rec := reply.Body.(map[string]any); rec["name"] != "Ada" || rec["id"] != int64(1) {
		t.Fatalf("get body = %#v", reply.Body)
	}

	reply = d.Handle(ctx, request("PATCH", "/members/1", "t1", map[string]any{"role": "admin"}, nil))
	if reply.Status != 200 {
		t.Fatalf("patch status = %d", reply.Status)
	}
	if rec := reply.Body.(map[string]any); rec["role"] != "admin" || rec["name"] != "Ada" {
		t.Fatalf("patch body = %#v", reply.Body)
	}

	reply = d.Handle(ctx, request("PUT", "/members/1", "t1", map[string]any{"name": "Grace"}, nil))
	if reply.Status != 200 {
		t.Fatalf("replace status = %d", reply.Status)
	}
	if rec := reply.Body.(map[string]any); rec["name"] != "Grace" || rec["role"] != nil {
		t.Fatalf("replace body = %#v", reply.Body)
	}

	reply = d.Handle(ctx, request("DELETE", "/members/1", "t1", nil, nil))
	if reply.Status != 204 {
		t.Fatalf("delete status = %d", reply.Status)
	}
	reply = d.Handle(ctx, request("GET", "/members/1", "t1", nil, nil))
	if reply.Status != 404 {
		t.Fatalf("get after delete status = %d", reply.Status)
	}
	reply = d.Handle(ctx, request("DELETE", "/members/1", "t1", nil, nil))
	if reply.Status != 404 {
		t.Fatalf("second delete status = %d", reply.Status)
	}
}

func TestDriverListPaging(t *testing.T) {
	d := newTestDriver(scriptedProvider{})
	ctx := context.Background()
	for _, name := range []string{"E", "C", "A", "D", "B"} {
		reply := d.Handle(ctx, request("POST", "/members", "t1", map[string]any{"name": name}, nil))
		if reply.Status != 201 {
			t.Fatalf("seed %q: %d", name, reply.Status)
		}
	}

	reply := d.Handle(ctx, request("GET", "/members", "t1", nil, map[string][]string{
		"limit": {"2"}, "offset": {"2"}, "sort": {"name"},
	}))
	if reply.Status != 200 {
		t.Fatalf("list status = %d body = %v", reply.Status, reply.Body)
	}
	body := reply.Body.(map[string]any)
	if body["total"] != int64(5) {
		t.Fatalf("total = %v", body["total"])
	}
	items := body["items"].([]any)
	if len(items) != 2 ||
		items[0].(map[string]any)["name"] != "C" ||
		items[1].(map[string]any)["name"] != "D" {
		t.Fatalf("items = %#v", items)
	}
}

func TestDriverSearch(t *testing.T) {
	d := newTestDriver(scriptedProvider{})
	ctx := context.Background()
	for _, name := range []string{"Alice", "Bob", "Carla"} {
		d.Handle(ctx, request("POST", "/members", "t1", map[string]any{"name": name}, nil))
	}
	reply := d.Handle(ctx, request("GET", "/members/search", "t1", nil, map[string][]string{
		"name__icontains": {"al"},
	}))
	if reply.Status != 200 {
		t.Fatalf("search status = %d body = %v", reply.Status, reply.Body)
	}
	body := reply.Body.(map[string]any)
	if body["total"] != int64(2) {
		t.Fatalf("total = %v items = %#v", body["total"], body["items"])
	}
}

func TestDriverTenantIsolation(t *testing.T) {
	d := newTestDriver(scriptedProvider{})
	ctx := context.Background()
	if reply := d.Handle(ctx, request("POST", "/members", "t1", map[string]any{"name": "Ada"}, nil)); reply.Status != 201 {
		t.Fatal(reply)
	}
	if reply := d.Handle(ctx, request("GET", "/members/1", "t2", nil, nil)); reply.Status != 404 {
		t.Fatalf("cross-tenant get status = %d", reply.Status)
	}
}

func TestDriverBadSession(t *testing.T) {
	d := newTestDriver(scriptedProvider{})
	reply := d.Handle(context.Background(), request("GET", "/members", "no/good", nil, nil))
	if reply.Status != 400 {
		t.Fatalf("status = %d", reply.Status)
	}
}

func TestDriverModelDown(t *testing.T) {
	d := newTestDriver(scriptedProvider{err: errors.New("boom")})
	reply := d.Handle(context.Background(), request("GET", "/members", "t1", nil, nil))
	if reply.Status != 400 {
		t.Fatalf("status = %d", reply.Status)
	}
}

type fixedProvider struct{ reply string }

func (p fixedProvider) Name() string { return "fixed" }

func (p fixedProvider) Complete(context.Context, string) (string, error) {
	return p.reply, nil
}

func TestDriverRejectsForbiddenPlanCode(t *testing.T) {
	d := newTestDriver(fixedProvider{reply: `{"action": "get", "code": "import os\nREPLY = 1"}`})
	reply := d.Handle(context.Background(), request("GET", "/members/1", "t1", nil, nil))
	if reply.Status != 400 {
		t.Fatalf("status = %d", reply.Status)
	}
	body := reply.Body.(map[string]any)
	if body["error"] != "generated code rejected" {
		t.Fatalf("body = %#v", body)
	}
}

func TestDriverProgramRaisedMapsTo400(t *testing.T) {
	d := newTestDriver(fixedProvider{reply: `{"action": "create", "code": "raise ValueError(\"duplicate member\")"}`})
	reply := d.Handle(context.Background(), request("POST", "/members", "t1", nil, nil))
	if reply.Status != 400 {
		t.Fatalf("status = %d", reply.Status)
	}
	body := reply.Body.(map[string]any)
	if body["error"] != "ValueError: duplicate member" {
		t.Fatalf("body = %#v", body)
	}
}

func TestDriverInvalidModelResource(t *testing.T) {
	d := newTestDriver(fixedProvider{reply: `{"action": "get", "resource": "../../etc", "code": "REPLY = 1"}`})
	reply := d.Handle(context.Background(), request("GET", "/members/1", "t1", nil, nil))
	if reply.Status != 400 {
		t.Fatalf("status = %d", reply.Status)
	}
}
