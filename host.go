package mirage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mirageapi/mirage/script"
)

// Default execution bounds. Both are per-request and configurable.
const (
	DefaultExecTimeout    = 8 * time.Second
	DefaultMaxResultBytes = 32 * 1024
)

// Host validates and executes one generated program against a
// resource-scoped store, and coerces its REPLY binding into a Reply.
type Host struct {
	timeout        time.Duration
	maxResultBytes int
	logger         *slog.Logger
	tracer         Tracer
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithExecTimeout sets the wall-clock budget for one program run.
func WithExecTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.timeout = d }
}

// WithMaxResultBytes sets the serialized reply-body ceiling.
func WithMaxResultBytes(n int) HostOption {
	return func(h *Host) { h.maxResultBytes = n }
}

// WithHostLogger sets a structured logger for the host.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// WithHostTracer sets a tracer; each Execute call becomes one span.
func WithHostTracer(t Tracer) HostOption {
	return func(h *Host) { h.tracer = t }
}

// NewHost creates an execution host with default bounds.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		timeout:        DefaultExecTimeout,
		maxResultBytes: DefaultMaxResultBytes,
		logger:         nopLogger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Execute runs the plan's program. The program sees four names: ctx (the
// request context), plan (the structured plan), store (scoped to the
// plan's resource), and make_response. Validation happens here, exactly
// once, immediately before execution.
//
// Store writes take effect as the program performs them; a later failure
// does not roll them back.
func (h *Host) Execute(ctx context.Context, plan Plan, rc RequestContext, res ResourceStore) (Reply, error) {
	if h.tracer != nil {
		var span Span
		ctx, span = h.tracer.Start(ctx, "mirage.execute",
			StringAttr("plan.action", string(plan.Action)),
			StringAttr("plan.resource", plan.Resource))
		defer span.End()
	}

	prog, err := script.Parse(plan.Code)
	if err != nil {
		h.logger.Warn("execute: program rejected", "error", err)
		return Reply{}, &ErrExec{Kind: ExecRejected, Message: err.Error()}
	}
	if err := script.Check(prog); err != nil {
		h.logger.Warn("execute: program rejected", "error", err)
		return Reply{}, &ErrExec{Kind: ExecRejected, Message: err.Error()}
	}

	bindings, err := h.bindings(plan, rc, res)
	if err != nil {
		return Reply{}, &ErrExec{Kind: ExecInternal, Message: err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	in := script.New(runCtx, bindings)
	start := time.Now()
	runErr := in.Run(prog)
	elapsed := time.Since(start)

	if runErr != nil {
		var pe *script.Error
		switch {
		case errors.As(runErr, &pe):
			h.logger.Debug("execute: program raised",
				"kind", pe.Kind, "message", pe.Message, "elapsed", elapsed)
			return Reply{}, &ErrExec{Kind: ExecProgramRaised, Raised: pe.Kind, Message: pe.Message}
		case errors.Is(runErr, context.DeadlineExceeded):
			h.logger.Warn("execute: budget expired", "budget", h.timeout)
			return Reply{}, &ErrExec{Kind: ExecTimeout,
				Message: fmt.Sprintf("program exceeded %s budget", h.timeout)}
		case errors.Is(runErr, context.Canceled):
			return Reply{}, runErr
		default:
			return Reply{}, &ErrExec{Kind: ExecInternal, Message: runErr.Error()}
		}
	}

	reply, err := h.coerceReply(in)
	if err != nil {
		return Reply{}, err
	}
	h.logger.Debug("execute: done",
		"status", reply.Status, "elapsed", elapsed)
	return reply, nil
}

// bindings builds the program's global environment.
func (h *Host) bindings(plan Plan, rc RequestContext, res ResourceStore) (map[string]any, error) {
	ctxVal, err := toSandboxJSON(rc)
	if err != nil {
		return nil, fmt.Errorf("encode request context: %w", err)
	}
	planVal, err := toSandboxJSON(plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return map[string]any{
		"ctx":           ctxVal,
		"plan":          planVal,
		"store":         &storeBinding{res: res},
		"make_response": makeResponseBuiltin(),
	}, nil
}

// toSandboxJSON round-trips v through JSON so the sandbox sees exactly the
// serialisable view, with integers as ints.
func toSandboxJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return script.FromGo(decoded), nil
}

// makeResponseBuiltin returns the make_response(status, body, headers=None,
// is_json=True) constructor. Its result is an ordinary dict, so programs
// may also build the REPLY shape by hand.
func makeResponseBuiltin() *script.Builtin {
	return &script.Builtin{
		Name: "make_response",
		Fn: func(_ *script.Interp, args []any, kwargs map[string]any) (any, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, script.NewError("TypeError",
					"make_response() takes 1 or 2 positional arguments, got %d", len(args))
			}
			status, ok := args[0].(int64)
			if !ok {
				return nil, script.NewError("TypeError", "make_response() status must be an int")
			}
			resp := map[string]any{
				"status":  status,
				"body":    nil,
				"headers": map[string]any{},
				"is_json": true,
			}
			if len(args) == 2 {
				resp["body"] = args[1]
			}
			for k, v := range kwargs {
				switch k {
				case "body", "headers", "is_json", "media_type":
					resp[k] = v
				default:
					return nil, script.NewError("TypeError",
						"make_response() got an unexpected keyword argument %q", k)
				}
			}
			return resp, nil
		},
	}
}

// coerceReply reads the program's REPLY binding and shapes it into a Reply,
// applying the content-type conventions and the size ceiling.
func (h *Host) coerceReply(in *script.Interp) (Reply, error) {
	raw, ok := in.Global("REPLY")
	if !ok {
		return Reply{}, &ErrExec{Kind: ExecNoReply, Message: "program did not produce a REPLY"}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Reply{}, &ErrExec{Kind: ExecNoReply,
			Message: fmt.Sprintf("REPLY must be a response dict, got %s", script.TypeName(raw))}
	}

	status, ok := m["status"].(int64)
	if !ok || status < 100 || status > 599 {
		return Reply{}, &ErrExec{Kind: ExecNoReply, Message: "REPLY has no valid status"}
	}

	reply := Reply{
		Status:  int(status),
		Headers: map[string]string{},
		IsJSON:  true,
	}
	if v, present := m["is_json"]; present {
		reply.IsJSON = script.Truth(v)
	}
	if hs, present := m["headers"]; present && hs != nil {
		hm, ok := hs.(map[string]any)
		if !ok {
			return Reply{}, &ErrExec{Kind: ExecNoReply, Message: "REPLY headers must be a dict"}
		}
		for k, v := range hm {
			reply.Headers[k] = script.Str(v)
		}
	}
	if mt, present := m["media_type"]; present {
		if s, ok := mt.(string); ok {
			reply.MediaType = s
		}
	}

	if b, present := m["body"]; present && b != nil {
		body, err := script.ToGo(b)
		if err != nil {
			return Reply{}, &ErrExec{Kind: ExecNoReply,
				Message: "REPLY body is not serialisable: " + err.Error()}
		}
		reply.Body = body
	}

	applyContentType(&reply)

	if err := h.checkSize(&reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// applyContentType applies the reply media conventions: JSON replies with a
// body get an application/json content type unless one was set explicitly;
// non-JSON replies default to a generic binary type; bodyless non-JSON
// replies must not claim to be JSON.
func applyContentType(r *Reply) {
	ctKey := headerKey(r.Headers, "Content-Type")
	switch {
	case r.IsJSON && r.Body != nil:
		if ctKey == "" && r.MediaType == "" {
			r.Headers["Content-Type"] = "application/json"
		}
	case !r.IsJSON && r.MediaType == "" && ctKey == "":
		if r.Body != nil {
			r.MediaType = "application/octet-stream"
		}
	case !r.IsJSON && r.Body == nil:
		if ctKey != "" && isJSONContentType(r.Headers[ctKey]) {
			delete(r.Headers, ctKey)
		}
	}
}

func headerKey(headers map[string]string, name string) string {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return ""
}

func isJSONContentType(ct string) bool {
	return strings.HasPrefix(ct, "application/json")
}

// checkSize enforces the serialized-body ceiling. Measured on the JSON
// encoding for JSON replies and on the raw string/byte length otherwise.
func (h *Host) checkSize(r *Reply) error {
	if r.Body == nil || h.maxResultBytes <= 0 {
		return nil
	}
	var size int
	if r.IsJSON {
		raw, err := json.Marshal(r.Body)
		if err != nil {
			return &ErrExec{Kind: ExecNoReply,
				Message: "REPLY body is not serialisable: " + err.Error()}
		}
		size = len(raw)
	} else {
		switch b := r.Body.(type) {
		case string:
			size = len(b)
		case []byte:
			size = len(b)
		default:
			raw, err := json.Marshal(r.Body)
			if err != nil {
				return &ErrExec{Kind: ExecNoReply,
					Message: "REPLY body is not serialisable: " + err.Error()}
			}
			size = len(raw)
		}
	}
	if size > h.maxResultBytes {
		return &ErrExec{Kind: ExecTooLarge,
			Message: fmt.Sprintf("reply body is %d bytes, limit %d", size, h.maxResultBytes)}
	}
	return nil
}
