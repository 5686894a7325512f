package mirage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Driver runs the full request pipeline: derive the tenant's store session,
// plan against the model, then execute the plan under the tenant lock.
//
// Planning happens outside the lock, so a tenant's slow model call does not
// block its other requests from being planned. Execution serializes per
// tenant, which is what makes read-modify-write programs safe.
type Driver struct {
	store   Store
	planner *Planner
	host    *Host
	logger  *slog.Logger
	tracer  Tracer

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverLogger sets a structured logger for the driver.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithDriverTracer sets a tracer; each Handle call becomes one span.
func WithDriverTracer(t Tracer) DriverOption {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver wires a store, planner, and execution host into a Driver.
func NewDriver(store Store, planner *Planner, host *Host, opts ...DriverOption) *Driver {
	d := &Driver{
		store:   store,
		planner: planner,
		host:    host,
		logger:  nopLogger,
		tenants: map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Driver) tenantLock(tenant string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.tenants[tenant]
	if !ok {
		l = &sync.Mutex{}
		d.tenants[tenant] = l
	}
	return l
}

// Handle services one request end to end and always produces a Reply; every
// failure maps to an error reply rather than an error return. Store writes
// the program performed before a failure are kept.
func (d *Driver) Handle(ctx context.Context, rc RequestContext) Reply {
	if d.tracer != nil {
		var span Span
		ctx, span = d.tracer.Start(ctx, "mirage.handle",
			StringAttr("http.method", rc.Method),
			StringAttr("http.path", rc.Path),
			StringAttr("session.id", rc.Session.ID))
		defer span.End()
	}

	sess, err := d.store.Session(rc.Session.ID)
	if err != nil {
		d.logger.Warn("handle: bad session", "session", rc.Session.ID, "error", err)
		return ErrorReply(400, "invalid session identifier")
	}

	schemas := func(resource string) (*SchemaSnapshot, bool) {
		snap, ok, err := sess.Resource(resource).Schema()
		if err != nil {
			d.logger.Warn("handle: schema lookup failed",
				"resource", resource, "error", err)
			return nil, false
		}
		return snap, ok
	}

	plan, err := d.planner.Plan(ctx, rc, schemas)
	if err != nil {
		return d.planErrorReply(err)
	}
	if !ValidResourceName(plan.Resource) {
		return ErrorReply(400, fmt.Sprintf("invalid resource name %q", plan.Resource))
	}

	lock := d.tenantLock(rc.Session.ID)
	lock.Lock()
	defer lock.Unlock()

	reply, err := d.host.Execute(ctx, plan, rc, sess.Resource(plan.Resource))
	if err != nil {
		return d.execErrorReply(err)
	}

	d.logger.Info("handle: done",
		"method", rc.Method, "path", rc.Path,
		"session", rc.Session.ID, "action", plan.Action, "status", reply.Status)
	return reply
}

// planErrorReply maps planning failures. Every planning failure is the
// request's fault or the model's; both surface as 400 so clients see a
// stable contract regardless of which model backs the service.
func (d *Driver) planErrorReply(err error) Reply {
	if pe, ok := err.(*ErrPlan); ok {
		d.logger.Warn("handle: planning failed", "reason", pe.Reason, "message", pe.Message)
		return ErrorReply(400, pe.Message)
	}
	d.logger.Error("handle: planning failed", "error", err)
	return ErrorReply(500, "internal error")
}

// execErrorReply maps execution failures. Program-raised ValueError,
// TypeError, and KeyError express request-level problems (duplicate id,
// bad payload shape) and map to 400 with the program's message; everything
// else is the service's fault and maps to 500.
func (d *Driver) execErrorReply(err error) Reply {
	ee, ok := err.(*ErrExec)
	if !ok {
		if errors.Is(err, context.Canceled) {
			return ErrorReply(499, "request cancelled")
		}
		d.logger.Error("handle: execution failed", "error", err)
		return ErrorReply(500, "internal error")
	}
	switch ee.Kind {
	case ExecRejected:
		d.logger.Warn("handle: code rejected", "message", ee.Message)
		return ErrorReply(400, "generated code rejected")
	case ExecProgramRaised:
		switch ee.Raised {
		case "ValueError", "TypeError", "KeyError":
			return ErrorReply(400, fmt.Sprintf("%s: %s", ee.Raised, ee.Message))
		default:
			d.logger.Error("handle: program raised", "kind", ee.Raised, "message", ee.Message)
			return ErrorReply(500, "internal error")
		}
	case ExecTimeout:
		d.logger.Error("handle: execution timed out", "message", ee.Message)
		return ErrorReply(500, "execution timed out")
	case ExecTooLarge:
		d.logger.Warn("handle: reply too large", "message", ee.Message)
		return ErrorReply(500, "reply exceeds size limit")
	default:
		d.logger.Error("handle: execution failed", "kind", ee.Kind, "message", ee.Message)
		return ErrorReply(500, "internal error")
	}
}
