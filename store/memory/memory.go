// Package memory implements mirage.Store entirely in process memory. It is
// the default backend for tests and for ephemeral deployments where state
// should vanish on restart.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/collection"
)

// Option configures a memory Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for writes. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store keeps every tenant's collections in a map guarded by one mutex.
// Operations are cheap enough that finer locking has not been worth it.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *slog.Logger
}

var _ mirage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		logger:   slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Session returns the tenant's namespace, creating it on first use.
func (s *Store) Session(tenantID string) (mirage.SessionStore, error) {
	if !mirage.ValidResourceName(tenantID) {
		return nil, fmt.Errorf("invalid session %q", tenantID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tenantID]
	if !ok {
		sess = &session{
			store:  s,
			tenant: tenantID,
			states: make(map[string]*collection.State),
		}
		s.sessions[tenantID] = sess
		s.logger.Debug("memory: session created", "session", tenantID)
	}
	return sess, nil
}

type session struct {
	store  *Store
	tenant string
	mu     sync.Mutex
	states map[string]*collection.State
}

var _ mirage.SessionStore = (*session)(nil)

func (se *session) Resource(name string) mirage.ResourceStore {
	return &resource{sess: se, name: name}
}

func (se *session) state(name string) *collection.State {
	st, ok := se.states[name]
	if !ok {
		st = collection.NewState()
		se.states[name] = st
	}
	return st
}

type resource struct {
	sess *session
	name string
}

var _ mirage.ResourceStore = (*resource)(nil)

func (r *resource) Insert(rec mirage.Record) (mirage.Record, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	out, err := r.sess.state(r.name).Insert(rec)
	if err != nil {
		return nil, err
	}
	r.sess.store.logger.Debug("memory: insert",
		"session", r.sess.tenant, "resource", r.name, "id", out["id"])
	return out, nil
}

func (r *resource) Get(id any) (mirage.Record, bool, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	rec, ok := r.sess.state(r.name).Get(id)
	return rec, ok, nil
}

func (r *resource) Delete(id any) (bool, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	ok := r.sess.state(r.name).Delete(id)
	if ok {
		r.sess.store.logger.Debug("memory: delete",
			"session", r.sess.tenant, "resource", r.name, "id", id)
	}
	return ok, nil
}

func (r *resource) Replace(id any, rec mirage.Record) (mirage.Record, bool, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	out, ok := r.sess.state(r.name).Replace(id, rec)
	return out, ok, nil
}

func (r *resource) Update(id any, changes mirage.Record) (mirage.Record, bool, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	out, ok := r.sess.state(r.name).Update(id, changes)
	return out, ok, nil
}

func (r *resource) List(opts mirage.ListOptions) ([]mirage.Record, int, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	items, total := r.sess.state(r.name).List(opts)
	return items, total, nil
}

func (r *resource) Search(criteria map[string]any) ([]mirage.Record, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	return r.sess.state(r.name).Search(criteria), nil
}

func (r *resource) Schema() (*mirage.SchemaSnapshot, bool, error) {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	st := r.sess.state(r.name)
	if st.Schema == nil {
		return nil, false, nil
	}
	snap := *st.Schema
	snap.Example = collection.Clone(st.Schema.Example)
	return &snap, true, nil
}
