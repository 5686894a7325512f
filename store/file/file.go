// Package file implements mirage.Store on a directory tree of JSON files,
// one directory per tenant:
//
//	<root>/<tenant>/<resource>.json             records (bare array)
//	<root>/<tenant>/.schemas/<resource>.json    learned schema snapshot
//	<root>/<tenant>/.schemas/<resource>.meta.json  id counter
//
// State survives restarts and is directly inspectable with a text editor,
// which makes it the default durable backend for small deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/collection"
)

// Option configures a file Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for loads and saves. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements mirage.Store rooted at a data directory. Access to each
// tenant's files serializes through a per-tenant mutex.
type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ mirage.Store = (*Store)(nil)

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		root:   dir,
		logger: nopLogger,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Session returns the tenant's namespace. The tenant ID doubles as a
// directory name, so anything outside the safe charset is refused.
func (s *Store) Session(tenantID string) (mirage.SessionStore, error) {
	if !mirage.ValidResourceName(tenantID) {
		return nil, fmt.Errorf("invalid session %q", tenantID)
	}
	dir := filepath.Join(s.root, tenantID)
	if err := os.MkdirAll(filepath.Join(dir, ".schemas"), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &session{store: s, tenant: tenantID, dir: dir, lock: s.tenantLock(tenantID)}, nil
}

func (s *Store) tenantLock(tenant string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tenant]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenant] = l
	}
	return l
}

type session struct {
	store  *Store
	tenant string
	dir    string
	lock   *sync.Mutex
}

var _ mirage.SessionStore = (*session)(nil)

func (se *session) Resource(name string) mirage.ResourceStore {
	return &resource{sess: se, name: name}
}

type resource struct {
	sess *session
	name string
}

var _ mirage.ResourceStore = (*resource)(nil)

func (r *resource) paths() (data, schema, meta string) {
	dir := r.sess.dir
	return filepath.Join(dir, r.name+".json"),
		filepath.Join(dir, ".schemas", r.name+".json"),
		filepath.Join(dir, ".schemas", r.name+".meta.json")
}

// load reads the resource's files into a State. Missing or corrupt files
// degrade to an empty collection rather than failing the request.
func (r *resource) load() (*collection.State, error) {
	if !mirage.ValidResourceName(r.name) {
		return nil, fmt.Errorf("invalid resource %q", r.name)
	}
	dataPath, schemaPath, metaPath := r.paths()
	st := collection.NewState()

	if raw, err := os.ReadFile(dataPath); err == nil {
		if items, derr := collection.DecodeRecords(raw); derr == nil {
			st.Items = items
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", dataPath, err)
	}

	if raw, err := os.ReadFile(metaPath); err == nil {
		var meta struct {
			AutoID int64 `json:"auto_id"`
		}
		if json.Unmarshal(raw, &meta) == nil && meta.AutoID >= 1 {
			st.AutoID = meta.AutoID
		}
	}

	if raw, err := os.ReadFile(schemaPath); err == nil {
		var snap mirage.SchemaSnapshot
		if json.Unmarshal(raw, &snap) == nil {
			st.Schema = &snap
		}
	}
	return st, nil
}

func (r *resource) save(st *collection.State) error {
	dataPath, schemaPath, metaPath := r.paths()

	data, err := json.MarshalIndent(st.Items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if st.Items == nil {
		data = []byte("[]")
	}
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dataPath, err)
	}

	meta, _ := json.Marshal(map[string]int64{"auto_id": st.AutoID})
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", metaPath, err)
	}

	if st.Schema != nil {
		snap, err := json.MarshalIndent(st.Schema, "", "  ")
		if err != nil {
			return fmt.Errorf("encode schema: %w", err)
		}
		if err := os.WriteFile(schemaPath, snap, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", schemaPath, err)
		}
	}
	r.sess.store.logger.Debug("file: saved",
		"session", r.sess.tenant, "resource", r.name, "records", len(st.Items))
	return nil
}

// mutate loads, applies, and persists in one critical section.
func (r *resource) mutate(fn func(*collection.State) error) error {
	r.sess.lock.Lock()
	defer r.sess.lock.Unlock()
	st, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return r.save(st)
}

// view loads and applies read-only.
func (r *resource) view(fn func(*collection.State)) error {
	r.sess.lock.Lock()
	defer r.sess.lock.Unlock()
	st, err := r.load()
	if err != nil {
		return err
	}
	fn(st)
	return nil
}

func (r *resource) Insert(rec mirage.Record) (mirage.Record, error) {
	var out mirage.Record
	err := r.mutate(func(st *collection.State) error {
		var ierr error
		out, ierr = st.Insert(rec)
		return ierr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resource) Get(id any) (mirage.Record, bool, error) {
	var rec mirage.Record
	var ok bool
	err := r.view(func(st *collection.State) { rec, ok = st.Get(id) })
	return rec, ok, err
}

func (r *resource) Delete(id any) (bool, error) {
	var ok bool
	err := r.mutate(func(st *collection.State) error {
		ok = st.Delete(id)
		return nil
	})
	return ok, err
}

func (r *resource) Replace(id any, rec mirage.Record) (mirage.Record, bool, error) {
	var out mirage.Record
	var ok bool
	err := r.mutate(func(st *collection.State) error {
		out, ok = st.Replace(id, rec)
		return nil
	})
	return out, ok, err
}

func (r *resource) Update(id any, changes mirage.Record) (mirage.Record, bool, error) {
	var out mirage.Record
	var ok bool
	err := r.mutate(func(st *collection.State) error {
		out, ok = st.Update(id, changes)
		return nil
	})
	return out, ok, err
}

func (r *resource) List(opts mirage.ListOptions) ([]mirage.Record, int, error) {
	var items []mirage.Record
	var total int
	err := r.view(func(st *collection.State) { items, total = st.List(opts) })
	return items, total, err
}

func (r *resource) Search(criteria map[string]any) ([]mirage.Record, error) {
	var items []mirage.Record
	err := r.view(func(st *collection.State) { items = st.Search(criteria) })
	return items, err
}

func (r *resource) Schema() (*mirage.SchemaSnapshot, bool, error) {
	var snap *mirage.SchemaSnapshot
	err := r.view(func(st *collection.State) {
		if st.Schema != nil {
			c := *st.Schema
			c.Example = collection.Clone(st.Schema.Example)
			snap = &c
		}
	})
	return snap, snap != nil, err
}
