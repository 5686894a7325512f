// Package sqlite implements mirage.Store using pure-Go SQLite. Zero CGO
// required. Each (session, resource) collection is stored as one JSON row;
// collections are small and always read whole, so a document layout beats
// per-record rows here.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/collection"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements mirage.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex // serializes read-modify-write cycles
}

var _ mirage.Store = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the collections table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS collections (
		session TEXT NOT NULL,
		resource TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session, resource)
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Session returns the tenant's namespace.
func (s *Store) Session(tenantID string) (mirage.SessionStore, error) {
	if !mirage.ValidResourceName(tenantID) {
		return nil, fmt.Errorf("invalid session %q", tenantID)
	}
	return &session{store: s, tenant: tenantID}, nil
}

type session struct {
	store  *Store
	tenant string
}

var _ mirage.SessionStore = (*session)(nil)

func (se *session) Resource(name string) mirage.ResourceStore {
	return &resource{store: se.store, tenant: se.tenant, name: name}
}

type resource struct {
	store  *Store
	tenant string
	name   string
}

var _ mirage.ResourceStore = (*resource)(nil)

func (r *resource) load(ctx context.Context) (*collection.State, error) {
	var raw []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT state FROM collections WHERE session = ? AND resource = ?`,
		r.tenant, r.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	st, err := collection.DecodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return st, nil
}

func (r *resource) save(ctx context.Context, st *collection.State) error {
	raw, err := collection.EncodeState(st)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	_, err = r.store.db.ExecContext(ctx, `INSERT INTO collections
		(session, resource, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session, resource) DO UPDATE SET
		state = excluded.state, updated_at = excluded.updated_at`,
		r.tenant, r.name, raw, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	r.store.logger.Debug("sqlite: saved",
		"session", r.tenant, "resource", r.name, "records", len(st.Items))
	return nil
}

func (r *resource) mutate(fn func(*collection.State) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ctx := context.Background()
	st, err := r.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return r.save(ctx, st)
}

func (r *resource) view(fn func(*collection.State)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, err := r.load(context.Background())
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
