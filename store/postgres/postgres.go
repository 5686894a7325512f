// Package postgres implements mirage.Store using PostgreSQL with jsonb
// document rows, one per (session, resource) collection. Collections are
// read and written whole under an advisory row lock, which keeps the
// counter and duplicate checks correct across replicas of the service.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirageapi/mirage"
	"github.com/mirageapi/mirage/store/collection"
)

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements mirage.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ mirage.Store = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the collections table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS collections (
		session TEXT NOT NULL,
		resource TEXT NOT NULL,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session, resource)
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

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

func (r *resource) loadTx(ctx context.Context, tx pgx.Tx, forUpdate bool) (*collection.State, error) {
	q := `SELECT state FROM collections WHERE session = $1 AND resource = $2`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var raw []byte
	err := tx.QueryRow(ctx, q, r.tenant, r.name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

// mutate runs fn on the collection inside a transaction holding the row
// lock, so concurrent writers to the same collection serialize.
func (r *resource) mutate(fn func(*collection.State) error) error {
	ctx := context.Background()
	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	st, err := r.loadTx(ctx, tx, true)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	raw, err := collection.EncodeState(st)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO collections (session, resource, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session, resource) DO UPDATE SET
		state = excluded.state, updated_at = excluded.updated_at`,
		r.tenant, r.name, raw)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.store.logger.Debug("postgres: saved",
		"session", r.tenant, "resource", r.name, "records", len(st.Items))
	return nil
}

func (r *resource) view(fn func(*collection.State)) error {
	ctx := context.Background()
	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	st, err := r.loadTx(ctx, tx, false)
	if err != nil {
		return err
	}
	fn(st)
	return tx.Commit(ctx)
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
