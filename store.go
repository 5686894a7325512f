package mirage

// Store is a factory of per-tenant session namespaces. Two tenants never
// observe each other's collections through any store operation.
type Store interface {
	// Session returns the tenant's namespace, creating it lazily.
	// Implementations reject tenant IDs that sanitize to something other
	// than themselves (alphanumeric plus '-' and '_').
	Session(tenantID string) (SessionStore, error)
}

// SessionStore is one tenant's namespace of resource collections.
type SessionStore interface {
	// Resource returns the collection view for name, creating it lazily.
	Resource(name string) ResourceStore
}

// ListOptions controls pagination and ordering of List. A nil Limit means
// unlimited. Sort is a field name, optionally prefixed with "-" for
// descending order; missing fields sort as the type minimum.
type ListOptions struct {
	Limit  *int
	Offset int
	Sort   string
}

// ResourceStore is one (tenant, resource) collection. All mutating
// operations are read-your-write consistent for the tenant and return deep
// copies, so callers can never mutate store internals through an alias.
type ResourceStore interface {
	// Insert stores a copy of rec. A missing id is auto-assigned from the
	// collection counter; a caller-supplied id is normalized and must not
	// collide (*ErrDuplicateID otherwise). Refreshes the schema snapshot.
	Insert(rec Record) (Record, error)

	// Get returns the record with the normalized id, or ok=false.
	Get(id any) (Record, bool, error)

	// Delete removes the record; reports whether one was removed.
	Delete(id any) (bool, error)

	// Replace overwrites the record wholesale, forcing the stored id.
	// ok=false when absent. Refreshes the schema snapshot.
	Replace(id any, rec Record) (Record, bool, error)

	// Update shallow-merges changes into the record, silently ignoring any
	// attempt to change id. ok=false when absent. Refreshes the schema.
	Update(id any, changes Record) (Record, bool, error)

	// List returns a page of records plus the unfiltered collection size.
	List(opts ListOptions) ([]Record, int, error)

	// Search applies the conjunctive criteria chain. Bare keys match
	// exactly; __contains/__icontains/__startswith/__endswith compare the
	// stringified field value. limit/offset/sort keys are skipped.
	Search(criteria map[string]any) ([]Record, error)

	// Schema returns the learned schema snapshot, if any write happened.
	Schema() (*SchemaSnapshot, bool, error)
}
