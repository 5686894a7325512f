// Package collection implements the record semantics shared by every store
// backend: identifier normalization, the monotonic id counter, deep-copied
// reads and writes, pagination, suffix search, and schema learning. Backends
// own persistence and locking; they load a State, apply an operation, and
// save it back.
package collection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mirageapi/mirage"
)

// State is the full persistent content of one (tenant, resource) collection.
type State struct {
	Items  []mirage.Record        `json:"items"`
	AutoID int64                  `json:"auto_id"`
	Schema *mirage.SchemaSnapshot `json:"schema,omitempty"`
}

// NewState returns an empty collection with the counter at its floor.
func NewState() *State {
	return &State{AutoID: 1}
}

// NormalizeIdentifier folds identifier spellings onto a canonical value: a
// trimmed digit string with no leading zero (except "0" itself) becomes an
// int64, any other string stays a trimmed string, ints pass through.
func NormalizeIdentifier(v any) any {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		// JSON numbers decoded without json.Number arrive as floats.
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case string:
		trimmed := strings.TrimSpace(x)
		if isDigits(trimmed) && (!strings.HasPrefix(trimmed, "0") || trimmed == "0") {
			var n int64
			for _, r := range trimmed {
				n = n*10 + int64(r-'0')
			}
			return n
		}
		return trimmed
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Clone deep-copies a record. Values are assumed JSON-compatible.
func Clone(rec mirage.Record) mirage.Record {
	if rec == nil {
		return nil
	}
	out := make(mirage.Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, it := range x {
			out[k] = cloneValue(it)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = cloneValue(it)
		}
		return out
	}
	return v
}

func (st *State) findIndex(identifier any) int {
	target := NormalizeIdentifier(identifier)
	for i, rec := range st.Items {
		if equalValue(NormalizeIdentifier(rec["id"]), target) {
			return i
		}
	}
	return -1
}

// nextID advances the counter past both its saved value and the largest
// integer id present, so the counter never decreases and never collides,
// even after explicit-id inserts or deletes.
func (st *State) nextID() int64 {
	if st.AutoID < 1 {
		st.AutoID = 1
	}
	maxExisting := int64(0)
	for _, rec := range st.Items {
		if id, ok := NormalizeIdentifier(rec["id"]).(int64); ok && id > maxExisting {
			maxExisting = id
		}
	}
	next := st.AutoID
	if maxExisting+1 > next {
		next = maxExisting + 1
	}
	st.AutoID = next + 1
	return next
}

func (st *State) learnSchema(rec mirage.Record) {
	fields := make([]string, 0, len(rec))
	for k := range rec {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	st.Schema = &mirage.SchemaSnapshot{
		Fields:    fields,
		Example:   Clone(rec),
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
}

// Insert stores a copy of rec. A present non-nil id is normalized and must
// be unique; otherwise an id is assigned from the counter.
func (st *State) Insert(rec mirage.Record) (mirage.Record, error) {
	record := Clone(rec)
	if id, present := record["id"]; present && id != nil {
		normalized := NormalizeIdentifier(id)
		if st.findIndex(normalized) >= 0 {
			return nil, &mirage.ErrDuplicateID{ID: normalized}
		}
		record["id"] = normalized
	} else {
		record["id"] = st.nextID()
	}
	st.Items = append(st.Items, record)
	st.learnSchema(record)
	return Clone(record), nil
}

// Get returns a copy of the record with the given identifier.
func (st *State) Get(identifier any) (mirage.Record, bool) {
	i := st.findIndex(identifier)
	if i < 0 {
		return nil, false
	}
	return Clone(st.Items[i]), true
}

// Delete removes the record, reporting whether it was present.
func (st *State) Delete(identifier any) bool {
	i := st.findIndex(identifier)
	if i < 0 {
		return false
	}
	st.Items = append(st.Items[:i], st.Items[i+1:]...)
	return true
}

// Replace overwrites the record wholesale, preserving the stored id.
func (st *State) Replace(identifier any, rec mirage.Record) (mirage.Record, bool) {
	i := st.findIndex(identifier)
	if i < 0 {
		return nil, false
	}
	record := Clone(rec)
	record["id"] = st.Items[i]["id"]
	st.Items[i] = record
	st.learnSchema(record)
	return Clone(record), true
}

// Update shallow-merges changes into the record; the id field cannot be
// changed through it.
func (st *State) Update(identifier any, changes mirage.Record) (mirage.Record, bool) {
	i := st.findIndex(identifier)
	if i < 0 {
		return nil, false
	}
	existing := Clone(st.Items[i])
	for k, v := range changes {
		if k == "id" {
			continue
		}
		existing[k] = cloneValue(v)
	}
	st.Items[i] = existing
	st.learnSchema(existing)
	return Clone(existing), true
}

// List returns a sorted, paginated page of copies plus the unfiltered total.
func (st *State) List(opts mirage.ListOptions) ([]mirage.Record, int) {
	total := len(st.Items)
	items := make([]mirage.Record, len(st.Items))
	copy(items, st.Items)

	if opts.Sort != "" {
		SortRecords(items, opts.Sort)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			items = nil
		} else {
			items = items[opts.Offset:]
		}
	}
	if opts.Limit != nil && *opts.Limit >= 0 && *opts.Limit < len(items) {
		items = items[:*opts.Limit]
	}

	out := make([]mirage.Record, len(items))
	for i, rec := range items {
		out[i] = Clone(rec)
	}
	return out, total
}

// SortRecords sorts in place by the named field; a "-" prefix flips the
// order. Records missing the field sort first (last when descending).
func SortRecords(items []mirage.Record, sortKey string) {
	desc := strings.HasPrefix(sortKey, "-")
	field := strings.TrimPrefix(sortKey, "-")
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return lessValue(items[j][field], items[i][field])
		}
		return lessValue(items[i][field], items[j][field])
	})
}

// lessValue orders mixed-type field values: missing/nil lowest, then
// numbers, then everything else by its string form.
func lessValue(a, b any) bool {
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	case aNum && bNum:
		return an < bn
	case aNum:
		return true
	case bNum:
		return false
	}
	return stringify(a) < stringify(b)
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Search filters copies of the collection through the conjunctive criteria
// chain. Reserved pagination keys are skipped, nil criteria are ignored,
// and multi-valued criteria collapse to their last element.
func (st *State) Search(criteria map[string]any) []mirage.Record {
	results := make([]mirage.Record, len(st.Items))
	for i, rec := range st.Items {
		results[i] = Clone(rec)
	}

	for key, raw := range criteria {
		if raw == nil {
			continue
		}
		value := raw
		if vs, ok := raw.([]any); ok {
			if len(vs) == 0 || vs[len(vs)-1] == nil {
				continue
			}
			value = vs[len(vs)-1]
		}
		if ss, ok := raw.([]string); ok {
			if len(ss) == 0 {
				continue
			}
			value = ss[len(ss)-1]
		}
		if key == "limit" || key == "offset" || key == "sort" {
			continue
		}

		switch {
		case strings.HasSuffix(key, "__contains"):
			field := strings.TrimSuffix(key, "__contains")
			want := stringify(value)
			results = filter(results, func(rec mirage.Record) bool {
				return strings.Contains(fieldString(rec, field), want)
			})
		case strings.HasSuffix(key, "__icontains"):
			field := strings.TrimSuffix(key, "__icontains")
			want := strings.ToLower(stringify(value))
			results = filter(results, func(rec mirage.Record) bool {
				return strings.Contains(strings.ToLower(fieldString(rec, field)), want)
			})
		case strings.HasSuffix(key, "__startswith"):
			field := strings.TrimSuffix(key, "__startswith")
			want := stringify(value)
			results = filter(results, func(rec mirage.Record) bool {
				return strings.HasPrefix(fieldString(rec, field), want)
			})
		case strings.HasSuffix(key, "__endswith"):
			field := strings.TrimSuffix(key, "__endswith")
			want := stringify(value)
			results = filter(results, func(rec mirage.Record) bool {
				return strings.HasSuffix(fieldString(rec, field), want)
			})
		default:
			want := value
			results = filter(results, func(rec mirage.Record) bool {
				return equalValue(rec[key], want)
			})
		}
	}
	return results
}

func filter(items []mirage.Record, keep func(mirage.Record) bool) []mirage.Record {
	out := items[:0:0]
	for _, rec := range items {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func fieldString(rec mirage.Record, field string) string {
	v, ok := rec[field]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// stringify renders a value the way the search filters compare it.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return fmt.Sprintf("%d", x)
	case int:
		return fmt.Sprintf("%d", x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// equalValue compares field values for exact-match search and identifier
// lookup: numbers compare across int/float, containers compare deeply.
func equalValue(a, b any) bool {
	if an, ok := numeric(a); ok {
		bn, ok := numeric(b)
		return ok && an == bn
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValue(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equalValue(v, w) {
				return false
			}
		}
		return true
	}
	return a == b
}
