package script

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Runtime values are plain Go values:
//
//	None    -> nil
//	bool    -> bool
//	int     -> int64
//	float   -> float64
//	str     -> string
//	list    -> *List (tuples evaluate to lists as well)
//	dict    -> map[string]any (string keys only, matching JSON)
//	set     -> *Set
//	range   -> *Range
//	builtin -> *Builtin
//	host    -> Object

// List is a mutable sequence. A pointer type so in-place mutation through
// aliases behaves the way programs expect.
type List struct {
	Items []any
}

// NewList wraps items in a List.
func NewList(items ...any) *List { return &List{Items: items} }

// Set is a hashable-element set. Keys are normalized with setKey; elems
// keeps the original value for iteration and repr.
type Set struct {
	elems map[any]any
}

// NewSet creates an empty set.
func NewSet() *Set { return &Set{elems: map[any]any{}} }

// Add inserts v, returning a TypeError for unhashable values.
func (s *Set) Add(v any) error {
	k, err := setKey(v)
	if err != nil {
		return err
	}
	s.elems[k] = v
	return nil
}

// Has reports membership.
func (s *Set) Has(v any) (bool, error) {
	k, err := setKey(v)
	if err != nil {
		return false, err
	}
	_, ok := s.elems[k]
	return ok, nil
}

// Remove deletes v if present, reporting whether it was.
func (s *Set) Remove(v any) (bool, error) {
	k, err := setKey(v)
	if err != nil {
		return false, err
	}
	_, ok := s.elems[k]
	delete(s.elems, k)
	return ok, nil
}

// Len returns the element count.
func (s *Set) Len() int { return len(s.elems) }

// Values returns the elements in a deterministic (repr-sorted) order.
func (s *Set) Values() []any {
	out := make([]any, 0, len(s.elems))
	for _, v := range s.elems {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return Repr(out[i]) < Repr(out[j]) })
	return out
}

// setKey normalizes a value into a comparable map key. Integral floats fold
// into ints so 1 and 1.0 land on the same element, like Python's hashing.
func setKey(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x), nil
		}
		return x, nil
	}
	return nil, typeErrf("unhashable type: '%s'", TypeName(v))
}

// Range is the lazy integer sequence produced by range().
type Range struct {
	Start, Stop, Step int64
}

// Len returns the number of elements.
func (r *Range) Len() int64 {
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0
		}
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Stop >= r.Start {
		return 0
	}
	return (r.Start - r.Stop - r.Step - 1) / (-r.Step)
}

// Builtin is a callable implemented in Go, either a free function or a
// method bound to its receiver.
type Builtin struct {
	Name string
	Fn   func(in *Interp, args []any, kwargs map[string]any) (any, error)
}

// Object is a host-provided value exposed to programs. Attr resolves
// attribute access; methods are returned as *Builtin values.
type Object interface {
	TypeName() string
	Attr(name string) (any, bool)
}

// TypeName returns the Python-style type name of v.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case map[string]any:
		return "dict"
	case *Set:
		return "set"
	case *Range:
		return "range"
	case *Builtin:
		return "builtin_function_or_method"
	case Object:
		return x.TypeName()
	}
	return fmt.Sprintf("%T", v)
}

// Truth returns the truthiness of v.
func Truth(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case *List:
		return len(x.Items) > 0
	case map[string]any:
		return len(x) > 0
	case *Set:
		return x.Len() > 0
	case *Range:
		return x.Len() > 0
	}
	return true
}

// Equal implements == semantics: numeric types compare across int/float,
// containers compare element-wise, everything else by identity of value.
func Equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
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
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *Set:
		y, ok := b.(*Set)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, v := range x.Values() {
			has, err := y.Has(v)
			if err != nil || !has {
				return false
			}
		}
		return true
	}
	return a == b
}

// toFloat widens bools, ints, and floats to float64 for mixed arithmetic
// and comparison. Bools count as numbers, as in Python.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int64:
		return x, true
	}
	return 0, false
}

// Order compares a and b for <, returning -1, 0, or 1, or a TypeError when
// the types have no defined ordering.
func Order(a, b any) (int, error) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	if al, ok := a.(*List); ok {
		if bl, ok := b.(*List); ok {
			n := len(al.Items)
			if len(bl.Items) < n {
				n = len(bl.Items)
			}
			for i := 0; i < n; i++ {
				c, err := Order(al.Items[i], bl.Items[i])
				if err != nil {
					return 0, err
				}
				if c != 0 {
					return c, nil
				}
			}
			switch {
			case len(al.Items) < len(bl.Items):
				return -1, nil
			case len(al.Items) > len(bl.Items):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, typeErrf("'<' not supported between instances of '%s' and '%s'",
		TypeName(a), TypeName(b))
}

// Repr renders v the way Python's repr() would, with dict keys sorted for
// deterministic output.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return pyQuote(x)
	case *List:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = Repr(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = pyQuote(k) + ": " + Repr(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Set:
		if x.Len() == 0 {
			return "set()"
		}
		vals := x.Values()
		parts := make([]string, len(vals))
		for i, it := range vals {
			parts[i] = Repr(it)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Range:
		if x.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", x.Start, x.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", x.Start, x.Stop, x.Step)
	case *Builtin:
		return "<built-in function " + x.Name + ">"
	case Object:
		return "<" + x.TypeName() + ">"
	}
	return fmt.Sprintf("%v", v)
}

// Str renders v the way Python's str() would: bare strings, repr otherwise.
func Str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Repr(v)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func pyQuote(s string) string {
	q := strconv.Quote(s)
	if !strings.Contains(s, "'") {
		return "'" + q[1:len(q)-1] + "'"
	}
	return q
}

// --- Iteration ---

type iterator interface {
	next() (any, bool)
}

type sliceIter struct {
	items []any
	i     int
}

func (it *sliceIter) next() (any, bool) {
	if it.i >= len(it.items) {
		return nil, false
	}
	v := it.items[it.i]
	it.i++
	return v, true
}

type strIter struct {
	runes []rune
	i     int
}

func (it *strIter) next() (any, bool) {
	if it.i >= len(it.runes) {
		return nil, false
	}
	v := string(it.runes[it.i])
	it.i++
	return v, true
}

type rangeIter struct {
	cur, stop, step int64
}

func (it *rangeIter) next() (any, bool) {
	if (it.step > 0 && it.cur >= it.stop) || (it.step < 0 && it.cur <= it.stop) {
		return nil, false
	}
	v := it.cur
	it.cur += it.step
	return v, true
}

// iterate returns an iterator over v, or a TypeError for non-iterables.
// Dicts iterate their keys in sorted order; sets iterate in repr order.
func iterate(v any) (iterator, error) {
	switch x := v.(type) {
	case *List:
		return &sliceIter{items: x.Items}, nil
	case string:
		return &strIter{runes: []rune(x)}, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return &sliceIter{items: items}, nil
	case *Set:
		return &sliceIter{items: x.Values()}, nil
	case *Range:
		return &rangeIter{cur: x.Start, stop: x.Stop, step: x.Step}, nil
	}
	return nil, typeErrf("'%s' object is not iterable", TypeName(v))
}

// materialize drains an iterable into a slice.
func materialize(v any) ([]any, error) {
	it, err := iterate(v)
	if err != nil {
		return nil, err
	}
	var out []any
	for {
		x, ok := it.next()
		if !ok {
			return out, nil
		}
		out = append(out, x)
	}
}

// --- Host boundary conversion ---

// FromGo converts a Go value (typically decoded JSON) into a runtime value.
// json.Number becomes int64 when integral, numeric Go types widen, slices
// and maps convert recursively.
func FromGo(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, *List, *Set, *Range, *Builtin:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case []any:
		items := make([]any, len(x))
		for i, it := range x {
			items[i] = FromGo(it)
		}
		return &List{Items: items}
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return &List{Items: items}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, it := range x {
			out[k] = FromGo(it)
		}
		return out
	}
	return v
}

// ToGo converts a runtime value back into a JSON-encodable Go value. Lists
// and sets become []any, ranges expand, callables and host objects are
// rejected.
func ToGo(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x, nil
	case *List:
		out := make([]any, len(x.Items))
		for i, it := range x.Items {
			g, err := ToGo(it)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case *Set:
		return ToGo(&List{Items: x.Values()})
	case *Range:
		vals, err := materialize(x)
		if err != nil {
			return nil, err
		}
		return ToGo(&List{Items: vals})
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, it := range x {
			g, err := ToGo(it)
			if err != nil {
				return nil, err
			}
			out[k] = g
		}
		return out, nil
	}
	return nil, typeErrf("value of type '%s' is not serializable", TypeName(v))
}
