package script

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
)

// Interp executes a validated program in a single global scope. The context
// passed to New is checked periodically so runaway loops are cancellable.
type Interp struct {
	ctx     context.Context
	globals map[string]any
	steps   int
	printed []string
}

// New creates an interpreter whose global scope is the builtin environment
// plus the given host bindings.
func New(ctx context.Context, bindings map[string]any) *Interp {
	globals := Builtins()
	for k, v := range bindings {
		globals[k] = v
	}
	return &Interp{ctx: ctx, globals: globals}
}

// Global returns a variable from the global scope after execution.
func (in *Interp) Global(name string) (any, bool) {
	v, ok := in.globals[name]
	return v, ok
}

// Printed returns the lines produced by print() calls, for diagnostics.
func (in *Interp) Printed() []string { return in.printed }

// Run executes the program. A top-level return stops execution cleanly.
// The error is a *Error for raised exceptions, or the context error when
// the deadline fires mid-run.
func (in *Interp) Run(prog *Program) error {
	for _, s := range prog.Body {
		if err := in.execStmt(s); err != nil {
			if _, ok := err.(returnSignal); ok {
				return nil
			}
			return err
		}
	}
	return nil
}

var (
	errBreak    = errors.New("break")
	errContinue = errors.New("continue")
)

type returnSignal struct{ value any }

func (returnSignal) Error() string { return "return" }

// tick is the cancellation check, sampled every few hundred operations so
// tight loops stay cheap but remain interruptible.
func (in *Interp) tick() error {
	in.steps++
	if in.steps&0xff == 0 {
		select {
		case <-in.ctx.Done():
			return in.ctx.Err()
		default:
		}
	}
	return nil
}

func (in *Interp) execStmt(s Stmt) error {
	if err := in.tick(); err != nil {
		return err
	}
	switch st := s.(type) {
	case *Assign:
		v, err := in.eval(st.Value)
		if err != nil {
			return err
		}
		for _, t := range st.Targets {
			if err := in.assign(t, v); err != nil {
				return err
			}
		}
		return nil
	case *AugAssign:
		cur, err := in.eval(st.Target)
		if err != nil {
			return err
		}
		rhs, err := in.eval(st.Value)
		if err != nil {
			return err
		}
		v, err := arith(st.Op, cur, rhs)
		if err != nil {
			return err
		}
		return in.assign(st.Target, v)
	case *AnnAssign:
		if st.Value == nil {
			return nil
		}
		v, err := in.eval(st.Value)
		if err != nil {
			return err
		}
		return in.assign(st.Target, v)
	case *ExprStmt:
		_, err := in.eval(st.X)
		return err
	case *If:
		cond, err := in.eval(st.Cond)
		if err != nil {
			return err
		}
		if Truth(cond) {
			return in.execBody(st.Body)
		}
		return in.execBody(st.Else)
	case *While:
		for {
			if err := in.tick(); err != nil {
				return err
			}
			cond, err := in.eval(st.Cond)
			if err != nil {
				return err
			}
			if !Truth(cond) {
				return nil
			}
			if err := in.execBody(st.Body); err != nil {
				if err == errBreak {
					return nil
				}
				if err == errContinue {
					continue
				}
				return err
			}
		}
	case *For:
		iterable, err := in.eval(st.Iter)
		if err != nil {
			return err
		}
		it, err := iterate(iterable)
		if err != nil {
			return err
		}
		for {
			if err := in.tick(); err != nil {
				return err
			}
			v, ok := it.next()
			if !ok {
				return nil
			}
			if err := in.assign(st.Target, v); err != nil {
				return err
			}
			if err := in.execBody(st.Body); err != nil {
				if err == errBreak {
					return nil
				}
				if err == errContinue {
					continue
				}
				return err
			}
		}
	case *Break:
		return errBreak
	case *Continue:
		return errContinue
	case *Pass:
		return nil
	case *Return:
		var v any
		if st.Value != nil {
			var err error
			v, err = in.eval(st.Value)
			if err != nil {
				return err
			}
		}
		return returnSignal{value: v}
	case *Raise:
		if st.Exc == nil {
			return NewError(ExcRuntime, "no active exception to re-raise")
		}
		exc, err := in.eval(st.Exc)
		if err != nil {
			return err
		}
		switch x := exc.(type) {
		case *Error:
			return x
		case string:
			return &Error{Kind: ExcException, Message: x}
		case *Builtin:
			if excKinds[x.Name] {
				return &Error{Kind: x.Name}
			}
		}
		return typeErrf("exceptions must derive from BaseException")
	}
	// Denied statements never reach execution when the validator ran first.
	return NewError(ExcRuntime, "forbidden statement executed")
}

func (in *Interp) execBody(body []Stmt) error {
	for _, s := range body {
		if err := in.execStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interp) assign(target Expr, v any) error {
	switch t := target.(type) {
	case *Name:
		in.globals[t.Ident] = v
		return nil
	case *TupleLit:
		return in.unpack(t.Elems, v)
	case *ListLit:
		return in.unpack(t.Elems, v)
	case *Index:
		obj, err := in.eval(t.X)
		if err != nil {
			return err
		}
		idx, err := in.eval(t.Idx)
		if err != nil {
			return err
		}
		return setIndex(obj, idx, v)
	case *Attr:
		return typeErrf("cannot set attribute '%s' on '%s' object", t.Name, "host")
	}
	return typeErrf("cannot assign to this expression")
}

func (in *Interp) unpack(targets []Expr, v any) error {
	vals, err := materialize(v)
	if err != nil {
		return typeErrf("cannot unpack non-iterable %s object", TypeName(v))
	}
	if len(vals) != len(targets) {
		return valueErrf("expected %d values to unpack, got %d", len(targets), len(vals))
	}
	for i, t := range targets {
		if err := in.assign(t, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func setIndex(obj, idx, v any) error {
	switch x := obj.(type) {
	case *List:
		i, ok := toInt(idx)
		if !ok {
			return typeErrf("list indices must be integers, not %s", TypeName(idx))
		}
		ri, err := resolveIndex(i, len(x.Items))
		if err != nil {
			return NewError(ExcIndexError, "list assignment index out of range")
		}
		x.Items[ri] = v
		return nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return typeErrf("dict keys must be strings, not %s", TypeName(idx))
		}
		x[k] = v
		return nil
	}
	return typeErrf("'%s' object does not support item assignment", TypeName(obj))
}

// --- Expression evaluation ---

func (in *Interp) eval(e Expr) (any, error) {
	switch ex := e.(type) {
	case *Name:
		v, ok := in.globals[ex.Ident]
		if !ok {
			return nil, NewError(ExcNameError, "name '%s' is not defined", ex.Ident)
		}
		return v, nil
	case *IntLit:
		return ex.Value, nil
	case *FloatLit:
		return ex.Value, nil
	case *StrLit:
		return ex.Value, nil
	case *BoolLit:
		return ex.Value, nil
	case *NoneLit:
		return nil, nil
	case *ListLit:
		return in.evalSeq(ex.Elems)
	case *TupleLit:
		return in.evalSeq(ex.Elems)
	case *SetLit:
		items, err := in.evalExprs(ex.Elems)
		if err != nil {
			return nil, err
		}
		s := NewSet()
		for _, it := range items {
			if err := s.Add(it); err != nil {
				return nil, err
			}
		}
		return s, nil
	case *DictLit:
		out := make(map[string]any, len(ex.Items))
		for _, item := range ex.Items {
			k, err := in.eval(item.Key)
			if err != nil {
				return nil, err
			}
			ks, ok := k.(string)
			if !ok {
				return nil, typeErrf("dict keys must be strings, not %s", TypeName(k))
			}
			v, err := in.eval(item.Value)
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil
	case *Comp:
		return in.evalComp(ex)
	case *Unary:
		x, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		return unary(ex.Op, x)
	case *Binary:
		x, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		y, err := in.eval(ex.Y)
		if err != nil {
			return nil, err
		}
		return arith(ex.Op, x, y)
	case *BoolOp:
		var last any
		for i, operand := range ex.Values {
			v, err := in.eval(operand)
			if err != nil {
				return nil, err
			}
			last = v
			if i == len(ex.Values)-1 {
				break
			}
			if ex.Op == "and" && !Truth(v) {
				return v, nil
			}
			if ex.Op == "or" && Truth(v) {
				return v, nil
			}
		}
		return last, nil
	case *Compare:
		cur, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		for i, op := range ex.Ops {
			rhs, err := in.eval(ex.Comparators[i])
			if err != nil {
				return nil, err
			}
			ok, err := compareOp(op, cur, rhs)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			cur = rhs
		}
		return true, nil
	case *Cond:
		cond, err := in.eval(ex.Cond)
		if err != nil {
			return nil, err
		}
		if Truth(cond) {
			return in.eval(ex.Then)
		}
		return in.eval(ex.Else)
	case *Call:
		fn, err := in.eval(ex.Fn)
		if err != nil {
			return nil, err
		}
		args, err := in.evalExprs(ex.Args)
		if err != nil {
			return nil, err
		}
		var kwargs map[string]any
		if len(ex.Kwargs) > 0 {
			kwargs = make(map[string]any, len(ex.Kwargs))
			for _, kw := range ex.Kwargs {
				v, err := in.eval(kw.Value)
				if err != nil {
					return nil, err
				}
				kwargs[kw.Name] = v
			}
		}
		return in.call(fn, args, kwargs)
	case *Attr:
		recv, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		return attrOf(recv, ex.Name)
	case *Index:
		obj, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(ex.Idx)
		if err != nil {
			return nil, err
		}
		return getIndex(obj, idx)
	case *Slice:
		return in.evalSlice(ex)
	case *Lambda, *Yield, *Await:
		return nil, NewError(ExcRuntime, "forbidden expression executed")
	}
	return nil, NewError(ExcRuntime, "unsupported expression")
}

func (in *Interp) evalExprs(es []Expr) ([]any, error) {
	if len(es) == 0 {
		return nil, nil
	}
	out := make([]any, len(es))
	for i, e := range es {
		v, err := in.eval(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (in *Interp) evalSeq(es []Expr) (any, error) {
	items, err := in.evalExprs(es)
	if err != nil {
		return nil, err
	}
	return &List{Items: items}, nil
}

// call invokes a callable value with positional and keyword arguments.
func (in *Interp) call(fn any, args []any, kwargs map[string]any) (any, error) {
	if err := in.tick(); err != nil {
		return nil, err
	}
	b, ok := fn.(*Builtin)
	if !ok {
		return nil, typeErrf("'%s' object is not callable", TypeName(fn))
	}
	return b.Fn(in, args, kwargs)
}

// evalComp evaluates a comprehension eagerly. Loop variables share the
// global scope.
func (in *Interp) evalComp(c *Comp) (any, error) {
	var items []any
	dict := map[string]any{}

	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(c.Clauses) {
			if c.Kind == DictComp {
				k, err := in.eval(c.Key)
				if err != nil {
					return err
				}
				ks, ok := k.(string)
				if !ok {
					return typeErrf("dict keys must be strings, not %s", TypeName(k))
				}
				v, err := in.eval(c.Value)
				if err != nil {
					return err
				}
				dict[ks] = v
				return nil
			}
			v, err := in.eval(c.Elt)
			if err != nil {
				return err
			}
			items = append(items, v)
			return nil
		}
		cl := c.Clauses[depth]
		iterable, err := in.eval(cl.Iter)
		if err != nil {
			return err
		}
		it, err := iterate(iterable)
		if err != nil {
			return err
		}
		for {
			if err := in.tick(); err != nil {
				return err
			}
			v, ok := it.next()
			if !ok {
				return nil
			}
			if err := in.assign(cl.Target, v); err != nil {
				return err
			}
			keep := true
			for _, cond := range cl.Ifs {
				cv, err := in.eval(cond)
				if err != nil {
					return err
				}
				if !Truth(cv) {
					keep = false
					break
				}
			}
			if !keep {
				continue
			}
			if err := walk(depth + 1); err != nil {
				return err
			}
		}
	}

	if err := walk(0); err != nil {
		return nil, err
	}
	switch c.Kind {
	case DictComp:
		return dict, nil
	case SetComp:
		s := NewSet()
		for _, it := range items {
			if err := s.Add(it); err != nil {
				return nil, err
			}
		}
		return s, nil
	default: // list comprehensions and generator expressions both yield lists
		return &List{Items: items}, nil
	}
}

// --- Operators ---

func unary(op string, x any) (any, error) {
	switch op {
	case "not":
		return !Truth(x), nil
	case "-":
		switch v := x.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		case bool:
			i, _ := toInt(v)
			return -i, nil
		}
		return nil, typeErrf("bad operand type for unary -: '%s'", TypeName(x))
	case "+":
		if _, ok := toFloat(x); ok {
			if i, ok := toInt(x); ok {
				return i, nil
			}
			return x, nil
		}
		return nil, typeErrf("bad operand type for unary +: '%s'", TypeName(x))
	}
	return nil, NewError(ExcRuntime, "unknown unary operator %s", op)
}

// arith implements the arithmetic operators with Python's numeric rules:
// int op int stays int except "/", mixed operands widen to float, and
// division by zero raises ZeroDivisionError.
func arith(op string, a, b any) (any, error) {
	// Non-numeric overloads first.
	switch op {
	case "+":
		if as, ok := a.(string); ok {
			bs, ok := b.(string)
			if !ok {
				return nil, typeErrf("can only concatenate str (not \"%s\") to str", TypeName(b))
			}
			return as + bs, nil
		}
		if al, ok := a.(*List); ok {
			bl, ok := b.(*List)
			if !ok {
				return nil, typeErrf("can only concatenate list (not \"%s\") to list", TypeName(b))
			}
			out := make([]any, 0, len(al.Items)+len(bl.Items))
			out = append(out, al.Items...)
			out = append(out, bl.Items...)
			return &List{Items: out}, nil
		}
	case "-":
		if as, ok := a.(*Set); ok {
			if bs, ok := b.(*Set); ok {
				return setMethods["difference"](nil, as, []any{bs}, nil)
			}
		}
	case "*":
		if s, ok := a.(string); ok {
			if n, ok := toInt(b); ok {
				return repeatStr(s, n), nil
			}
		}
		if s, ok := b.(string); ok {
			if n, ok := toInt(a); ok {
				return repeatStr(s, n), nil
			}
		}
		if l, ok := a.(*List); ok {
			if n, ok := toInt(b); ok {
				return repeatList(l, n), nil
			}
		}
		if l, ok := b.(*List); ok {
			if n, ok := toInt(a); ok {
				return repeatList(l, n), nil
			}
		}
	}

	ai, aInt := toInt(a)
	bi, bInt := toInt(b)
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if !aNum || !bNum {
		return nil, typeErrf("unsupported operand type(s) for %s: '%s' and '%s'",
			op, TypeName(a), TypeName(b))
	}

	switch op {
	case "+":
		if aInt && bInt {
			return ai + bi, nil
		}
		return af + bf, nil
	case "-":
		if aInt && bInt {
			return ai - bi, nil
		}
		return af - bf, nil
	case "*":
		if aInt && bInt {
			return ai * bi, nil
		}
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, NewError(ExcZeroDivision, "division by zero")
		}
		return af / bf, nil
	case "//":
		if bf == 0 {
			return nil, NewError(ExcZeroDivision, "integer division or modulo by zero")
		}
		if aInt && bInt {
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return q, nil
		}
		return math.Floor(af / bf), nil
	case "%":
		if bf == 0 {
			return nil, NewError(ExcZeroDivision, "integer division or modulo by zero")
		}
		if aInt && bInt {
			m := ai % bi
			if m != 0 && (m < 0) != (bi < 0) {
				m += bi
			}
			return m, nil
		}
		m := math.Mod(af, bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return m, nil
	case "**":
		if aInt && bInt && bi >= 0 {
			result := int64(1)
			for i := int64(0); i < bi; i++ {
				result *= ai
			}
			return result, nil
		}
		return math.Pow(af, bf), nil
	}
	return nil, NewError(ExcRuntime, "unknown operator %s", op)
}

func repeatStr(s string, n int64) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, int(n))
}

func repeatList(l *List, n int64) *List {
	if n <= 0 {
		return NewList()
	}
	out := make([]any, 0, int64(len(l.Items))*n)
	for i := int64(0); i < n; i++ {
		out = append(out, l.Items...)
	}
	return &List{Items: out}
}

func compareOp(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "<":
		c, err := Order(a, b)
		return c < 0, err
	case "<=":
		c, err := Order(a, b)
		return c <= 0, err
	case ">":
		c, err := Order(a, b)
		return c > 0, err
	case ">=":
		c, err := Order(a, b)
		return c >= 0, err
	case "in":
		return contains(b, a)
	case "not in":
		ok, err := contains(b, a)
		return !ok, err
	case "is":
		return identical(a, b), nil
	case "is not":
		return !identical(a, b), nil
	}
	return false, NewError(ExcRuntime, "unknown comparison %s", op)
}

func contains(container, item any) (bool, error) {
	switch x := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, typeErrf("'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(x, s), nil
	case *List:
		for _, it := range x.Items {
			if Equal(it, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, present := x[k]
		return present, nil
	case *Set:
		return x.Has(item)
	case *Range:
		i, ok := toInt(item)
		if !ok {
			return false, nil
		}
		if x.Step > 0 {
			return i >= x.Start && i < x.Stop && (i-x.Start)%x.Step == 0, nil
		}
		return i <= x.Start && i > x.Stop && (x.Start-i)%(-x.Step) == 0, nil
	}
	return false, typeErrf("argument of type '%s' is not iterable", TypeName(container))
}

// identical implements "is". Immutable scalars compare by value; reference
// types compare by pointer.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case bool, int64, float64, string:
		return TypeName(a) == TypeName(b) && Equal(a, b)
	case *List:
		y, ok := b.(*List)
		return ok && x == y
	case *Set:
		y, ok := b.(*Set)
		return ok && x == y
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y
	case *Builtin:
		y, ok := b.(*Builtin)
		return ok && x == y
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && reflect.ValueOf(x).Pointer() == reflect.ValueOf(y).Pointer()
	}
	return a == b
}

// --- Indexing and slicing ---

func getIndex(obj, idx any) (any, error) {
	switch x := obj.(type) {
	case *List:
		i, ok := toInt(idx)
		if !ok {
			return nil, typeErrf("list indices must be integers, not %s", TypeName(idx))
		}
		ri, err := resolveIndex(i, len(x.Items))
		if err != nil {
			return nil, NewError(ExcIndexError, "list index out of range")
		}
		return x.Items[ri], nil
	case string:
		i, ok := toInt(idx)
		if !ok {
			return nil, typeErrf("string indices must be integers, not %s", TypeName(idx))
		}
		runes := []rune(x)
		ri, err := resolveIndex(i, len(runes))
		if err != nil {
			return nil, NewError(ExcIndexError, "string index out of range")
		}
		return string(runes[ri]), nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, typeErrf("dict keys must be strings, not %s", TypeName(idx))
		}
		v, present := x[k]
		if !present {
			return nil, NewError(ExcKeyError, "%s", pyQuote(k))
		}
		return v, nil
	case *Range:
		i, ok := toInt(idx)
		if !ok {
			return nil, typeErrf("range indices must be integers, not %s", TypeName(idx))
		}
		n := x.Len()
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, NewError(ExcIndexError, "range object index out of range")
		}
		return x.Start + i*x.Step, nil
	}
	return nil, typeErrf("'%s' object is not subscriptable", TypeName(obj))
}

func (in *Interp) evalSlice(s *Slice) (any, error) {
	obj, err := in.eval(s.X)
	if err != nil {
		return nil, err
	}
	bound := func(e Expr) (*int64, error) {
		if e == nil {
			return nil, nil
		}
		v, err := in.eval(e)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		i, ok := toInt(v)
		if !ok {
			return nil, typeErrf("slice indices must be integers or None")
		}
		return &i, nil
	}
	low, err := bound(s.Low)
	if err != nil {
		return nil, err
	}
	high, err := bound(s.High)
	if err != nil {
		return nil, err
	}
	step, err := bound(s.Step)
	if err != nil {
		return nil, err
	}

	switch x := obj.(type) {
	case *List:
		items, err := sliceSeq(x.Items, low, high, step)
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	case string:
		runes := []rune(x)
		items := make([]any, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		out, err := sliceSeq(items, low, high, step)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, it := range out {
			sb.WriteString(it.(string))
		}
		return sb.String(), nil
	}
	return nil, typeErrf("'%s' object is not subscriptable", TypeName(obj))
}

// sliceSeq applies Python slice semantics (clamped bounds, negative
// indexes, negative steps) to a materialized sequence.
func sliceSeq(items []any, low, high, step *int64) ([]any, error) {
	n := int64(len(items))
	st := int64(1)
	if step != nil {
		st = *step
	}
	if st == 0 {
		return nil, valueErrf("slice step cannot be zero")
	}

	norm := func(p *int64, def int64) int64 {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += n
		}
		return v
	}

	var start, stop int64
	if st > 0 {
		start = norm(low, 0)
		stop = norm(high, n)
		if start < 0 {
			start = 0
		}
		if stop > n {
			stop = n
		}
		var out []any
		for i := start; i < stop; i += st {
			out = append(out, items[i])
		}
		return out, nil
	}

	start = norm(low, n-1)
	if low != nil && *low >= 0 && start >= n {
		start = n - 1
	}
	if start >= n {
		start = n - 1
	}
	stop = norm(high, -1)
	if high == nil {
		stop = -1
	}
	var out []any
	for i := start; i > stop && i >= 0; i += st {
		if i < n {
			out = append(out, items[i])
		}
	}
	return out, nil
}
