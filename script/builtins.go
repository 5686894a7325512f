package script

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Exception values double as host objects so programs can inspect them.
func (e *Error) TypeName() string { return e.Kind }

func (e *Error) Attr(name string) (any, bool) {
	if name == "args" {
		if e.Message == "" {
			return NewList(), true
		}
		return NewList(e.Message), true
	}
	return nil, false
}

var excKinds = map[string]bool{
	ExcException:    true,
	ExcValueError:   true,
	ExcTypeError:    true,
	ExcKeyError:     true,
	ExcIndexError:   true,
	ExcNameError:    true,
	ExcAttribError:  true,
	ExcZeroDivision: true,
	ExcRuntime:      true,
	ExcStopIter:     true,
}

// Builtins returns the global environment every program starts with: the
// curated function set plus the exception constructors. The host adds its
// own bindings (ctx, plan, store, make_response) on top.
func Builtins() map[string]any {
	env := map[string]any{}
	for name, fn := range builtinFns {
		env[name] = &Builtin{Name: name, Fn: fn}
	}
	for kind := range excKinds {
		k := kind
		env[k] = &Builtin{Name: k, Fn: func(in *Interp, args []any, kwargs map[string]any) (any, error) {
			if len(kwargs) > 0 {
				return nil, typeErrf("%s() takes no keyword arguments", k)
			}
			msg := ""
			if len(args) > 0 {
				parts := make([]string, len(args))
				for i, a := range args {
					parts[i] = Str(a)
				}
				msg = strings.Join(parts, ", ")
			}
			return &Error{Kind: k, Message: msg}, nil
		}}
	}
	return env
}

func argRange(name string, args []any, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return typeErrf("%s() takes %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

func noKwargs(name string, kwargs map[string]any) error {
	if len(kwargs) > 0 {
		return typeErrf("%s() takes no keyword arguments", name)
	}
	return nil
}

func wantStr(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", typeErrf("%s() expected str, got %s", name, TypeName(v))
	}
	return s, nil
}

func wantInt(name string, v any) (int64, error) {
	i, ok := toInt(v)
	if !ok {
		return 0, typeErrf("%s() expected int, got %s", name, TypeName(v))
	}
	return i, nil
}

var builtinFns = map[string]func(in *Interp, args []any, kwargs map[string]any) (any, error){
	"len": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("len", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case string:
			return int64(utf8.RuneCountInString(x)), nil
		case *List:
			return int64(len(x.Items)), nil
		case map[string]any:
			return int64(len(x)), nil
		case *Set:
			return int64(x.Len()), nil
		case *Range:
			return x.Len(), nil
		}
		return nil, typeErrf("object of type '%s' has no len()", TypeName(args[0]))
	},

	"range": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("range", args, 1, 3); err != nil {
			return nil, err
		}
		nums := make([]int64, len(args))
		for i, a := range args {
			n, err := wantInt("range", a)
			if err != nil {
				return nil, err
			}
			nums[i] = n
		}
		switch len(nums) {
		case 1:
			return &Range{Start: 0, Stop: nums[0], Step: 1}, nil
		case 2:
			return &Range{Start: nums[0], Stop: nums[1], Step: 1}, nil
		default:
			if nums[2] == 0 {
				return nil, valueErrf("range() arg 3 must not be zero")
			}
			return &Range{Start: nums[0], Stop: nums[1], Step: nums[2]}, nil
		}
	},

	"abs": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("abs", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case int64:
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case float64:
			return math.Abs(x), nil
		case bool:
			i, _ := toInt(x)
			return i, nil
		}
		return nil, typeErrf("bad operand type for abs(): '%s'", TypeName(args[0]))
	},

	"round": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("round", args, 1, 2); err != nil {
			return nil, err
		}
		f, ok := toFloat(args[0])
		if !ok {
			return nil, typeErrf("type %s doesn't define round()", TypeName(args[0]))
		}
		if len(args) == 1 {
			return int64(math.RoundToEven(f)), nil
		}
		nd, err := wantInt("round", args[1])
		if err != nil {
			return nil, err
		}
		shift := math.Pow(10, float64(nd))
		return math.RoundToEven(f*shift) / shift, nil
	},

	"min": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		return minMax(in, "min", args, kwargs, -1)
	},
	"max": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		return minMax(in, "max", args, kwargs, 1)
	},

	"sum": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("sum", args, 1, 2); err != nil {
			return nil, err
		}
		var acc any = int64(0)
		if len(args) == 2 {
			acc = args[1]
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			acc, err = arith("+", acc, it)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	},

	"any": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("any", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if Truth(it) {
				return true, nil
			}
		}
		return false, nil
	},

	"all": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("all", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !Truth(it) {
				return false, nil
			}
		}
		return true, nil
	},

	"sorted": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("sorted", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		copy(out, items)
		if err := sortItems(in, out, kwargs["key"], Truth(kwargs["reverse"])); err != nil {
			return nil, err
		}
		return &List{Items: out}, nil
	},

	"enumerate": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("enumerate", args, 1, 2); err != nil {
			return nil, err
		}
		start := int64(0)
		if len(args) == 2 {
			s, err := wantInt("enumerate", args[1])
			if err != nil {
				return nil, err
			}
			start = s
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = NewList(start+int64(i), it)
		}
		return &List{Items: out}, nil
	},

	"zip": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return NewList(), nil
		}
		cols := make([][]any, len(args))
		n := -1
		for i, a := range args {
			items, err := materialize(a)
			if err != nil {
				return nil, err
			}
			cols[i] = items
			if n < 0 || len(items) < n {
				n = len(items)
			}
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			row := make([]any, len(cols))
			for j := range cols {
				row[j] = cols[j][i]
			}
			out[i] = &List{Items: row}
		}
		return &List{Items: out}, nil
	},

	"str": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("str", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return "", nil
		}
		return Str(args[0]), nil
	},

	"repr": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("repr", args, 1, 1); err != nil {
			return nil, err
		}
		return Repr(args[0]), nil
	},

	"int": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("int", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return int64(0), nil
		}
		switch x := args[0].(type) {
		case bool:
			i, _ := toInt(x)
			return i, nil
		case int64:
			return x, nil
		case float64:
			return int64(math.Trunc(x)), nil
		case string:
			s := strings.TrimSpace(x)
			var i int64
			neg := false
			rest := s
			if strings.HasPrefix(rest, "-") {
				neg = true
				rest = rest[1:]
			} else if strings.HasPrefix(rest, "+") {
				rest = rest[1:]
			}
			if rest == "" {
				return nil, valueErrf("invalid literal for int(): %s", pyQuote(x))
			}
			for _, r := range rest {
				if r < '0' || r > '9' {
					return nil, valueErrf("invalid literal for int(): %s", pyQuote(x))
				}
				i = i*10 + int64(r-'0')
			}
			if neg {
				i = -i
			}
			return i, nil
		}
		return nil, typeErrf("int() argument must be a string or a number, not '%s'", TypeName(args[0]))
	},

	"float": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("float", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return float64(0), nil
		}
		if f, ok := toFloat(args[0]); ok {
			return f, nil
		}
		if s, ok := args[0].(string); ok {
			var f float64
			n, err := parseFloatStrict(strings.TrimSpace(s))
			if err != nil {
				return nil, valueErrf("could not convert string to float: %s", pyQuote(s))
			}
			f = n
			return f, nil
		}
		return nil, typeErrf("float() argument must be a string or a number, not '%s'", TypeName(args[0]))
	},

	"bool": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("bool", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return false, nil
		}
		return Truth(args[0]), nil
	},

	"list": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("list", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewList(), nil
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	},

	"tuple": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("tuple", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewList(), nil
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	},

	"dict": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("dict", args, 0, 1); err != nil {
			return nil, err
		}
		out := map[string]any{}
		if len(args) == 1 {
			switch x := args[0].(type) {
			case map[string]any:
				for k, v := range x {
					out[k] = v
				}
			case *List:
				for _, it := range x.Items {
					pair, ok := it.(*List)
					if !ok || len(pair.Items) != 2 {
						return nil, valueErrf("dictionary update sequence elements must be pairs")
					}
					k, ok := pair.Items[0].(string)
					if !ok {
						return nil, typeErrf("dict keys must be strings, got %s", TypeName(pair.Items[0]))
					}
					out[k] = pair.Items[1]
				}
			default:
				return nil, typeErrf("dict() argument must be a mapping or pair sequence")
			}
		}
		for k, v := range kwargs {
			out[k] = v
		}
		return out, nil
	},

	"set": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("set", args, 0, 1); err != nil {
			return nil, err
		}
		s := NewSet()
		if len(args) == 1 {
			items, err := materialize(args[0])
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				if err := s.Add(it); err != nil {
					return nil, err
				}
			}
		}
		return s, nil
	},

	"isinstance": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("isinstance", args, 2, 2); err != nil {
			return nil, err
		}
		kinds := []any{args[1]}
		if l, ok := args[1].(*List); ok {
			kinds = l.Items
		}
		for _, k := range kinds {
			b, ok := k.(*Builtin)
			if !ok {
				return nil, typeErrf("isinstance() arg 2 must be a type or tuple of types")
			}
			if isinstanceOf(args[0], b.Name) {
				return true, nil
			}
		}
		return false, nil
	},

	"print": func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Str(a)
		}
		in.printed = append(in.printed, strings.Join(parts, " "))
		return nil, nil
	},
}

func isinstanceOf(v any, typeName string) bool {
	switch typeName {
	case "bool":
		_, ok := v.(bool)
		return ok
	case "int":
		if _, ok := v.(bool); ok {
			return true // bool subclasses int
		}
		_, ok := v.(int64)
		return ok
	case "float":
		_, ok := v.(float64)
		return ok
	case "str":
		_, ok := v.(string)
		return ok
	case "list", "tuple":
		_, ok := v.(*List)
		return ok
	case "dict":
		_, ok := v.(map[string]any)
		return ok
	case "set":
		_, ok := v.(*Set)
		return ok
	case "range":
		_, ok := v.(*Range)
		return ok
	}
	if excKinds[typeName] {
		e, ok := v.(*Error)
		return ok && (typeName == ExcException || e.Kind == typeName)
	}
	return false
}

func minMax(in *Interp, name string, args []any, kwargs map[string]any, dir int) (any, error) {
	if err := noKwargs(name, kwargs); err != nil {
		return nil, err
	}
	var items []any
	if len(args) == 1 {
		var err error
		items, err = materialize(args[0])
		if err != nil {
			return nil, err
		}
	} else {
		items = args
	}
	if len(items) == 0 {
		return nil, valueErrf("%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, it := range items[1:] {
		c, err := Order(it, best)
		if err != nil {
			return nil, err
		}
		if c == dir {
			best = it
		}
	}
	return best, nil
}

func sortItems(in *Interp, items []any, key any, reverse bool) error {
	type keyed struct {
		k any
		v any
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		k := it
		if key != nil {
			var err error
			k, err = in.call(key, []any{it}, nil)
			if err != nil {
				return err
			}
		}
		ks[i] = keyed{k: k, v: it}
	}
	var sortErr error
	sort.SliceStable(ks, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := Order(ks[i].k, ks[j].k)
		if err != nil {
			sortErr = err
			return false
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return sortErr
	}
	for i := range ks {
		items[i] = ks[i].v
	}
	return nil
}

func parseFloatStrict(s string) (float64, error) {
	if s == "" {
		return 0, valueErrf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

// --- Method resolution ---

// attrOf resolves recv.name, returning a bound method or host attribute.
func attrOf(recv any, name string) (any, error) {
	switch x := recv.(type) {
	case string:
		if m, ok := strMethods[name]; ok {
			return bind(name, x, m), nil
		}
	case *List:
		if m, ok := listMethods[name]; ok {
			return bind(name, x, m), nil
		}
	case map[string]any:
		if m, ok := dictMethods[name]; ok {
			return bind(name, x, m), nil
		}
	case *Set:
		if m, ok := setMethods[name]; ok {
			return bind(name, x, m), nil
		}
	case Object:
		if v, ok := x.Attr(name); ok {
			return v, nil
		}
	}
	return nil, NewError(ExcAttribError, "'%s' object has no attribute '%s'", TypeName(recv), name)
}

type method[T any] func(in *Interp, recv T, args []any, kwargs map[string]any) (any, error)

func bind[T any](name string, recv T, m method[T]) *Builtin {
	return &Builtin{Name: name, Fn: func(in *Interp, args []any, kwargs map[string]any) (any, error) {
		return m(in, recv, args, kwargs)
	}}
}

var strMethods = map[string]method[string]{
	"upper": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return strings.ToUpper(s), nil
	},
	"lower": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return strings.ToLower(s), nil
	},
	"title": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		prevAlpha := false
		return strings.Map(func(r rune) rune {
			alpha := unicode.IsLetter(r)
			if alpha && !prevAlpha {
				r = unicode.ToUpper(r)
			} else if alpha {
				r = unicode.ToLower(r)
			}
			prevAlpha = alpha
			return r
		}, s), nil
	},
	"capitalize": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if s == "" {
			return s, nil
		}
		r := []rune(strings.ToLower(s))
		r[0] = unicode.ToUpper(r[0])
		return string(r), nil
	},
	"strip": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return stripMethod(s, args, strings.Trim, strings.TrimSpace)
	},
	"lstrip": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return stripMethod(s, args, strings.TrimLeft, func(s string) string {
			return strings.TrimLeftFunc(s, unicode.IsSpace)
		})
	},
	"rstrip": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return stripMethod(s, args, strings.TrimRight, func(s string) string {
			return strings.TrimRightFunc(s, unicode.IsSpace)
		})
	},
	"split": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("split", args, 0, 2); err != nil {
			return nil, err
		}
		if len(args) == 0 || args[0] == nil {
			fields := strings.Fields(s)
			out := make([]any, len(fields))
			for i, f := range fields {
				out[i] = f
			}
			return &List{Items: out}, nil
		}
		sep, err := wantStr("split", args[0])
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, valueErrf("empty separator")
		}
		n := -1
		if len(args) == 2 {
			m, err := wantInt("split", args[1])
			if err != nil {
				return nil, err
			}
			if m >= 0 {
				n = int(m) + 1
			}
		}
		parts := strings.SplitN(s, sep, n)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return &List{Items: out}, nil
	},
	"join": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("join", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, it := range items {
			str, ok := it.(string)
			if !ok {
				return nil, typeErrf("sequence item %d: expected str, %s found", i, TypeName(it))
			}
			parts[i] = str
		}
		return strings.Join(parts, s), nil
	},
	"replace": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("replace", args, 2, 3); err != nil {
			return nil, err
		}
		old, err := wantStr("replace", args[0])
		if err != nil {
			return nil, err
		}
		new_, err := wantStr("replace", args[1])
		if err != nil {
			return nil, err
		}
		n := -1
		if len(args) == 3 {
			m, err := wantInt("replace", args[2])
			if err != nil {
				return nil, err
			}
			n = int(m)
		}
		return strings.Replace(s, old, new_, n), nil
	},
	"startswith": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return prefixSuffix("startswith", s, args, strings.HasPrefix)
	},
	"endswith": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return prefixSuffix("endswith", s, args, strings.HasSuffix)
	},
	"find": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("find", args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := wantStr("find", args[0])
		if err != nil {
			return nil, err
		}
		idx := strings.Index(s, sub)
		if idx < 0 {
			return int64(-1), nil
		}
		return int64(utf8.RuneCountInString(s[:idx])), nil
	},
	"index": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("index", args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := wantStr("index", args[0])
		if err != nil {
			return nil, err
		}
		idx := strings.Index(s, sub)
		if idx < 0 {
			return nil, valueErrf("substring not found")
		}
		return int64(utf8.RuneCountInString(s[:idx])), nil
	},
	"count": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("count", args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := wantStr("count", args[0])
		if err != nil {
			return nil, err
		}
		return int64(strings.Count(s, sub)), nil
	},
	"isdigit": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0, nil
	},
	"isalpha": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) < 0, nil
	},
	"isalnum": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return s != "" && strings.IndexFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) < 0, nil
	},
	"format": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		return formatStr(s, args, kwargs)
	},
	"zfill": func(in *Interp, s string, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("zfill", args, 1, 1); err != nil {
			return nil, err
		}
		width, err := wantInt("zfill", args[0])
		if err != nil {
			return nil, err
		}
		for int64(utf8.RuneCountInString(s)) < width {
			if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
				s = s[:1] + "0" + s[1:]
			} else {
				s = "0" + s
			}
		}
		return s, nil
	},
}

func stripMethod(s string, args []any, withSet func(string, string) string, plain func(string) string) (any, error) {
	if err := argRange("strip", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 || args[0] == nil {
		return plain(s), nil
	}
	cutset, err := wantStr("strip", args[0])
	if err != nil {
		return nil, err
	}
	return withSet(s, cutset), nil
}

func prefixSuffix(name, s string, args []any, test func(string, string) bool) (any, error) {
	if err := argRange(name, args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return test(s, x), nil
	case *List:
		for _, it := range x.Items {
			sub, ok := it.(string)
			if !ok {
				return nil, typeErrf("%s first arg must be str or a tuple of str", name)
			}
			if test(s, sub) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, typeErrf("%s first arg must be str or a tuple of str", name)
}

// formatStr implements the common subset of str.format: "{}", "{0}", and
// "{name}" fields without format specs.
func formatStr(tmpl string, args []any, kwargs map[string]any) (any, error) {
	var sb strings.Builder
	auto := 0
	i := 0
	for i < len(tmpl) {
		c := tmpl[i]
		if c == '{' {
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, valueErrf("single '{' encountered in format string")
			}
			field := tmpl[i+1 : i+end]
			i += end + 1
			var v any
			switch {
			case field == "":
				if auto >= len(args) {
					return nil, NewError(ExcIndexError, "replacement index %d out of range", auto)
				}
				v = args[auto]
				auto++
			case isAllDigits(field):
				idx := 0
				for _, r := range field {
					idx = idx*10 + int(r-'0')
				}
				if idx >= len(args) {
					return nil, NewError(ExcIndexError, "replacement index %d out of range", idx)
				}
				v = args[idx]
			default:
				val, ok := kwargs[field]
				if !ok {
					return nil, NewError(ExcKeyError, "%s", pyQuote(field))
				}
				v = val
			}
			sb.WriteString(Str(v))
			continue
		}
		if c == '}' {
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				sb.WriteByte('}')
				i += 2
				continue
			}
			return nil, valueErrf("single '}' encountered in format string")
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), nil
}

func isAllDigits(s string) bool {
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

var listMethods = map[string]method[*List]{
	"append": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("append", args, 1, 1); err != nil {
			return nil, err
		}
		l.Items = append(l.Items, args[0])
		return nil, nil
	},
	"extend": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("extend", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, items...)
		return nil, nil
	},
	"insert": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("insert", args, 2, 2); err != nil {
			return nil, err
		}
		idx, err := wantInt("insert", args[0])
		if err != nil {
			return nil, err
		}
		i := clampIndex(idx, len(l.Items))
		l.Items = append(l.Items, nil)
		copy(l.Items[i+1:], l.Items[i:])
		l.Items[i] = args[1]
		return nil, nil
	},
	"pop": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("pop", args, 0, 1); err != nil {
			return nil, err
		}
		if len(l.Items) == 0 {
			return nil, NewError(ExcIndexError, "pop from empty list")
		}
		i := len(l.Items) - 1
		if len(args) == 1 {
			idx, err := wantInt("pop", args[0])
			if err != nil {
				return nil, err
			}
			ri, err := resolveIndex(idx, len(l.Items))
			if err != nil {
				return nil, err
			}
			i = ri
		}
		v := l.Items[i]
		l.Items = append(l.Items[:i], l.Items[i+1:]...)
		return v, nil
	},
	"remove": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("remove", args, 1, 1); err != nil {
			return nil, err
		}
		for i, it := range l.Items {
			if Equal(it, args[0]) {
				l.Items = append(l.Items[:i], l.Items[i+1:]...)
				return nil, nil
			}
		}
		return nil, valueErrf("list.remove(x): x not in list")
	},
	"clear": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		l.Items = nil
		return nil, nil
	},
	"index": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("index", args, 1, 1); err != nil {
			return nil, err
		}
		for i, it := range l.Items {
			if Equal(it, args[0]) {
				return int64(i), nil
			}
		}
		return nil, valueErrf("%s is not in list", Repr(args[0]))
	},
	"count": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("count", args, 1, 1); err != nil {
			return nil, err
		}
		n := int64(0)
		for _, it := range l.Items {
			if Equal(it, args[0]) {
				n++
			}
		}
		return n, nil
	},
	"sort": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("sort", args, 0, 0); err != nil {
			return nil, err
		}
		return nil, sortItems(in, l.Items, kwargs["key"], Truth(kwargs["reverse"]))
	},
	"reverse": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		for i, j := 0, len(l.Items)-1; i < j; i, j = i+1, j-1 {
			l.Items[i], l.Items[j] = l.Items[j], l.Items[i]
		}
		return nil, nil
	},
	"copy": func(in *Interp, l *List, args []any, kwargs map[string]any) (any, error) {
		out := make([]any, len(l.Items))
		copy(out, l.Items)
		return &List{Items: out}, nil
	},
}

func clampIndex(idx int64, n int) int {
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 {
		return 0
	}
	if idx > int64(n) {
		return n
	}
	return int(idx)
}

func resolveIndex(idx int64, n int) (int, error) {
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 || idx >= int64(n) {
		return 0, NewError(ExcIndexError, "index out of range")
	}
	return int(idx), nil
}

var dictMethods = map[string]method[map[string]any]{
	"get": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("get", args, 1, 2); err != nil {
			return nil, err
		}
		k, err := wantStr("get", args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := d[k]; ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil
	},
	"keys": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		keys := sortedKeys(d)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return &List{Items: out}, nil
	},
	"values": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		keys := sortedKeys(d)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = d[k]
		}
		return &List{Items: out}, nil
	},
	"items": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		keys := sortedKeys(d)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = NewList(k, d[k])
		}
		return &List{Items: out}, nil
	},
	"pop": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("pop", args, 1, 2); err != nil {
			return nil, err
		}
		k, err := wantStr("pop", args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := d[k]; ok {
			delete(d, k)
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, NewError(ExcKeyError, "%s", pyQuote(k))
	},
	"update": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("update", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			other, ok := args[0].(map[string]any)
			if !ok {
				return nil, typeErrf("update() argument must be a dict, not %s", TypeName(args[0]))
			}
			for k, v := range other {
				d[k] = v
			}
		}
		for k, v := range kwargs {
			d[k] = v
		}
		return nil, nil
	},
	"setdefault": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("setdefault", args, 1, 2); err != nil {
			return nil, err
		}
		k, err := wantStr("setdefault", args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := d[k]; ok {
			return v, nil
		}
		var def any
		if len(args) == 2 {
			def = args[1]
		}
		d[k] = def
		return def, nil
	},
	"clear": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		for k := range d {
			delete(d, k)
		}
		return nil, nil
	},
	"copy": func(in *Interp, d map[string]any, args []any, kwargs map[string]any) (any, error) {
		out := make(map[string]any, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out, nil
	},
}

func sortedKeys(d map[string]any) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setMethods = map[string]method[*Set]{
	"add": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("add", args, 1, 1); err != nil {
			return nil, err
		}
		return nil, s.Add(args[0])
	},
	"remove": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("remove", args, 1, 1); err != nil {
			return nil, err
		}
		ok, err := s.Remove(args[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewError(ExcKeyError, "%s", Repr(args[0]))
		}
		return nil, nil
	},
	"discard": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("discard", args, 1, 1); err != nil {
			return nil, err
		}
		_, err := s.Remove(args[0])
		return nil, err
	},
	"union": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		out := NewSet()
		for _, v := range s.Values() {
			if err := out.Add(v); err != nil {
				return nil, err
			}
		}
		for _, a := range args {
			items, err := materialize(a)
			if err != nil {
				return nil, err
			}
			for _, v := range items {
				if err := out.Add(v); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	},
	"intersection": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("intersection", args, 1, 1); err != nil {
			return nil, err
		}
		other, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		otherSet := NewSet()
		for _, v := range other {
			if err := otherSet.Add(v); err != nil {
				return nil, err
			}
		}
		out := NewSet()
		for _, v := range s.Values() {
			has, err := otherSet.Has(v)
			if err != nil {
				return nil, err
			}
			if has {
				if err := out.Add(v); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	},
	"difference": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		if err := argRange("difference", args, 1, 1); err != nil {
			return nil, err
		}
		other, err := materialize(args[0])
		if err != nil {
			return nil, err
		}
		otherSet := NewSet()
		for _, v := range other {
			if err := otherSet.Add(v); err != nil {
				return nil, err
			}
		}
		out := NewSet()
		for _, v := range s.Values() {
			has, err := otherSet.Has(v)
			if err != nil {
				return nil, err
			}
			if !has {
				if err := out.Add(v); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	},
	"copy": func(in *Interp, s *Set, args []any, kwargs map[string]any) (any, error) {
		out := NewSet()
		for _, v := range s.Values() {
			if err := out.Add(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	},
}
