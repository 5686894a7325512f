package script

import (
	"context"
	"errors"
	"testing"
	"time"
)

// evalProgram runs src and returns the final value of "out".
func evalProgram(t *testing.T, src string) any {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Check(prog); err != nil {
		t.Fatalf("check: %v", err)
	}
	in := New(context.Background(), nil)
	if err := in.Run(prog); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, ok := in.Global("out")
	if !ok {
		t.Fatalf("program did not set out")
	}
	return v
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	in := New(context.Background(), nil)
	return in.Run(prog)
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"1 + 2", int64(3)},
		{"7 - 10", int64(-3)},
		{"3 * 4", int64(12)},
		{"7 / 2", 3.5},
		{"7 // 2", int64(3)},
		{"-7 // 2", int64(-4)},
		{"7 % 3", int64(1)},
		{"-7 % 3", int64(2)},
		{"2 ** 10", int64(1024)},
		{"2 ** -1", 0.5},
		{"1 + 2.5", 3.5},
		{"'a' + 'b'", "ab"},
		{"'ab' * 3", "ababab"},
		{"True + True", int64(2)},
		{"-(-5)", int64(5)},
		{"1 < 2 < 3", true},
		{"1 < 2 > 5", false},
		{"'a' in 'cab'", true},
		{"3 in [1, 2, 3]", true},
		{"'x' not in {'a': 1}", true},
		{"None is None", true},
		{"1 is not None", true},
		{"not []", true},
		{"True and 'yes'", "yes"},
		{"0 or 'fallback'", "fallback"},
		{"'big' if 10 > 5 else 'small'", "big"},
	}
	for _, tt := range tests {
		got := evalProgram(t, "out = "+tt.expr)
		if !Equal(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.expr, Repr(got), Repr(tt.want))
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	err := runErr(t, "x = 1 / 0")
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcZeroDivision {
		t.Fatalf("got %v, want ZeroDivisionError", err)
	}
}

func TestControlFlow(t *testing.T) {
	src := `
total = 0
for i in range(10):
    if i % 2 == 0:
        continue
    if i > 7:
        break
    total += i
out = total
`
	if got := evalProgram(t, src); !Equal(got, int64(1+3+5+7)) {
		t.Fatalf("got %v, want 16", got)
	}
}

func TestWhileLoop(t *testing.T) {
	src := `
n = 1
count = 0
while n < 100:
    n = n * 2
    count += 1
out = count
`
	if got := evalProgram(t, src); !Equal(got, int64(7)) {
		t.Fatalf("got %v, want 7", got)
	}
}

func TestTopLevelReturnStopsExecution(t *testing.T) {
	src := `
out = "first"
return
out = "second"
`
	if got := evalProgram(t, src); got != "first" {
		t.Fatalf("got %v, want first", got)
	}
}

func TestTupleUnpacking(t *testing.T) {
	src := `
pairs = {"a": 1, "b": 2}
keys = []
vals = 0
for k, v in pairs.items():
    keys.append(k)
    vals += v
out = [keys, vals]
`
	got := evalProgram(t, src).(*List)
	if !Equal(got.Items[0], NewList("a", "b")) {
		t.Errorf("keys = %s", Repr(got.Items[0]))
	}
	if !Equal(got.Items[1], int64(3)) {
		t.Errorf("vals = %s", Repr(got.Items[1]))
	}
}

func TestListOperations(t *testing.T) {
	src := `
xs = [3, 1, 2]
xs.append(5)
xs.sort()
xs.reverse()
ys = xs[1:3]
out = [xs, ys, len(xs), sum(xs), max(xs), min(xs)]
`
	got := evalProgram(t, src).(*List)
	if !Equal(got.Items[0], NewList(int64(5), int64(3), int64(2), int64(1))) {
		t.Errorf("xs = %s", Repr(got.Items[0]))
	}
	if !Equal(got.Items[1], NewList(int64(3), int64(2))) {
		t.Errorf("ys = %s", Repr(got.Items[1]))
	}
	if !Equal(got.Items[2], int64(4)) || !Equal(got.Items[3], int64(11)) {
		t.Errorf("len/sum = %s/%s", Repr(got.Items[2]), Repr(got.Items[3]))
	}
	if !Equal(got.Items[4], int64(5)) || !Equal(got.Items[5], int64(1)) {
		t.Errorf("max/min = %s/%s", Repr(got.Items[4]), Repr(got.Items[5]))
	}
}

func TestDictOperations(t *testing.T) {
	src := `
d = {"name": "ada", "age": 36}
d["lang"] = "en"
missing = d.get("nope", "dflt")
popped = d.pop("age")
out = [d, missing, popped, "name" in d]
`
	got := evalProgram(t, src).(*List)
	want := map[string]any{"name": "ada", "lang": "en"}
	if !Equal(got.Items[0], want) {
		t.Errorf("d = %s", Repr(got.Items[0]))
	}
	if got.Items[1] != "dflt" || !Equal(got.Items[2], int64(36)) || got.Items[3] != true {
		t.Errorf("rest = %s", Repr(got))
	}
}

func TestStringMethods(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"'Hello World'.lower()", "hello world"},
		{"'hello'.upper()", "HELLO"},
		{"'  pad  '.strip()", "pad"},
		{"'a,b,c'.split(',')", NewList("a", "b", "c")},
		{"'-'.join(['a', 'b'])", "a-b"},
		{"'banana'.replace('a', 'o')", "bonono"},
		{"'banana'.count('an')", int64(2)},
		{"'banana'.startswith('ban')", true},
		{"'banana'.endswith('na')", true},
		{"'abc'.find('c')", int64(2)},
		{"'42'.isdigit()", true},
		{"'{} and {}'.format(1, 2)", "1 and 2"},
		{"'{name}!'.format(name='hi')", "hi!"},
		{"'7'.zfill(3)", "007"},
	}
	for _, tt := range tests {
		got := evalProgram(t, "out = "+tt.expr)
		if !Equal(got, tt.want) {
			t.Errorf("%s = %s, want %s", tt.expr, Repr(got), Repr(tt.want))
		}
	}
}

func TestComprehensions(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"[x * x for x in range(4)]", NewList(int64(0), int64(1), int64(4), int64(9))},
		{"[x for x in range(10) if x % 3 == 0]", NewList(int64(0), int64(3), int64(6), int64(9))},
		{"sorted([b + a for a in 'xy' for b in 'pq'])", NewList("px", "py", "qx", "qy")},
		{"{k: 1 for k in ['a', 'b']}", map[string]any{"a": int64(1), "b": int64(1)}},
		{"sum(x for x in [1, 2, 3])", int64(6)},
	}
	for _, tt := range tests {
		got := evalProgram(t, "out = "+tt.expr)
		if !Equal(got, tt.want) {
			t.Errorf("%s = %s, want %s", tt.expr, Repr(got), Repr(tt.want))
		}
	}
}

func TestBuiltinConversions(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"int('42')", int64(42)},
		{"int('-7')", int64(-7)},
		{"int(3.9)", int64(3)},
		{"float('2.5')", 2.5},
		{"str(123)", "123"},
		{"str(None)", "None"},
		{"str(True)", "True"},
		{"bool([])", false},
		{"bool('x')", true},
		{"list('abc')", NewList("a", "b", "c")},
		{"len(set([1, 2, 2, 3]))", int64(3)},
		{"isinstance(1, int)", true},
		{"isinstance(True, bool)", true},
		{"isinstance('x', int)", false},
	}
	for _, tt := range tests {
		got := evalProgram(t, "out = "+tt.expr)
		if !Equal(got, tt.want) {
			t.Errorf("%s = %s, want %s", tt.expr, Repr(got), Repr(tt.want))
		}
	}
}

func TestIntFromBadString(t *testing.T) {
	err := runErr(t, "x = int('12abc')")
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcValueError {
		t.Fatalf("got %v, want ValueError", err)
	}
}

func TestRaise(t *testing.T) {
	err := runErr(t, `raise ValueError("bad input")`)
	var exc *Error
	if !errors.As(err, &exc) {
		t.Fatalf("got %v, want *Error", err)
	}
	if exc.Kind != ExcValueError || exc.Message != "bad input" {
		t.Fatalf("got %v", exc)
	}
}

func TestRaiseBareConstructor(t *testing.T) {
	err := runErr(t, "raise KeyError")
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcKeyError {
		t.Fatalf("got %v, want KeyError", err)
	}
}

func TestUndefinedName(t *testing.T) {
	err := runErr(t, "x = nothere + 1")
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcNameError {
		t.Fatalf("got %v, want NameError", err)
	}
}

func TestKeyErrorOnMissingDictKey(t *testing.T) {
	err := runErr(t, `d = {}
x = d["missing"]`)
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcKeyError {
		t.Fatalf("got %v, want KeyError", err)
	}
}

func TestInfiniteLoopIsCancelled(t *testing.T) {
	prog, err := Parse("while True:\n    pass\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	in := New(ctx, nil)
	start := time.Now()
	err = in.Run(prog)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("cancellation took too long")
	}
}

type fakeHost struct {
	gets []string
}

func (f *fakeHost) TypeName() string { return "host" }

func (f *fakeHost) Attr(name string) (any, bool) {
	if name == "get" {
		return &Builtin{Name: "get", Fn: func(in *Interp, args []any, kwargs map[string]any) (any, error) {
			f.gets = append(f.gets, args[0].(string))
			return "value:" + args[0].(string), nil
		}}, true
	}
	return nil, false
}

func TestHostObjectBinding(t *testing.T) {
	prog, err := Parse(`out = host.get("path")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h := &fakeHost{}
	in := New(context.Background(), map[string]any{"host": h})
	if err := in.Run(prog); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, _ := in.Global("out")
	if v != "value:path" {
		t.Fatalf("got %v", v)
	}
	if len(h.gets) != 1 || h.gets[0] != "path" {
		t.Fatalf("host saw %v", h.gets)
	}
}

func TestHostObjectUnknownAttr(t *testing.T) {
	prog, err := Parse("x = host.nope()")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	in := New(context.Background(), map[string]any{"host": &fakeHost{}})
	err = in.Run(prog)
	var exc *Error
	if !errors.As(err, &exc) || exc.Kind != ExcAttribError {
		t.Fatalf("got %v, want AttributeError", err)
	}
}

func TestListAliasing(t *testing.T) {
	src := `
a = [1]
b = a
b.append(2)
out = a
`
	if got := evalProgram(t, src); !Equal(got, NewList(int64(1), int64(2))) {
		t.Fatalf("got %s", Repr(evalProgram(t, src)))
	}
}

func TestSliceSemantics(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"[0, 1, 2, 3, 4][1:3]", NewList(int64(1), int64(2))},
		{"[0, 1, 2, 3, 4][:2]", NewList(int64(0), int64(1))},
		{"[0, 1, 2, 3, 4][-2:]", NewList(int64(3), int64(4))},
		{"[0, 1, 2, 3, 4][::2]", NewList(int64(0), int64(2), int64(4))},
		{"[0, 1, 2][::-1]", NewList(int64(2), int64(1), int64(0))},
		{"'hello'[1:4]", "ell"},
		{"'hello'[-1]", "o"},
	}
	for _, tt := range tests {
		got := evalProgram(t, "out = "+tt.expr)
		if !Equal(got, tt.want) {
			t.Errorf("%s = %s, want %s", tt.expr, Repr(got), Repr(tt.want))
		}
	}
}

func TestToGoRoundTrip(t *testing.T) {
	src := `
out = {"ids": [1, 2, 3], "name": "x", "ok": True, "none": None, "ratio": 0.5}
`
	v := evalProgram(t, src)
	g, err := ToGo(v)
	if err != nil {
		t.Fatalf("ToGo: %v", err)
	}
	m, ok := g.(map[string]any)
	if !ok {
		t.Fatalf("got %T", g)
	}
	ids, ok := m["ids"].([]any)
	if !ok || len(ids) != 3 || ids[0] != int64(1) {
		t.Fatalf("ids = %v", m["ids"])
	}
	if m["ok"] != true || m["none"] != nil || m["ratio"] != 0.5 {
		t.Fatalf("m = %v", m)
	}
}
