package script

import "testing"

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(prog.Body) != 1 {
		t.Fatalf("parse %q: %d statements, want 1", src, len(prog.Body))
	}
	return prog.Body[0]
}

func TestParseAssignForms(t *testing.T) {
	if s, ok := parseOne(t, "x = 1").(*Assign); !ok || len(s.Targets) != 1 {
		t.Fatalf("simple assign: %#v", s)
	}
	if s, ok := parseOne(t, "a = b = 2").(*Assign); !ok || len(s.Targets) != 2 {
		t.Fatalf("chained assign: %#v", s)
	}
	if s, ok := parseOne(t, "x += 1").(*AugAssign); !ok || s.Op != "+" {
		t.Fatalf("aug assign: %#v", s)
	}
	if s, ok := parseOne(t, "a, b = pair").(*Assign); !ok {
		t.Fatalf("tuple assign: %#v", s)
	} else if _, ok := s.Targets[0].(*TupleLit); !ok {
		t.Fatalf("tuple target: %#v", s.Targets[0])
	}
	if s, ok := parseOne(t, "n: int = 5").(*AnnAssign); !ok || s.Value == nil {
		t.Fatalf("annotated assign: %#v", s)
	}
}

func TestParsePrecedence(t *testing.T) {
	s := parseOne(t, "x = 1 + 2 * 3").(*Assign)
	add, ok := s.Value.(*Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("top = %#v", s.Value)
	}
	mul, ok := add.Y.(*Binary)
	if !ok || mul.Op != "*" {
		t.Fatalf("rhs = %#v", add.Y)
	}
}

func TestParsePowerRightAssoc(t *testing.T) {
	s := parseOne(t, "x = 2 ** 3 ** 2").(*Assign)
	outer := s.Value.(*Binary)
	if outer.Op != "**" {
		t.Fatalf("outer = %#v", outer)
	}
	inner, ok := outer.Y.(*Binary)
	if !ok || inner.Op != "**" {
		t.Fatalf("not right-associative: %#v", outer.Y)
	}
}

func TestParseCallKwargs(t *testing.T) {
	s := parseOne(t, "r = make_response(201, body, headers={'Location': loc})").(*Assign)
	call := s.Value.(*Call)
	if len(call.Args) != 2 {
		t.Fatalf("args = %d", len(call.Args))
	}
	if len(call.Kwargs) != 1 || call.Kwargs[0].Name != "headers" {
		t.Fatalf("kwargs = %#v", call.Kwargs)
	}
}

func TestParseTrailerChain(t *testing.T) {
	s := parseOne(t, `v = ctx.get("query")["limit"][0]`).(*Assign)
	idx, ok := s.Value.(*Index)
	if !ok {
		t.Fatalf("outer = %#v", s.Value)
	}
	inner, ok := idx.X.(*Index)
	if !ok {
		t.Fatalf("middle = %#v", idx.X)
	}
	call, ok := inner.X.(*Call)
	if !ok {
		t.Fatalf("call = %#v", inner.X)
	}
	attr, ok := call.Fn.(*Attr)
	if !ok || attr.Name != "get" {
		t.Fatalf("attr = %#v", call.Fn)
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := `
if a:
    x = 1
elif b:
    x = 2
else:
    x = 3
`
	s := parseOne(t, src).(*If)
	if len(s.Body) != 1 || len(s.Else) != 1 {
		t.Fatalf("if = %#v", s)
	}
	chained, ok := s.Else[0].(*If)
	if !ok || len(chained.Else) != 1 {
		t.Fatalf("elif chain = %#v", s.Else[0])
	}
}

func TestParseForTarget(t *testing.T) {
	src := "for k, v in d.items():\n    pass\n"
	s := parseOne(t, src).(*For)
	if _, ok := s.Target.(*TupleLit); !ok {
		t.Fatalf("target = %#v", s.Target)
	}
	if _, ok := s.Iter.(*Call); !ok {
		t.Fatalf("iter = %#v", s.Iter)
	}
}

func TestParseInlineSuite(t *testing.T) {
	s := parseOne(t, "if x: y = 1\n").(*If)
	if len(s.Body) != 1 {
		t.Fatalf("body = %#v", s.Body)
	}
}

func TestParseSemicolons(t *testing.T) {
	prog, err := Parse("a = 1; b = 2; c = 3\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Body) != 3 {
		t.Fatalf("got %d statements", len(prog.Body))
	}
}

func TestParseComprehension(t *testing.T) {
	s := parseOne(t, "xs = [r['id'] for r in rows if r.get('ok')]").(*Assign)
	comp, ok := s.Value.(*Comp)
	if !ok || comp.Kind != ListComp {
		t.Fatalf("value = %#v", s.Value)
	}
	if len(comp.Clauses) != 1 || len(comp.Clauses[0].Ifs) != 1 {
		t.Fatalf("clauses = %#v", comp.Clauses)
	}
}

func TestParseDeniedBlocksConsumeBody(t *testing.T) {
	src := `
def helper(a, b):
    c = a + b
    return c
x = 1
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Body) != 2 {
		t.Fatalf("got %d statements", len(prog.Body))
	}
	fn, ok := prog.Body[0].(*FuncDef)
	if !ok || fn.Name != "helper" {
		t.Fatalf("first = %#v", prog.Body[0])
	}
	if _, ok := prog.Body[1].(*Assign); !ok {
		t.Fatalf("second = %#v", prog.Body[1])
	}
}

func TestParseTryConsumesHandlers(t *testing.T) {
	src := `
try:
    x = 1
except ValueError:
    x = 2
finally:
    x = 3
y = 4
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Body) != 2 {
		t.Fatalf("got %d statements: %#v", len(prog.Body), prog.Body)
	}
	if _, ok := prog.Body[0].(*Try); !ok {
		t.Fatalf("first = %#v", prog.Body[0])
	}
}

func TestParseConditionalExpr(t *testing.T) {
	s := parseOne(t, "x = 'a' if cond else 'b'").(*Assign)
	if _, ok := s.Value.(*Cond); !ok {
		t.Fatalf("value = %#v", s.Value)
	}
}
