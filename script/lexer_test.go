package script

import "testing"

func scanTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	toks, err := NewLexer(src).Scan()
	if err != nil {
		t.Fatalf("scan %q: %v", src, err)
	}
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestLexSimpleLine(t *testing.T) {
	got := scanTypes(t, "x = 1 + 2\n")
	want := []TokenType{NAME, ASSIGN, INT, PLUS, INT, NEWLINE, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexIndentation(t *testing.T) {
	src := "if x:\n    y = 1\n    z = 2\nw = 3\n"
	got := scanTypes(t, src)
	want := []TokenType{
		KwIf, NAME, COLON, NEWLINE,
		INDENT, NAME, ASSIGN, INT, NEWLINE,
		NAME, ASSIGN, INT, NEWLINE, DEDENT,
		NAME, ASSIGN, INT, NEWLINE, EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexBlankAndCommentLinesIgnored(t *testing.T) {
	src := "x = 1\n\n# comment\n    \ny = 2\n"
	got := scanTypes(t, src)
	want := []TokenType{NAME, ASSIGN, INT, NEWLINE, NAME, ASSIGN, INT, NEWLINE, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
}

func TestLexImplicitLineJoin(t *testing.T) {
	src := "xs = [\n    1,\n    2,\n]\n"
	got := scanTypes(t, src)
	want := []TokenType{NAME, ASSIGN, LBRACKET, INT, COMMA, INT, COMMA, RBRACKET, NEWLINE, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
}

func TestLexStrings(t *testing.T) {
	toks, err := NewLexer(`s = "a\nb" + 'c' + """multi
line"""` + "\n").Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var strs []string
	for _, tok := range toks {
		if tok.Type == STRING {
			strs = append(strs, tok.Str)
		}
	}
	if len(strs) != 3 {
		t.Fatalf("got %d strings", len(strs))
	}
	if strs[0] != "a\nb" || strs[1] != "c" || strs[2] != "multi\nline" {
		t.Fatalf("got %q", strs)
	}
}

func TestLexNumbers(t *testing.T) {
	toks, err := NewLexer("a = 42\nb = 3.14\nc = 1e3\nd = 1_000\n").Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var ints []int64
	var floats []float64
	for _, tok := range toks {
		switch tok.Type {
		case INT:
			ints = append(ints, tok.Int)
		case FLOAT:
			floats = append(floats, tok.Float)
		}
	}
	if len(ints) != 2 || ints[0] != 42 || ints[1] != 1000 {
		t.Fatalf("ints = %v", ints)
	}
	if len(floats) != 2 || floats[0] != 3.14 || floats[1] != 1000 {
		t.Fatalf("floats = %v", floats)
	}
}

func TestLexFStringRejected(t *testing.T) {
	_, err := NewLexer(`x = f"{a}"` + "\n").Scan()
	if err == nil {
		t.Fatal("f-string was accepted")
	}
}

func TestLexBadDedent(t *testing.T) {
	_, err := NewLexer("if x:\n        a = 1\n    b = 2\n").Scan()
	if err == nil {
		t.Fatal("mismatched dedent was accepted")
	}
}
