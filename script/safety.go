package script

import "strings"

// deniedNames are identifiers a program may not reference at all. They cover
// code loading, attribute reflection, scope inspection, and the interactive
// builtins; everything on this list is an escape hatch in real Python, and
// rejecting the names keeps generated code portable to stricter runtimes.
var deniedNames = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"__import__": true,
	"open":       true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"hasattr":    true,
	"vars":       true,
	"globals":    true,
	"locals":     true,
	"dir":        true,
	"type":       true,
	"super":      true,
	"object":     true,
	"input":      true,
	"breakpoint": true,
	"exit":       true,
	"quit":       true,
	"help":       true,
	"memoryview": true,
	"bytearray":  true,
}

// Validate parses src and checks it against the sandbox allowlist. A nil
// return means the program is safe to hand to the interpreter. The error is
// a *SyntaxError when the source does not parse and a *Rejection when it
// parses but uses a forbidden construct or name.
func Validate(src string) error {
	prog, err := Parse(src)
	if err != nil {
		return err
	}
	return Check(prog)
}

// Check validates an already-parsed program. Parse+Check is equivalent to
// Validate but avoids re-parsing when the caller needs the tree anyway.
func Check(prog *Program) error {
	for _, s := range prog.Body {
		if err := checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func reject(n Node, construct string) error {
	p := n.Pos()
	return &Rejection{Line: p.Line, Col: p.Col, Construct: construct}
}

func checkStmt(s Stmt) error {
	switch st := s.(type) {
	case *Assign:
		for _, t := range st.Targets {
			if err := checkExpr(t); err != nil {
				return err
			}
		}
		return checkExpr(st.Value)
	case *AugAssign:
		if err := checkExpr(st.Target); err != nil {
			return err
		}
		return checkExpr(st.Value)
	case *AnnAssign:
		if err := checkExpr(st.Target); err != nil {
			return err
		}
		if st.Value != nil {
			return checkExpr(st.Value)
		}
		return nil
	case *ExprStmt:
		return checkExpr(st.X)
	case *If:
		if err := checkExpr(st.Cond); err != nil {
			return err
		}
		if err := checkBody(st.Body); err != nil {
			return err
		}
		return checkBody(st.Else)
	case *While:
		if err := checkExpr(st.Cond); err != nil {
			return err
		}
		return checkBody(st.Body)
	case *For:
		if err := checkExpr(st.Target); err != nil {
			return err
		}
		if err := checkExpr(st.Iter); err != nil {
			return err
		}
		return checkBody(st.Body)
	case *Break, *Continue, *Pass:
		return nil
	case *Return:
		if st.Value != nil {
			return checkExpr(st.Value)
		}
		return nil
	case *Raise:
		if st.Exc != nil {
			return checkExpr(st.Exc)
		}
		return nil

	case *FuncDef:
		return reject(st, "function definition")
	case *ClassDef:
		return reject(st, "class definition")
	case *Import:
		return reject(st, "import statement")
	case *Try:
		return reject(st, "try/except block")
	case *With:
		return reject(st, "with statement")
	case *Global:
		return reject(st, "global declaration")
	case *Nonlocal:
		return reject(st, "nonlocal declaration")
	case *Del:
		return reject(st, "del statement")
	case *Assert:
		return reject(st, "assert statement")
	}
	return reject(s, "unsupported statement")
}

func checkBody(body []Stmt) error {
	for _, s := range body {
		if err := checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func checkExpr(e Expr) error {
	switch ex := e.(type) {
	case *Name:
		if deniedNames[ex.Ident] {
			return reject(ex, "reference to "+ex.Ident)
		}
		return nil
	case *IntLit, *FloatLit, *StrLit, *BoolLit, *NoneLit:
		return nil
	case *ListLit:
		return checkExprs(ex.Elems)
	case *TupleLit:
		return checkExprs(ex.Elems)
	case *SetLit:
		return checkExprs(ex.Elems)
	case *DictLit:
		for _, it := range ex.Items {
			if err := checkExpr(it.Key); err != nil {
				return err
			}
			if err := checkExpr(it.Value); err != nil {
				return err
			}
		}
		return nil
	case *Comp:
		for _, cl := range ex.Clauses {
			if err := checkExpr(cl.Target); err != nil {
				return err
			}
			if err := checkExpr(cl.Iter); err != nil {
				return err
			}
			if err := checkExprs(cl.Ifs); err != nil {
				return err
			}
		}
		if ex.Elt != nil {
			if err := checkExpr(ex.Elt); err != nil {
				return err
			}
		}
		if ex.Key != nil {
			if err := checkExpr(ex.Key); err != nil {
				return err
			}
		}
		if ex.Value != nil {
			if err := checkExpr(ex.Value); err != nil {
				return err
			}
		}
		return nil
	case *Unary:
		return checkExpr(ex.X)
	case *Binary:
		if err := checkExpr(ex.X); err != nil {
			return err
		}
		return checkExpr(ex.Y)
	case *BoolOp:
		return checkExprs(ex.Values)
	case *Compare:
		if err := checkExpr(ex.X); err != nil {
			return err
		}
		return checkExprs(ex.Comparators)
	case *Cond:
		if err := checkExpr(ex.Cond); err != nil {
			return err
		}
		if err := checkExpr(ex.Then); err != nil {
			return err
		}
		return checkExpr(ex.Else)
	case *Call:
		if err := checkExpr(ex.Fn); err != nil {
			return err
		}
		if err := checkExprs(ex.Args); err != nil {
			return err
		}
		for _, kw := range ex.Kwargs {
			if err := checkExpr(kw.Value); err != nil {
				return err
			}
		}
		return nil
	case *Attr:
		// Underscore-prefixed attributes cover every dunder escape route
		// (__class__, __globals__, __subclasses__, ...).
		if strings.HasPrefix(ex.Name, "_") {
			return reject(ex, "access to attribute "+ex.Name)
		}
		if deniedNames[ex.Name] {
			return reject(ex, "access to attribute "+ex.Name)
		}
		return checkExpr(ex.X)
	case *Index:
		if err := checkExpr(ex.X); err != nil {
			return err
		}
		return checkExpr(ex.Idx)
	case *Slice:
		if err := checkExpr(ex.X); err != nil {
			return err
		}
		for _, b := range []Expr{ex.Low, ex.High, ex.Step} {
			if b != nil {
				if err := checkExpr(b); err != nil {
					return err
				}
			}
		}
		return nil

	case *Lambda:
		return reject(ex, "lambda expression")
	case *Yield:
		return reject(ex, "yield expression")
	case *Await:
		return reject(ex, "await expression")
	}
	return reject(e, "unsupported expression")
}

func checkExprs(es []Expr) error {
	for _, e := range es {
		if err := checkExpr(e); err != nil {
			return err
		}
	}
	return nil
}
