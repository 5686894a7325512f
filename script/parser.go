package script

// Program is a parsed sandbox program.
type Program struct {
	Body []Stmt
}

// Parse tokenizes and parses src into a Program. The grammar is the
// restricted Python subset described in the package comment; constructs the
// sandbox forbids (def, class, import, try, with, lambda, ...) still parse
// into their denied node types so the validator can reject them by name.
func Parse(src string) (*Program, error) {
	toks, err := NewLexer(src).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	body, err := p.program()
	if err != nil {
		return nil, err
	}
	return &Program{Body: body}, nil
}

type parser struct {
	toks []Token
	i    int
}

func (p *parser) cur() Token  { return p.toks[p.i] }
func (p *parser) peek() Token {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) at(tt TokenType) bool { return p.cur().Type == tt }

func (p *parser) accept(tt TokenType) bool {
	if p.at(tt) {
		p.i++
		return true
	}
	return false
}

func (p *parser) advance() Token {
	t := p.cur()
	if t.Type != EOF {
		p.i++
	}
	return t
}

func (p *parser) need(tt TokenType, msg string) (Token, error) {
	if !p.at(tt) {
		return Token{}, p.errHere(msg)
	}
	return p.advance(), nil
}

func (p *parser) errHere(msg string) error {
	t := p.cur()
	return &SyntaxError{Line: t.Line, Col: t.Col, Msg: msg}
}

func (p *parser) posHere() pos {
	t := p.cur()
	return pos{Position{Line: t.Line, Col: t.Col}}
}

// startsExpr reports whether the current token can begin an expression.
func (p *parser) startsExpr() bool {
	switch p.cur().Type {
	case NAME, INT, FLOAT, STRING, KwNone, KwTrue, KwFalse, KwNot, KwLambda,
		KwAwait, KwYield, LPAREN, LBRACKET, LBRACE, MINUS, PLUS:
		return true
	}
	return false
}

func (p *parser) program() ([]Stmt, error) {
	var body []Stmt
	for !p.at(EOF) {
		if p.accept(NEWLINE) {
			continue
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	return body, nil
}

// statement parses one logical statement line or compound statement. Simple
// statement lines may carry several small statements separated by ';'.
func (p *parser) statement() ([]Stmt, error) {
	switch p.cur().Type {
	case KwIf:
		s, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil
	case KwWhile:
		s, err := p.whileStmt()
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil
	case KwFor:
		s, err := p.forStmt()
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil
	case KwDef, KwClass, KwTry, KwWith, KwAsync:
		s := p.deniedCompound()
		return []Stmt{s}, nil
	}
	return p.simpleStmtLine()
}

func (p *parser) simpleStmtLine() ([]Stmt, error) {
	var stmts []Stmt
	for {
		s, err := p.smallStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.accept(SEMI) {
			if p.at(NEWLINE) || p.at(EOF) {
				break
			}
			continue
		}
		break
	}
	if !p.accept(NEWLINE) && !p.at(EOF) && !p.at(DEDENT) {
		return nil, p.errHere("expected end of statement")
	}
	return stmts, nil
}

func (p *parser) smallStmt() (Stmt, error) {
	at := p.posHere()
	switch p.cur().Type {
	case KwPass:
		p.advance()
		return &Pass{at}, nil
	case KwBreak:
		p.advance()
		return &Break{at}, nil
	case KwContinue:
		p.advance()
		return &Continue{at}, nil
	case KwReturn:
		p.advance()
		var val Expr
		if p.startsExpr() {
			v, err := p.testlist()
			if err != nil {
				return nil, err
			}
			val = v
		}
		return &Return{pos: at, Value: val}, nil
	case KwRaise:
		p.advance()
		var exc Expr
		if p.startsExpr() {
			v, err := p.expr()
			if err != nil {
				return nil, err
			}
			exc = v
			if p.accept(KwFrom) {
				if _, err := p.expr(); err != nil {
					return nil, err
				}
			}
		}
		return &Raise{pos: at, Exc: exc}, nil
	case KwGlobal:
		p.skipToLineEnd()
		return &Global{at}, nil
	case KwNonlocal:
		p.skipToLineEnd()
		return &Nonlocal{at}, nil
	case KwDel:
		p.skipToLineEnd()
		return &Del{at}, nil
	case KwAssert:
		p.skipToLineEnd()
		return &Assert{at}, nil
	case KwImport, KwFrom:
		p.skipToLineEnd()
		return &Import{at}, nil
	}
	return p.exprOrAssign()
}

// skipToLineEnd consumes tokens up to (not including) the statement
// terminator. Used for denied statements whose internals don't matter.
func (p *parser) skipToLineEnd() {
	for !p.at(NEWLINE) && !p.at(SEMI) && !p.at(EOF) && !p.at(DEDENT) {
		p.advance()
	}
}

func (p *parser) exprOrAssign() (Stmt, error) {
	at := p.posHere()
	first, err := p.testlist()
	if err != nil {
		return nil, err
	}

	switch p.cur().Type {
	case COLON:
		p.advance()
		ann, err := p.expr()
		if err != nil {
			return nil, err
		}
		var val Expr
		if p.accept(ASSIGN) {
			val, err = p.testlist()
			if err != nil {
				return nil, err
			}
		}
		return &AnnAssign{pos: at, Target: first, Annotation: ann, Value: val}, nil
	case PLUSEQ, MINUSEQ, STAREQ, SLASHEQ, DSLASHEQ, PERCENTEQ, DSTAREQ:
		op := augOps[p.advance().Type]
		val, err := p.testlist()
		if err != nil {
			return nil, err
		}
		return &AugAssign{pos: at, Target: first, Op: op, Value: val}, nil
	case ASSIGN:
		targets := []Expr{first}
		var value Expr
		for p.accept(ASSIGN) {
			v, err := p.testlist()
			if err != nil {
				return nil, err
			}
			if value != nil {
				targets = append(targets, value)
			}
			value = v
		}
		return &Assign{pos: at, Targets: targets, Value: value}, nil
	}
	return &ExprStmt{pos: at, X: first}, nil
}

var augOps = map[TokenType]string{
	PLUSEQ:    "+",
	MINUSEQ:   "-",
	STAREQ:    "*",
	SLASHEQ:   "/",
	DSLASHEQ:  "//",
	PERCENTEQ: "%",
	DSTAREQ:   "**",
}

// suite parses ":" followed by either an inline simple statement line or an
// indented block.
func (p *parser) suite() ([]Stmt, error) {
	if _, err := p.need(COLON, "expected ':'"); err != nil {
		return nil, err
	}
	if p.accept(NEWLINE) {
		if _, err := p.need(INDENT, "expected an indented block"); err != nil {
			return nil, err
		}
		var body []Stmt
		for !p.at(DEDENT) && !p.at(EOF) {
			if p.accept(NEWLINE) {
				continue
			}
			stmts, err := p.statement()
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
		}
		p.accept(DEDENT)
		return body, nil
	}
	return p.simpleStmtLine()
}

// ifStmt parses if/elif/else; the leading token may be KwIf or KwElif.
func (p *parser) ifStmt() (Stmt, error) {
	at := p.posHere()
	p.advance() // "if" or "elif"
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	var els []Stmt
	if p.at(KwElif) {
		chained, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		els = []Stmt{chained}
	} else if p.accept(KwElse) {
		els, err = p.suite()
		if err != nil {
			return nil, err
		}
	}
	return &If{pos: at, Cond: cond, Body: body, Else: els}, nil
}

func (p *parser) whileStmt() (Stmt, error) {
	at := p.posHere()
	p.advance()
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	if p.at(KwElse) {
		return nil, p.errHere("loop else clauses are not supported")
	}
	return &While{pos: at, Cond: cond, Body: body}, nil
}

func (p *parser) forStmt() (Stmt, error) {
	at := p.posHere()
	p.advance()
	target, err := p.targetList()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(KwIn, "expected 'in'"); err != nil {
		return nil, err
	}
	iter, err := p.testlist()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	if p.at(KwElse) {
		return nil, p.errHere("loop else clauses are not supported")
	}
	return &For{pos: at, Target: target, Iter: iter, Body: body}, nil
}

// deniedCompound consumes a compound statement the sandbox forbids (def,
// class, try, with, async ...) without analyzing its internals, producing
// the matching denied node for the validator.
func (p *parser) deniedCompound() Stmt {
	at := p.posHere()
	lead := p.advance()
	if lead.Type == KwAsync {
		lead = p.advance() // async def / async for / async with
	}

	var node Stmt
	switch lead.Type {
	case KwDef:
		name := ""
		if p.at(NAME) {
			name = p.advance().Lexeme
		}
		node = &FuncDef{pos: at, Name: name}
	case KwClass:
		name := ""
		if p.at(NAME) {
			name = p.advance().Lexeme
		}
		node = &ClassDef{pos: at, Name: name}
	case KwTry:
		node = &Try{at}
	case KwWith:
		node = &With{at}
	default:
		node = &FuncDef{pos: at}
	}

	p.skipLineAndBlock()
	if _, ok := node.(*Try); ok {
		for p.at(KwExcept) || p.at(KwFinally) || p.at(KwElse) {
			p.skipLineAndBlock()
		}
	}
	return node
}

// skipLineAndBlock consumes the remainder of the current logical line and,
// if an indented block follows, the whole block.
func (p *parser) skipLineAndBlock() {
	for !p.at(NEWLINE) && !p.at(EOF) {
		p.advance()
	}
	p.accept(NEWLINE)
	if !p.at(INDENT) {
		return
	}
	depth := 0
	for !p.at(EOF) {
		switch p.cur().Type {
		case INDENT:
			depth++
		case DEDENT:
			depth--
		}
		p.advance()
		if depth == 0 {
			return
		}
	}
}

// --- Expressions ---

// testlist parses expr (',' expr)* with an optional trailing comma; a comma
// produces a tuple.
func (p *parser) testlist() (Expr, error) {
	at := p.posHere()
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if !p.at(COMMA) {
		return e, nil
	}
	elems := []Expr{e}
	for p.accept(COMMA) {
		if !p.startsExpr() {
			break
		}
		next, err := p.expr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &TupleLit{pos: at, Elems: elems}, nil
}

// targetList parses an assignment/loop target: postfix expressions joined by
// commas. Operators are excluded so "for x in xs" does not parse "x in xs"
// as a membership test.
func (p *parser) targetList() (Expr, error) {
	at := p.posHere()
	t, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if !p.at(COMMA) {
		return t, nil
	}
	elems := []Expr{t}
	for p.accept(COMMA) {
		if !p.startsExpr() {
			break
		}
		next, err := p.postfix()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &TupleLit{pos: at, Elems: elems}, nil
}

func (p *parser) expr() (Expr, error) {
	if p.at(KwLambda) {
		return p.deniedLambda()
	}
	at := p.posHere()
	e, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if p.accept(KwIf) {
		cond, err := p.orTest()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(KwElse, "expected 'else' in conditional expression"); err != nil {
			return nil, err
		}
		els, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Cond{pos: at, Cond: cond, Then: e, Else: els}, nil
	}
	return e, nil
}

func (p *parser) deniedLambda() (Expr, error) {
	at := p.posHere()
	p.advance()
	for !p.at(COLON) && !p.at(NEWLINE) && !p.at(EOF) {
		p.advance()
	}
	if p.accept(COLON) {
		if _, err := p.expr(); err != nil {
			return nil, err
		}
	}
	return &Lambda{at}, nil
}

func (p *parser) orTest() (Expr, error) {
	at := p.posHere()
	e, err := p.andTest()
	if err != nil {
		return nil, err
	}
	if !p.at(KwOr) {
		return e, nil
	}
	values := []Expr{e}
	for p.accept(KwOr) {
		next, err := p.andTest()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	return &BoolOp{pos: at, Op: "or", Values: values}, nil
}

func (p *parser) andTest() (Expr, error) {
	at := p.posHere()
	e, err := p.notTest()
	if err != nil {
		return nil, err
	}
	if !p.at(KwAnd) {
		return e, nil
	}
	values := []Expr{e}
	for p.accept(KwAnd) {
		next, err := p.notTest()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	return &BoolOp{pos: at, Op: "and", Values: values}, nil
}

func (p *parser) notTest() (Expr, error) {
	if p.at(KwNot) && p.peek().Type != KwIn {
		at := p.posHere()
		p.advance()
		x, err := p.notTest()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: at, Op: "not", X: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	at := p.posHere()
	e, err := p.arith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comps []Expr
	for {
		var op string
		switch p.cur().Type {
		case EQ:
			op = "=="
		case NE:
			op = "!="
		case LT:
			op = "<"
		case LE:
			op = "<="
		case GT:
			op = ">"
		case GE:
			op = ">="
		case KwIn:
			op = "in"
		case KwNot:
			if p.peek().Type != KwIn {
				return nil, p.errHere("unexpected 'not'")
			}
			p.advance()
			op = "not in"
		case KwIs:
			op = "is"
		default:
			if ops == nil {
				return e, nil
			}
			return &Compare{pos: at, X: e, Ops: ops, Comparators: comps}, nil
		}
		p.advance()
		if op == "is" && p.accept(KwNot) {
			op = "is not"
		}
		rhs, err := p.arith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comps = append(comps, rhs)
	}
}

func (p *parser) arith() (Expr, error) {
	e, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.at(PLUS) || p.at(MINUS) {
		at := p.posHere()
		op := p.advance().Lexeme
		rhs, err := p.term()
		if err != nil {
			return nil, err
		}
		e = &Binary{pos: at, Op: op, X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) term() (Expr, error) {
	e, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.at(STAR) || p.at(SLASH) || p.at(DSLASH) || p.at(PERCENT) {
		at := p.posHere()
		op := p.advance().Lexeme
		rhs, err := p.factor()
		if err != nil {
			return nil, err
		}
		e = &Binary{pos: at, Op: op, X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) factor() (Expr, error) {
	if p.at(MINUS) || p.at(PLUS) {
		at := p.posHere()
		op := p.advance().Lexeme
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: at, Op: op, X: x}, nil
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	e, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.at(DSTAR) {
		at := p.posHere()
		p.advance()
		rhs, err := p.factor() // right-associative, binds tighter than unary on the left
		if err != nil {
			return nil, err
		}
		return &Binary{pos: at, Op: "**", X: e, Y: rhs}, nil
	}
	return e, nil
}

func (p *parser) postfix() (Expr, error) {
	e, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case LPAREN:
			e, err = p.callTrailer(e)
		case LBRACKET:
			e, err = p.subscriptTrailer(e)
		case DOT:
			at := p.posHere()
			p.advance()
			name, nerr := p.need(NAME, "expected attribute name after '.'")
			if nerr != nil {
				return nil, nerr
			}
			e = &Attr{pos: at, X: e, Name: name.Lexeme}
		default:
			return e, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) callTrailer(fn Expr) (Expr, error) {
	at := p.posHere()
	p.advance() // "("
	call := &Call{pos: at, Fn: fn}
	for !p.at(RPAREN) {
		if p.at(NAME) && p.peek().Type == ASSIGN {
			name := p.advance().Lexeme
			p.advance() // "="
			val, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, Kwarg{Name: name, Value: val})
		} else {
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			// Sole-argument generator expression: f(x for x in xs).
			if len(call.Args) == 0 && len(call.Kwargs) == 0 && p.at(KwFor) {
				comp, err := p.compRest(GenComp, arg, nil, nil, at)
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, comp)
				break
			}
			call.Args = append(call.Args, arg)
		}
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.need(RPAREN, "expected ')'"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) subscriptTrailer(x Expr) (Expr, error) {
	at := p.posHere()
	p.advance() // "["
	var low, high, step Expr
	var err error
	isSlice := false
	if !p.at(COLON) {
		low, err = p.expr()
		if err != nil {
			return nil, err
		}
	}
	if p.accept(COLON) {
		isSlice = true
		if !p.at(COLON) && !p.at(RBRACKET) {
			high, err = p.expr()
			if err != nil {
				return nil, err
			}
		}
		if p.accept(COLON) {
			if !p.at(RBRACKET) {
				step, err = p.expr()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if _, err := p.need(RBRACKET, "expected ']'"); err != nil {
		return nil, err
	}
	if isSlice {
		return &Slice{pos: at, X: x, Low: low, High: high, Step: step}, nil
	}
	if low == nil {
		return nil, p.errHere("empty subscript")
	}
	return &Index{pos: at, X: x, Idx: low}, nil
}

func (p *parser) atom() (Expr, error) {
	at := p.posHere()
	switch p.cur().Type {
	case NAME:
		return &Name{pos: at, Ident: p.advance().Lexeme}, nil
	case INT:
		return &IntLit{pos: at, Value: p.advance().Int}, nil
	case FLOAT:
		return &FloatLit{pos: at, Value: p.advance().Float}, nil
	case STRING:
		s := p.advance().Str
		for p.at(STRING) { // adjacent literal concatenation
			s += p.advance().Str
		}
		return &StrLit{pos: at, Value: s}, nil
	case KwTrue:
		p.advance()
		return &BoolLit{pos: at, Value: true}, nil
	case KwFalse:
		p.advance()
		return &BoolLit{pos: at, Value: false}, nil
	case KwNone:
		p.advance()
		return &NoneLit{at}, nil
	case KwAwait:
		p.advance()
		if p.startsExpr() {
			if _, err := p.expr(); err != nil {
				return nil, err
			}
		}
		return &Await{at}, nil
	case KwYield:
		p.advance()
		if p.startsExpr() {
			if _, err := p.testlist(); err != nil {
				return nil, err
			}
		}
		return &Yield{at}, nil
	case LPAREN:
		return p.parenAtom(at)
	case LBRACKET:
		return p.listAtom(at)
	case LBRACE:
		return p.braceAtom(at)
	case KwLambda:
		return p.deniedLambda()
	}
	return nil, p.errHere("unexpected token " + p.cur().Lexeme)
}

func (p *parser) parenAtom(at pos) (Expr, error) {
	p.advance() // "("
	if p.accept(RPAREN) {
		return &TupleLit{pos: at}, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.at(KwFor) {
		comp, err := p.compRest(GenComp, e, nil, nil, at)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	if p.at(COMMA) {
		elems := []Expr{e}
		for p.accept(COMMA) {
			if p.at(RPAREN) {
				break
			}
			next, err := p.expr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, next)
		}
		if _, err := p.need(RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return &TupleLit{pos: at, Elems: elems}, nil
	}
	if _, err := p.need(RPAREN, "expected ')'"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) listAtom(at pos) (Expr, error) {
	p.advance() // "["
	if p.accept(RBRACKET) {
		return &ListLit{pos: at}, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.at(KwFor) {
		comp, err := p.compRest(ListComp, e, nil, nil, at)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RBRACKET, "expected ']'"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	elems := []Expr{e}
	for p.accept(COMMA) {
		if p.at(RBRACKET) {
			break
		}
		next, err := p.expr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if _, err := p.need(RBRACKET, "expected ']'"); err != nil {
		return nil, err
	}
	return &ListLit{pos: at, Elems: elems}, nil
}

func (p *parser) braceAtom(at pos) (Expr, error) {
	p.advance() // "{"
	if p.accept(RBRACE) {
		return &DictLit{pos: at}, nil
	}
	first, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.accept(COLON) {
		val, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.at(KwFor) {
			comp, err := p.compRest(DictComp, nil, first, val, at)
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RBRACE, "expected '}'"); err != nil {
				return nil, err
			}
			return comp, nil
		}
		items := []DictItem{{Key: first, Value: val}}
		for p.accept(COMMA) {
			if p.at(RBRACE) {
				break
			}
			k, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(COLON, "expected ':' in dict literal"); err != nil {
				return nil, err
			}
			v, err := p.expr()
			if err != nil {
				return nil, err
			}
			items = append(items, DictItem{Key: k, Value: v})
		}
		if _, err := p.need(RBRACE, "expected '}'"); err != nil {
			return nil, err
		}
		return &DictLit{pos: at, Items: items}, nil
	}
	if p.at(KwFor) {
		comp, err := p.compRest(SetComp, first, nil, nil, at)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RBRACE, "expected '}'"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	elems := []Expr{first}
	for p.accept(COMMA) {
		if p.at(RBRACE) {
			break
		}
		next, err := p.expr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if _, err := p.need(RBRACE, "expected '}'"); err != nil {
		return nil, err
	}
	return &SetLit{pos: at, Elems: elems}, nil
}

// compRest parses the "for ... in ... [if ...]" clause chain of a
// comprehension whose leading element expression(s) were already consumed.
func (p *parser) compRest(kind CompKind, elt, key, value Expr, at pos) (Expr, error) {
	comp := &Comp{pos: at, Kind: kind, Elt: elt, Key: key, Value: value}
	for p.accept(KwFor) {
		target, err := p.targetList()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(KwIn, "expected 'in' in comprehension"); err != nil {
			return nil, err
		}
		iter, err := p.orTest()
		if err != nil {
			return nil, err
		}
		clause := CompClause{Target: target, Iter: iter}
		for p.accept(KwIf) {
			cond, err := p.orTest()
			if err != nil {
				return nil, err
			}
			clause.Ifs = append(clause.Ifs, cond)
		}
		comp.Clauses = append(comp.Clauses, clause)
	}
	return comp, nil
}
