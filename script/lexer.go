package script

import (
	"strconv"
	"strings"
)

// Lexer tokenizes sandbox source. It is indentation-aware: logical line
// structure is reported through NEWLINE, INDENT, and DEDENT tokens, and
// newlines inside brackets are implicit line joins.
type Lexer struct {
	src      string
	cur      int
	line     int
	col      int
	parens   int   // bracket nesting depth; >0 suppresses line structure
	indents  []int // indentation stack, always starts with 0
	toks     []Token
	lineHad  bool // current logical line emitted at least one real token
}

// NewLexer creates a lexer for src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1, indents: []int{0}}
}

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) advance() byte {
	b := l.src[l.cur]
	l.cur++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) err(msg string) error {
	return &SyntaxError{Line: l.line, Col: l.col, Msg: msg}
}

func (l *Lexer) add(tt TokenType, lexeme string) *Token {
	l.toks = append(l.toks, Token{Type: tt, Lexeme: lexeme, Line: l.line, Col: l.col})
	if tt != NEWLINE && tt != INDENT && tt != DEDENT {
		l.lineHad = true
	}
	return &l.toks[len(l.toks)-1]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }

// Scan tokenizes the entire source. The returned stream always ends with
// balanced DEDENTs and a single EOF.
func (l *Lexer) Scan() ([]Token, error) {
	atLineStart := true
	for !l.atEnd() {
		if atLineStart && l.parens == 0 {
			if err := l.handleIndentation(); err != nil {
				return nil, err
			}
			atLineStart = false
			if l.atEnd() {
				break
			}
		}

		b := l.peek()
		switch {
		case b == '\n':
			l.advance()
			if l.parens > 0 {
				continue // implicit line join inside brackets
			}
			if l.lineHad {
				l.add(NEWLINE, "\n")
				l.lineHad = false
			}
			atLineStart = true
		case b == ' ' || b == '\t' || b == '\r':
			l.advance()
		case b == '\\' && l.peekAt(1) == '\n':
			l.advance()
			l.advance()
		case b == '#':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		case b == '\'' || b == '"':
			if err := l.scanString(false); err != nil {
				return nil, err
			}
		case isDigit(b) || (b == '.' && isDigit(l.peekAt(1))):
			if err := l.scanNumber(); err != nil {
				return nil, err
			}
		case isAlpha(b):
			if err := l.scanName(); err != nil {
				return nil, err
			}
		default:
			if err := l.scanOperator(); err != nil {
				return nil, err
			}
		}
	}

	if l.lineHad {
		l.add(NEWLINE, "\n")
		l.lineHad = false
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.add(DEDENT, "")
	}
	l.add(EOF, "")
	return l.toks, nil
}

// handleIndentation measures leading whitespace on a fresh logical line and
// emits INDENT/DEDENT tokens. Blank and comment-only lines are skipped
// entirely so they never affect the indentation stack.
func (l *Lexer) handleIndentation() error {
	for {
		width := 0
		for !l.atEnd() {
			switch l.peek() {
			case ' ':
				width++
				l.advance()
			case '\t':
				width += 8 - width%8
				l.advance()
			default:
				goto measured
			}
		}
	measured:
		if l.atEnd() {
			return nil
		}
		if l.peek() == '\n' {
			l.advance()
			continue
		}
		if l.peek() == '\r' {
			l.advance()
			continue
		}
		if l.peek() == '#' {
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
			continue
		}

		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.add(INDENT, "")
		case width < top:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.add(DEDENT, "")
			}
			if l.indents[len(l.indents)-1] != width {
				return l.err("unindent does not match any outer indentation level")
			}
		}
		return nil
	}
}

// scanString scans a single-, double-, or triple-quoted string literal.
// raw disables escape processing (r"..." prefix).
func (l *Lexer) scanString(raw bool) error {
	quote := l.advance()
	triple := false
	if l.peek() == quote && l.peekAt(1) == quote {
		l.advance()
		l.advance()
		triple = true
	}

	var sb strings.Builder
	for {
		if l.atEnd() {
			return l.err("unterminated string literal")
		}
		b := l.peek()
		if !triple && b == '\n' {
			return l.err("unterminated string literal")
		}
		if b == quote {
			if !triple {
				l.advance()
				break
			}
			if l.peekAt(1) == quote && l.peekAt(2) == quote {
				l.advance()
				l.advance()
				l.advance()
				break
			}
			sb.WriteByte(l.advance())
			continue
		}
		if b == '\\' && !raw {
			l.advance()
			if l.atEnd() {
				return l.err("unterminated string literal")
			}
			e := l.advance()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			case '0':
				sb.WriteByte(0)
			case '\n':
				// line continuation inside a string
			case 'u':
				var hex [4]byte
				for i := 0; i < 4; i++ {
					if l.atEnd() {
						return l.err("truncated \\u escape")
					}
					hex[i] = l.advance()
				}
				code, err := strconv.ParseUint(string(hex[:]), 16, 32)
				if err != nil {
					return l.err("invalid \\u escape")
				}
				sb.WriteRune(rune(code))
			case 'x':
				var hex [2]byte
				for i := 0; i < 2; i++ {
					if l.atEnd() {
						return l.err("truncated \\x escape")
					}
					hex[i] = l.advance()
				}
				code, err := strconv.ParseUint(string(hex[:]), 16, 16)
				if err != nil {
					return l.err("invalid \\x escape")
				}
				sb.WriteByte(byte(code))
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
			continue
		}
		sb.WriteByte(l.advance())
	}

	tok := l.add(STRING, "")
	tok.Str = sb.String()
	return nil
}

func (l *Lexer) scanNumber() error {
	start := l.cur
	isFloat := false
	for !l.atEnd() && (isDigit(l.peek()) || l.peek() == '_') {
		l.advance()
	}
	if !l.atEnd() && l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for !l.atEnd() && (isDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	} else if !l.atEnd() && l.peek() == '.' && !isAlpha(l.peekAt(1)) && l.peekAt(1) != '.' {
		// trailing-dot float like "3."
		isFloat = true
		l.advance()
	}
	if !l.atEnd() && (l.peek() == 'e' || l.peek() == 'E') {
		n := l.peekAt(1)
		if isDigit(n) || ((n == '+' || n == '-') && isDigit(l.peekAt(2))) {
			isFloat = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			for !l.atEnd() && isDigit(l.peek()) {
				l.advance()
			}
		}
	}

	text := strings.ReplaceAll(l.src[start:l.cur], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return l.err("invalid number literal " + strconv.Quote(text))
		}
		tok := l.add(FLOAT, text)
		tok.Float = f
		return nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return l.err("invalid integer literal " + strconv.Quote(text))
	}
	tok := l.add(INT, text)
	tok.Int = i
	return nil
}

func (l *Lexer) scanName() error {
	start := l.cur
	for !l.atEnd() && isAlphaNum(l.peek()) {
		l.advance()
	}
	text := l.src[start:l.cur]

	// String prefixes: raw strings are supported, f- and b-strings are not.
	if !l.atEnd() && (l.peek() == '\'' || l.peek() == '"') {
		switch strings.ToLower(text) {
		case "r":
			return l.scanString(true)
		case "f", "b", "rb", "br", "fr", "rf":
			return l.err(text + "-string literals are not supported")
		}
	}

	if kw, ok := keywords[text]; ok {
		l.add(kw, text)
		return nil
	}
	l.add(NAME, text)
	return nil
}

func (l *Lexer) scanOperator() error {
	two := ""
	if l.cur+1 < len(l.src) {
		two = l.src[l.cur : l.cur+2]
	}
	three := ""
	if l.cur+2 < len(l.src) {
		three = l.src[l.cur : l.cur+3]
	}

	switch three {
	case "**=":
		l.advance()
		l.advance()
		l.advance()
		l.add(DSTAREQ, three)
		return nil
	case "//=":
		l.advance()
		l.advance()
		l.advance()
		l.add(DSLASHEQ, three)
		return nil
	}

	switch two {
	case "**":
		l.advance()
		l.advance()
		l.add(DSTAR, two)
		return nil
	case "//":
		l.advance()
		l.advance()
		l.add(DSLASH, two)
		return nil
	case "==":
		l.advance()
		l.advance()
		l.add(EQ, two)
		return nil
	case "!=":
		l.advance()
		l.advance()
		l.add(NE, two)
		return nil
	case "<=":
		l.advance()
		l.advance()
		l.add(LE, two)
		return nil
	case ">=":
		l.advance()
		l.advance()
		l.add(GE, two)
		return nil
	case "+=":
		l.advance()
		l.advance()
		l.add(PLUSEQ, two)
		return nil
	case "-=":
		l.advance()
		l.advance()
		l.add(MINUSEQ, two)
		return nil
	case "*=":
		l.advance()
		l.advance()
		l.add(STAREQ, two)
		return nil
	case "/=":
		l.advance()
		l.advance()
		l.add(SLASHEQ, two)
		return nil
	case "%=":
		l.advance()
		l.advance()
		l.add(PERCENTEQ, two)
		return nil
	}

	b := l.peek()
	var tt TokenType
	switch b {
	case '+':
		tt = PLUS
	case '-':
		tt = MINUS
	case '*':
		tt = STAR
	case '/':
		tt = SLASH
	case '%':
		tt = PERCENT
	case '=':
		tt = ASSIGN
	case '<':
		tt = LT
	case '>':
		tt = GT
	case '(':
		tt = LPAREN
		l.parens++
	case ')':
		tt = RPAREN
		l.parens--
	case '[':
		tt = LBRACKET
		l.parens++
	case ']':
		tt = RBRACKET
		l.parens--
	case '{':
		tt = LBRACE
		l.parens++
	case '}':
		tt = RBRACE
		l.parens--
	case ',':
		tt = COMMA
	case ':':
		tt = COLON
	case '.':
		tt = DOT
	case ';':
		tt = SEMI
	default:
		return l.err("unexpected character " + strconv.QuoteRune(rune(b)))
	}
	l.advance()
	l.add(tt, string(b))
	return nil
}
