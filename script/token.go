// Package script implements the sandbox language: a restricted Python-like
// grammar with a lexer, parser, safety validator, and tree-walking
// interpreter. Programs in this language are generated by an LLM planner and
// must never be able to reach the filesystem, the network, the process, or
// Go reflection; the validator (safety.go) and the curated builtin set
// (builtins.go) together enforce that.
package script

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	NEWLINE
	INDENT
	DEDENT

	// Literals & identifiers
	NAME
	INT
	FLOAT
	STRING

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LBRACKET // "["
	RBRACKET // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	COMMA    // ","
	COLON    // ":"
	DOT      // "."
	SEMI     // ";"

	// Operators
	PLUS       // "+"
	MINUS      // "-"
	STAR       // "*"
	SLASH      // "/"
	DSLASH     // "//"
	PERCENT    // "%"
	DSTAR      // "**"
	ASSIGN     // "="
	PLUSEQ     // "+="
	MINUSEQ    // "-="
	STAREQ     // "*="
	SLASHEQ    // "/="
	DSLASHEQ   // "//="
	PERCENTEQ  // "%="
	DSTAREQ    // "**="
	EQ         // "=="
	NE         // "!="
	LT         // "<"
	LE         // "<="
	GT         // ">"
	GE         // ">="

	// Keywords
	KwAnd
	KwOr
	KwNot
	KwIf
	KwElif
	KwElse
	KwFor
	KwWhile
	KwBreak
	KwContinue
	KwPass
	KwReturn
	KwRaise
	KwIn
	KwIs
	KwNone
	KwTrue
	KwFalse

	// Keywords for constructs the grammar recognizes only so the safety
	// validator can name what it rejects.
	KwDef
	KwClass
	KwImport
	KwFrom
	KwTry
	KwExcept
	KwFinally
	KwWith
	KwAs
	KwLambda
	KwGlobal
	KwNonlocal
	KwDel
	KwAssert
	KwYield
	KwAsync
	KwAwait
)

// Token is a lexical token with optional literal value.
type Token struct {
	Type   TokenType
	Lexeme string
	Int    int64   // for INT
	Float  float64 // for FLOAT
	Str    string  // decoded value for STRING
	Line   int
	Col    int
}

var keywords = map[string]TokenType{
	"and":      KwAnd,
	"or":       KwOr,
	"not":      KwNot,
	"if":       KwIf,
	"elif":     KwElif,
	"else":     KwElse,
	"for":      KwFor,
	"while":    KwWhile,
	"break":    KwBreak,
	"continue": KwContinue,
	"pass":     KwPass,
	"return":   KwReturn,
	"raise":    KwRaise,
	"in":       KwIn,
	"is":       KwIs,
	"None":     KwNone,
	"True":     KwTrue,
	"False":    KwFalse,
	"def":      KwDef,
	"class":    KwClass,
	"import":   KwImport,
	"from":     KwFrom,
	"try":      KwTry,
	"except":   KwExcept,
	"finally":  KwFinally,
	"with":     KwWith,
	"as":       KwAs,
	"lambda":   KwLambda,
	"global":   KwGlobal,
	"nonlocal": KwNonlocal,
	"del":      KwDel,
	"assert":   KwAssert,
	"yield":    KwYield,
	"async":    KwAsync,
	"await":    KwAwait,
}

// SyntaxError is a lexing or parsing failure with source position.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, col %d: %s", e.Line, e.Col, e.Msg)
}
