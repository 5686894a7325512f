package script

// Position is a source location (1-based).
type Position struct {
	Line int
	Col  int
}

// Node is any syntax tree node.
type Node interface {
	Pos() Position
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

type pos struct{ P Position }

func (p pos) Pos() Position { return p.P }

// --- Statements ---

// Assign is one or more chained targets bound to a value: a = b = expr.
type Assign struct {
	pos
	Targets []Expr
	Value   Expr
}

// AugAssign is an augmented assignment: target op= value.
type AugAssign struct {
	pos
	Target Expr
	Op     string // "+", "-", "*", "/", "//", "%", "**"
	Value  Expr
}

// AnnAssign is an annotated assignment: target: annotation = value.
// The annotation is parsed but carries no runtime meaning.
type AnnAssign struct {
	pos
	Target     Expr
	Annotation Expr
	Value      Expr // may be nil
}

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	pos
	X Expr
}

// If is a conditional with an optional else branch; elif chains nest as a
// single-statement else body.
type If struct {
	pos
	Cond Expr
	Body []Stmt
	Else []Stmt
}

// While is a condition-guarded loop.
type While struct {
	pos
	Cond Expr
	Body []Stmt
}

// For iterates Target over Iter.
type For struct {
	pos
	Target Expr
	Iter   Expr
	Body   []Stmt
}

// Break exits the innermost loop.
type Break struct{ pos }

// Continue jumps to the next iteration of the innermost loop.
type Continue struct{ pos }

// Pass does nothing.
type Pass struct{ pos }

// Return ends program execution, optionally with a value.
type Return struct {
	pos
	Value Expr // may be nil
}

// Raise raises an exception value.
type Raise struct {
	pos
	Exc Expr // may be nil (bare raise)
}

// --- Denied statements ---
//
// These constructs are recognized by the parser purely so the safety
// validator can reject them by name instead of reporting a bare syntax
// error. They are never executed; the interpreter treats reaching one as an
// internal fault.

// FuncDef is a function definition ("def").
type FuncDef struct {
	pos
	Name string
}

// ClassDef is a class definition.
type ClassDef struct {
	pos
	Name string
}

// Import is an import or from-import statement.
type Import struct{ pos }

// Try is a try/except/finally block.
type Try struct{ pos }

// With is a context-manager block.
type With struct{ pos }

// Global is a global declaration.
type Global struct{ pos }

// Nonlocal is a nonlocal declaration.
type Nonlocal struct{ pos }

// Del is a del statement.
type Del struct{ pos }

// Assert is an assert statement.
type Assert struct{ pos }

func (*Assign) stmtNode()    {}
func (*AugAssign) stmtNode() {}
func (*AnnAssign) stmtNode() {}
func (*ExprStmt) stmtNode()  {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*For) stmtNode()       {}
func (*Break) stmtNode()     {}
func (*Continue) stmtNode()  {}
func (*Pass) stmtNode()      {}
func (*Return) stmtNode()    {}
func (*Raise) stmtNode()     {}
func (*FuncDef) stmtNode()   {}
func (*ClassDef) stmtNode()  {}
func (*Import) stmtNode()    {}
func (*Try) stmtNode()       {}
func (*With) stmtNode()      {}
func (*Global) stmtNode()    {}
func (*Nonlocal) stmtNode()  {}
func (*Del) stmtNode()       {}
func (*Assert) stmtNode()    {}

// --- Expressions ---

// Name is an identifier reference.
type Name struct {
	pos
	Ident string
}

// IntLit is an integer literal.
type IntLit struct {
	pos
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	pos
	Value float64
}

// StrLit is a string literal (adjacent literals already concatenated).
type StrLit struct {
	pos
	Value string
}

// BoolLit is True or False.
type BoolLit struct {
	pos
	Value bool
}

// NoneLit is None.
type NoneLit struct{ pos }

// ListLit is a list display.
type ListLit struct {
	pos
	Elems []Expr
}

// TupleLit is a tuple display (parenthesized or bare comma list).
type TupleLit struct {
	pos
	Elems []Expr
}

// SetLit is a set display.
type SetLit struct {
	pos
	Elems []Expr
}

// DictItem is one key: value entry of a dict display.
type DictItem struct {
	Key   Expr
	Value Expr
}

// DictLit is a dict display.
type DictLit struct {
	pos
	Items []DictItem
}

// CompKind distinguishes comprehension forms.
type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
	GenComp // generator expression, evaluated eagerly
)

// CompClause is one "for target in iter [if cond]*" clause.
type CompClause struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

// Comp is a comprehension. For DictComp, Key and Value are set; otherwise
// Elt is the element expression.
type Comp struct {
	pos
	Kind    CompKind
	Elt     Expr
	Key     Expr
	Value   Expr
	Clauses []CompClause
}

// Unary is a prefix operation: "-", "+", or "not".
type Unary struct {
	pos
	Op string
	X  Expr
}

// Binary is an arithmetic operation.
type Binary struct {
	pos
	Op string // "+", "-", "*", "/", "//", "%", "**"
	X  Expr
	Y  Expr
}

// BoolOp is a short-circuiting "and"/"or" chain.
type BoolOp struct {
	pos
	Op     string
	Values []Expr
}

// Compare is a comparison chain: X op0 C0 op1 C1 ...
type Compare struct {
	pos
	X           Expr
	Ops         []string // "==", "!=", "<", "<=", ">", ">=", "in", "not in", "is", "is not"
	Comparators []Expr
}

// Cond is a conditional expression: Then if Cond else Else.
type Cond struct {
	pos
	Cond Expr
	Then Expr
	Else Expr
}

// Kwarg is a keyword argument in a call.
type Kwarg struct {
	Name  string
	Value Expr
}

// Call is a function or method invocation.
type Call struct {
	pos
	Fn     Expr
	Args   []Expr
	Kwargs []Kwarg
}

// Attr is attribute access: X.Name.
type Attr struct {
	pos
	X    Expr
	Name string
}

// Index is a subscript: X[Idx].
type Index struct {
	pos
	X   Expr
	Idx Expr
}

// Slice is a slice subscript: X[Low:High:Step], any bound may be nil.
type Slice struct {
	pos
	X    Expr
	Low  Expr
	High Expr
	Step Expr
}

// --- Denied expressions ---

// Lambda is an anonymous function expression.
type Lambda struct{ pos }

// Yield is a yield expression.
type Yield struct{ pos }

// Await is an await expression.
type Await struct{ pos }

func (*Name) exprNode()     {}
func (*IntLit) exprNode()   {}
func (*FloatLit) exprNode() {}
func (*StrLit) exprNode()   {}
func (*BoolLit) exprNode()  {}
func (*NoneLit) exprNode()  {}
func (*ListLit) exprNode()  {}
func (*TupleLit) exprNode() {}
func (*SetLit) exprNode()   {}
func (*DictLit) exprNode()  {}
func (*Comp) exprNode()     {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}
func (*BoolOp) exprNode()   {}
func (*Compare) exprNode()  {}
func (*Cond) exprNode()     {}
func (*Call) exprNode()     {}
func (*Attr) exprNode()     {}
func (*Index) exprNode()    {}
func (*Slice) exprNode()    {}
func (*Lambda) exprNode()   {}
func (*Yield) exprNode()    {}
func (*Await) exprNode()    {}
