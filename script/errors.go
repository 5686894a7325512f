package script

import "fmt"

// Exception kind names surfaced by the interpreter. They follow the names
// generated programs raise and test against.
const (
	ExcException    = "Exception"
	ExcValueError   = "ValueError"
	ExcTypeError    = "TypeError"
	ExcKeyError     = "KeyError"
	ExcIndexError   = "IndexError"
	ExcNameError    = "NameError"
	ExcAttribError  = "AttributeError"
	ExcZeroDivision = "ZeroDivisionError"
	ExcRuntime      = "RuntimeError"
	ExcStopIter     = "StopIteration"
)

// Error is a runtime exception raised by a program, either explicitly via
// raise or implicitly by a failed operation.
type Error struct {
	Kind    string // exception kind, e.g. "ValueError"
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

// NewError constructs a runtime exception of the given kind.
func NewError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func typeErrf(format string, args ...any) *Error {
	return NewError(ExcTypeError, format, args...)
}

func valueErrf(format string, args ...any) *Error {
	return NewError(ExcValueError, format, args...)
}

// Rejection is a safety validation failure: the program contains a construct
// or name the sandbox does not permit. It is distinct from SyntaxError so
// callers can tell "does not parse" from "parses but is forbidden".
type Rejection struct {
	Line      int
	Col       int
	Construct string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("forbidden construct at line %d: %s", r.Line, r.Construct)
}
