package script

import (
	"errors"
	"fmt"
)

var (
	// ErrUndefined is returned when a program reads or assigns an identifier
	// that is not declared, not a parameter and not a property of an
	// enclosing with-block object.
	ErrUndefined = errors.New("undefined variable")

	// ErrNotCallable is returned when a call expression targets a value that
	// is not a function.
	ErrNotCallable = errors.New("value is not callable")

	// ErrType is returned when an operation is applied to a value of the
	// wrong type, e.g. reading a property of null.
	ErrType = errors.New("type error")

	// ErrIterationLimit is returned when a run exceeds the maximum number of
	// loop iterations configured with WithMaxIterations.
	ErrIterationLimit = errors.New("loop iteration limit exceeded")
)

// Pos is a 1-based line and column within program source.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// SyntaxError is returned by Compile when the source cannot be parsed.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg)
}

// RuntimeError is returned by Run when evaluation fails. Err is one of the
// package sentinels or an error returned by a called Go function.
type RuntimeError struct {
	Pos Pos
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at %s: %v", e.Pos, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func runtimeErrorf(pos Pos, sentinel error, format string, args ...any) error {
	return &RuntimeError{Pos: pos, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}
