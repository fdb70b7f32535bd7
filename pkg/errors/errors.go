package errors

import (
	"fmt"
	"os"
	"strings"
)

// KavaError is the interface implemented by all Kava errors.
type KavaError interface {
	error
	Pos() Position
	Kind() string // "Syntax" or "Compile"
	// Message returns the error message without position info, for callers
	// that format the error themselves.
	Message() string
	Unwrap() error
}

// --- Concrete Error Types ---

// SyntaxError represents an error during lexing or parsing.
type SyntaxError struct {
	Position
	Msg   string
	Cause error
}

// NewSyntaxError builds a SyntaxError at pos with a formatted message.
func NewSyntaxError(pos Position, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }
func (e *SyntaxError) CausedBy(cause error) *SyntaxError {
	e.Cause = cause
	return e
}

// CompileError represents an error during JavaScript generation. Errors
// raised from inside the node tree carry the Unknown position; the driver
// still attributes them to the file being compiled.
type CompileError struct {
	Position
	Msg   string
	Cause error
}

// NewCompileError builds a CompileError at pos with a formatted message.
func NewCompileError(pos Position, format string, args ...interface{}) *CompileError {
	return &CompileError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

func (e *CompileError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("Compile Error: %s", e.Msg)
	}
	return fmt.Sprintf("Compile Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *CompileError) Pos() Position   { return e.Position }
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }
func (e *CompileError) CausedBy(cause error) *CompileError {
	e.Cause = cause
	return e
}

// --- Error Reporting ---

// DisplayErrors prints errors to stderr with the offending source line and
// a position marker underneath.
func DisplayErrors(source string, errors []KavaError) {
	if len(errors) == 0 {
		return
	}

	lines := strings.Split(source, "\n")

	for _, err := range errors {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		lineIdx := pos.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(os.Stderr, "%s Error: %s\n", kind, msg)
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")

		fmt.Fprintf(os.Stderr, "%s Error at %d:%d: %s\n", kind, pos.Line, pos.Column, msg)
		fmt.Fprintf(os.Stderr, "  %s\n", sourceLine)

		marker := strings.Repeat(" ", pos.Column) + "^"
		fmt.Fprintf(os.Stderr, "  %s\n", marker)
		fmt.Fprintln(os.Stderr)
	}
}
