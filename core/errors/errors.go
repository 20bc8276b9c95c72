// Package errors defines the error taxonomy shared by every pdftl stage.
//
// Each failure carries a Kind. The kind decides the process exit code and
// whether the failure may be downgraded to a warning (only KindCompatibility).
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindGrammar       Kind = "GRAMMAR_ERROR"       // structurally invalid arguments
	KindSyntax        Kind = "SYNTAX_ERROR"        // malformed token
	KindRange         Kind = "RANGE_ERROR"         // bad page index or unbound handle
	KindIO            Kind = "IO_ERROR"            // unreadable or unwritable path
	KindAuthorization Kind = "AUTHORIZATION_ERROR" // wrong or missing password
	KindCompatibility Kind = "COMPATIBILITY_ERROR" // divergence under strict policy
	KindInternal      Kind = "INTERNAL_ERROR"      // anything not classified above
)

// Exit codes, one per kind.
const (
	ExitSuccess       = 0
	ExitGrammar       = 1
	ExitSyntax        = 2
	ExitRange         = 3
	ExitIO            = 4
	ExitAuthorization = 5
	ExitCompatibility = 6
	ExitInternal      = 7
)

// Error is a classified pdftl failure.
type Error struct {
	Kind     Kind
	Message  string
	Arg      string // offending argument text, if any
	Position int    // 1-based argument position, 0 when not tied to an argument
	Hint     string // how to fix it
	Cause    error
	Context  map[string]interface{}
}

// Error renders the single diagnostic line.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Position > 0 {
		if e.Arg != "" {
			fmt.Fprintf(&b, " (argument %d: %q)", e.Position, e.Arg)
		} else {
			fmt.Fprintf(&b, " (argument %d)", e.Position)
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows error unwrapping
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Context: make(map[string]interface{}),
	}
}

// Wrap creates an Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := New(kind, format, args...)
	e.Cause = cause
	return e
}

// At records the offending argument and its 0-based index.
func (e *Error) At(index int, arg string) *Error {
	e.Position = index + 1
	e.Arg = arg
	return e
}

// WithHint attaches a fix suggestion.
func (e *Error) WithHint(format string, args ...interface{}) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// GetContext returns context value by key
func (e *Error) GetContext(key string) (interface{}, bool) {
	value, exists := e.Context[key]
	return value, exists
}

// Helper constructors for the common kinds.

func Grammar(format string, args ...interface{}) *Error {
	return New(KindGrammar, format, args...)
}

func Syntax(format string, args ...interface{}) *Error {
	return New(KindSyntax, format, args...)
}

func Range(format string, args ...interface{}) *Error {
	return New(KindRange, format, args...)
}

func IO(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindIO, cause, format, args...)
}

func Authorization(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindAuthorization, cause, format, args...)
}

func Compatibility(format string, args ...interface{}) *Error {
	return New(KindCompatibility, format, args...)
}

func Internal(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, cause, format, args...)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case KindGrammar:
		return ExitGrammar
	case KindSyntax:
		return ExitSyntax
	case KindRange:
		return ExitRange
	case KindIO:
		return ExitIO
	case KindAuthorization:
		return ExitAuthorization
	case KindCompatibility:
		return ExitCompatibility
	default:
		return ExitInternal
	}
}
