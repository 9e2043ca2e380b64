// Package errors defines the error type shared by the soy packages.
package errors

import (
	"fmt"

	"github.com/archimag/soy-go/syntax"
)

// Class groups error kinds by the phase that raises them.
type Class int

const (
	// ParseError is raised while reading template source.
	ParseError Class = iota
	// EvalError is raised while evaluating an expression.
	EvalError
	// RenderError is raised while rendering a template.
	RenderError
)

func (c Class) String() string {
	switch c {
	case ParseError:
		return "ParseError"
	case EvalError:
		return "EvalError"
	case RenderError:
		return "RenderError"
	default:
		return "Error"
	}
}

// ErrorKind describes the type of error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrUnterminatedBlock
	ErrUnknownCommand
	ErrInvalidOperand
	ErrIndexOutOfRange
	ErrUnknownFunction
	ErrInvalidArguments
	ErrUnknownDirective
	ErrTemplateNotFound
	ErrRecursionLimitExceeded
	ErrPrivateTemplate
	ErrOutOfFuel
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrUnterminatedBlock:
		return "unterminated block"
	case ErrUnknownCommand:
		return "unknown command"
	case ErrInvalidOperand:
		return "invalid operand"
	case ErrIndexOutOfRange:
		return "index out of range"
	case ErrUnknownFunction:
		return "unknown function"
	case ErrInvalidArguments:
		return "invalid arguments"
	case ErrUnknownDirective:
		return "unknown directive"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrRecursionLimitExceeded:
		return "recursion limit exceeded"
	case ErrPrivateTemplate:
		return "private template"
	case ErrOutOfFuel:
		return "out of fuel"
	default:
		return "error"
	}
}

// Class returns the phase the kind belongs to.
func (k ErrorKind) Class() Class {
	switch k {
	case ErrSyntax, ErrUnterminatedBlock, ErrUnknownCommand:
		return ParseError
	case ErrInvalidOperand, ErrIndexOutOfRange, ErrUnknownFunction, ErrInvalidArguments:
		return EvalError
	default:
		return RenderError
	}
}

// Error represents an error that occurred during template processing.
type Error struct {
	Kind      ErrorKind
	Message   string
	Span      *syntax.Span
	Name      string // template name
	Source    string // template source (for error display)
	DebugInfo *DebugInfo
	cause     error
}

func (e *Error) Error() string {
	if e.Name != "" && e.Span != nil {
		return fmt.Sprintf("%s: %s (in %s line %d)", e.Kind, e.Message, e.Name, e.Span.StartLine)
	}
	if e.Span != nil {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Span.StartLine)
	}
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Kind, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Format implements fmt.Formatter. %+v includes the source excerpt and the
// referenced variables when debug info was captured.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			writeReport(f, e, true)
			return
		}
		_, _ = fmt.Fprint(f, e.Error())
	case 's':
		_, _ = fmt.Fprint(f, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", e.Error())
	}
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSpan adds span information to an error.
func (e *Error) WithSpan(span syntax.Span) *Error {
	e.Span = &span
	return e
}

// WithName adds template name to an error.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSource adds source to an error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithDebugInfo attaches a debug snapshot.
func (e *Error) WithDebugInfo(info DebugInfo) *Error {
	e.DebugInfo = &info
	return e
}

// WithCause records the error this one was derived from.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}
