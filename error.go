package soy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sahilm/fuzzy"

	soyerrors "github.com/archimag/soy-go/internal/errors"
	"github.com/archimag/soy-go/parser"
	"github.com/archimag/soy-go/value"
)

// Error represents an error that occurred during template processing.
type Error = soyerrors.Error

// ErrorKind describes the type of error that occurred.
type ErrorKind = soyerrors.ErrorKind

// ErrorClass groups error kinds into parse, eval and render errors.
type ErrorClass = soyerrors.Class

// DebugInfo is the render snapshot attached to errors in debug mode.
type DebugInfo = soyerrors.DebugInfo

const (
	ParseError  = soyerrors.ParseError
	EvalError   = soyerrors.EvalError
	RenderError = soyerrors.RenderError
)

const (
	ErrSyntax                 = soyerrors.ErrSyntax
	ErrUnterminatedBlock      = soyerrors.ErrUnterminatedBlock
	ErrUnknownCommand         = soyerrors.ErrUnknownCommand
	ErrInvalidOperand         = soyerrors.ErrInvalidOperand
	ErrIndexOutOfRange        = soyerrors.ErrIndexOutOfRange
	ErrUnknownFunction        = soyerrors.ErrUnknownFunction
	ErrInvalidArguments       = soyerrors.ErrInvalidArguments
	ErrUnknownDirective       = soyerrors.ErrUnknownDirective
	ErrTemplateNotFound       = soyerrors.ErrTemplateNotFound
	ErrRecursionLimitExceeded = soyerrors.ErrRecursionLimitExceeded
	ErrPrivateTemplate        = soyerrors.ErrPrivateTemplate
	ErrOutOfFuel              = soyerrors.ErrOutOfFuel
)

// NewError creates a new error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return soyerrors.NewError(kind, msg)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return soyerrors.Errorf(kind, format, args...)
}

// KindOf returns the kind of a soy error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var soyErr *Error
	if errors.As(err, &soyErr) {
		return soyErr.Kind, true
	}
	return 0, false
}

// convertParseError turns a parser failure into an engine error.
func convertParseError(err error, name, source string) error {
	var perr *parser.Error
	if !errors.As(err, &perr) {
		return err
	}
	kind := ErrSyntax
	switch perr.Kind {
	case parser.ErrUnterminatedBlock:
		kind = ErrUnterminatedBlock
	case parser.ErrUnknownCommand:
		kind = ErrUnknownCommand
	}
	return NewError(kind, perr.Detail).
		WithSpan(perr.Span).
		WithName(name).
		WithSource(source).
		WithCause(err)
}

// convertValueError maps failures of value operations onto error kinds.
// Errors that already are *Error pass through.
func convertValueError(err error) *Error {
	var soyErr *Error
	if errors.As(err, &soyErr) {
		return soyErr
	}
	switch {
	case errors.Is(err, value.ErrIndexOutOfRange):
		return NewError(ErrIndexOutOfRange, err.Error()).WithCause(err)
	case errors.Is(err, value.ErrInvalidOperand):
		return NewError(ErrInvalidOperand, err.Error()).WithCause(err)
	}
	return NewError(ErrInvalidArguments, err.Error()).WithCause(err)
}

// suggest appends a "did you mean" hint for the closest known name.
func suggest(msg, name string, known []string) string {
	sort.Strings(known)
	matches := fuzzy.Find(name, known)
	if len(matches) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (did you mean `%s`?)", msg, matches[0].Str)
}
