package soy

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"

	"github.com/archimag/soy-go/value"
)

// DirectiveFunc transforms the string form of a printed value. args are the
// evaluated values written after the colon, as in {$x |truncate:8}.
type DirectiveFunc func(s string, args []value.Value) (string, error)

type directive struct {
	fn DirectiveFunc
	// escaping directives make the output safe by themselves, so no
	// automatic HTML escaping is added to a print that uses one.
	escaping bool
}

// cleanPolicy is safe for concurrent use once built.
var cleanPolicy = bluemonday.UGCPolicy()

func registerDefaultDirectives(env *Environment) {
	env.AddEscapingDirective("escapeHtml", noArgs(EscapeHTML))
	env.AddEscapingDirective("noAutoescape", noArgs(func(s string) string { return s }))
	env.AddEscapingDirective("escapeUri", noArgs(EscapeURI))
	env.AddEscapingDirective("escapeUriComponent", noArgs(EscapeURIComponent))
	env.AddEscapingDirective("id", noArgs(EscapeURIComponent))
	env.AddEscapingDirective("cleanHtml", noArgs(cleanPolicy.Sanitize))

	env.AddDirective("changeNewlineToBr", noArgs(changeNewlineToBr))
	env.AddDirective("truncate", directiveTruncate)
	env.AddDirective("insertWordBreaks", directiveInsertWordBreaks)
}

// noArgs adapts a plain string transform to a directive that takes no
// arguments.
func noArgs(fn func(string) string) DirectiveFunc {
	return func(s string, args []value.Value) (string, error) {
		if len(args) != 0 {
			return "", fmt.Errorf("takes no arguments, got %d", len(args))
		}
		return fn(s), nil
	}
}

// directiveTruncate implements |truncate:maxLen[,addEllipsis].
func directiveTruncate(s string, args []value.Value) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("expects 1 or 2 arguments, got %d", len(args))
	}
	n, ok := args[0].AsInt()
	if !ok {
		return "", fmt.Errorf("max length must be an integer, got %s", args[0].Repr())
	}
	ellipsis := true
	if len(args) == 2 {
		ellipsis = args[1].IsTrue()
	}
	return truncate(s, int(n), ellipsis), nil
}

// directiveInsertWordBreaks implements |insertWordBreaks:maxCharsBetween.
func directiveInsertWordBreaks(s string, args []value.Value) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	n, ok := args[0].AsInt()
	if !ok || n <= 0 {
		return "", fmt.Errorf("run length must be a positive integer, got %s", args[0].Repr())
	}
	return insertWordBreaks(s, int(n)), nil
}
