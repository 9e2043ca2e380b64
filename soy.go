// Package soy implements a Closure Templates (Soy) style template engine.
//
// Templates are grouped into namespace files. A file declares its namespace
// and any number of templates, each addressable by its qualified name:
//
//	{namespace site.pages}
//
//	/** Greets the visitor. */
//	{template .hello}
//	  Hello {$name}!
//	{/template}
//
// # Quick Start
//
//	env := soy.NewEnvironment()
//	if _, err := env.AddFile("pages.soy", source); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := env.Render("site.pages.hello", map[string]any{"name": "World"})
//	fmt.Println(out) // Output: Hello World!
//
// # Template Syntax
//
// Key syntax elements:
//   - Prints: {$user.name}, {print $x |escapeUri}, {$text |truncate:20}
//   - Conditionals: {if $a}...{elseif $b}...{else}...{/if}
//   - Switches: {switch $x}{case 1, 2}...{default}...{/switch}
//   - Loops: {foreach $item in $list}...{ifempty}...{/foreach} and
//     {for $i in range(1, 10, 2)}...{/for}
//   - Locals: {let $full: $first + ' ' + $last /}
//   - Calls: {call .other data="all"}{param title: 'Hi' /}{/call}
//   - Characters: {sp} {nil} {\n} {\r} {\t} {lb} {rb} and {literal}...{/literal}
//   - Comments: // line, /* block */ and /** doc */
//
// Whitespace is joined the way Closure Templates do it: runs of whitespace
// inside text collapse to one space, and text at the edges of a block is
// trimmed.
//
// # Escaping
//
// Templates autoescape by default, so every print is HTML-escaped unless one
// of its directives escapes by itself (escapeUri, escapeUriComponent, id,
// cleanHtml) or opts out with noAutoescape. A template declared with
// autoescape="false" prints values as they are.
//
// # Custom Directives and Functions
//
//	env.AddDirective("upper", func(s string, args []soy.Value) (string, error) {
//	    return strings.ToUpper(s), nil
//	})
//	// In template: {$name |upper}
//
//	env.AddFunction("double", func(state *soy.State, args []soy.Value) (soy.Value, error) {
//	    n, _ := args[0].AsFloat()
//	    return soy.FromFloat(n * 2), nil
//	})
//	// In template: {double($n)}
//
// # Error Handling
//
// All errors are *Error values. Kind.Class() tells parse errors, which are
// reported when templates are added, from eval and render errors, which
// abort a render without partial output:
//
//	out, err := env.Render("site.pages.hello", data)
//	var soyErr *soy.Error
//	if errors.As(err, &soyErr) && soyErr.Span != nil {
//	    fmt.Printf("%s at line %d: %s\n", soyErr.Name, soyErr.Span.StartLine, soyErr.Message)
//	}
//
// With SetDebug(true), formatting an error with %+v prints the offending
// source lines and the variables the failing expression referenced.
package soy

import "github.com/archimag/soy-go/value"

// Value is a dynamically typed value in the template engine.
type Value = value.Value

// ValueKind describes the type of a Value.
type ValueKind = value.ValueKind

const (
	KindNone   = value.KindNone
	KindBool   = value.KindBool
	KindNumber = value.KindNumber
	KindString = value.KindString
	KindList   = value.KindList
	KindMap    = value.KindMap
)

// Value constructors
var (
	None       = value.None
	FromBool   = value.FromBool
	FromInt    = value.FromInt
	FromFloat  = value.FromFloat
	FromString = value.FromString
	FromSlice  = value.FromSlice
	FromMap    = value.FromMap
	FromAny    = value.FromAny
)
