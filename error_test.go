package soy

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func mustAddFile(t *testing.T, env *Environment, source string) {
	t.Helper()
	if _, err := env.AddFile("test.soy", source); err != nil {
		t.Fatalf("parse error: %v", err)
	}
}

func expectKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var soyErr *Error
	if !errors.As(err, &soyErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if soyErr.Kind != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, soyErr.Kind, err)
	}
	return soyErr
}

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		class ErrorClass
	}{
		{ErrSyntax, ParseError},
		{ErrUnterminatedBlock, ParseError},
		{ErrUnknownCommand, ParseError},
		{ErrInvalidOperand, EvalError},
		{ErrIndexOutOfRange, EvalError},
		{ErrUnknownFunction, EvalError},
		{ErrInvalidArguments, EvalError},
		{ErrUnknownDirective, RenderError},
		{ErrTemplateNotFound, RenderError},
		{ErrRecursionLimitExceeded, RenderError},
		{ErrPrivateTemplate, RenderError},
		{ErrOutOfFuel, RenderError},
	}
	for _, tt := range tests {
		if got := tt.kind.Class(); got != tt.class {
			t.Errorf("%s: expected class %s, got %s", tt.kind, tt.class, got)
		}
	}
}

func TestParseErrorsAbortRegistration(t *testing.T) {
	env := NewEnvironment()
	_, err := env.AddFile("broken.soy", `{namespace test}

{template .ok}fine{/template}

{template .broken}
  {if $x}never closed
{/template}`)
	soyErr := expectKind(t, err, ErrSyntax)
	if soyErr.Kind.Class() != ParseError {
		t.Errorf("expected a parse error, got %s", soyErr.Kind.Class())
	}
	if soyErr.Name != "broken.soy" {
		t.Errorf("expected error name broken.soy, got %q", soyErr.Name)
	}
	if soyErr.Span == nil {
		t.Fatal("expected a span")
	}
	if names := env.TemplateNames(); len(names) != 0 {
		t.Errorf("expected nothing registered, got %v", names)
	}
}

func TestParseErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		source string
		kind   ErrorKind
	}{
		{"unterminated template", "{namespace a}{template .x}hello", ErrUnterminatedBlock},
		{"unterminated tag", "{namespace a}{template .x}{$x", ErrUnterminatedBlock},
		{"unclosed if before template end", "{namespace t}\n{template .a}\n{if $x}abc\n{/template}", ErrUnterminatedBlock},
		{"unclosed foreach before template end", "{namespace t}\n{template .a}{foreach $i in $xs}{$i}{/template}", ErrUnterminatedBlock},
		{"stray closing tag", "{namespace t}\n{template .a}{/if}{/template}", ErrSyntax},
		{"unknown command", "{namespace a}{template .x}{frobnicate}{/template}", ErrUnknownCommand},
		{"bad expression", "{namespace a}{template .x}{$x +}{/template}", ErrSyntax},
		{"missing namespace", "{template .x}{/template}", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnvironment().AddFile("test.soy", tt.source)
			expectKind(t, err, tt.kind)
		})
	}
}

func TestTemplateNotFound(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, "{namespace test}{template .helloWorld}Hi{/template}")

	_, err := env.Render("test.helloWrld", nil)
	soyErr := expectKind(t, err, ErrTemplateNotFound)
	if !strings.Contains(soyErr.Message, "did you mean `test.helloWorld`?") {
		t.Errorf("expected a hint, got %q", soyErr.Message)
	}

	_, err = env.Render("completely.different", nil)
	soyErr = expectKind(t, err, ErrTemplateNotFound)
	if strings.Contains(soyErr.Message, "did you mean") {
		t.Errorf("expected no hint, got %q", soyErr.Message)
	}
}

func TestCallUnknownTemplate(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, `{namespace test}

{template .page}
  before {call .missing /} after
{/template}`)

	out, err := env.Render("test.page", nil)
	soyErr := expectKind(t, err, ErrTemplateNotFound)
	if out != "" {
		t.Errorf("expected no partial output, got %q", out)
	}
	if soyErr.Name != "test.page" {
		t.Errorf("expected error in test.page, got %q", soyErr.Name)
	}
	if soyErr.Span == nil || soyErr.Span.StartLine != 4 {
		t.Errorf("expected span on line 4, got %v", soyErr.Span)
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]any
		kind     ErrorKind
		contains string
	}{
		{"index out of range", "{$a[5]}", map[string]any{"a": []int{1}}, ErrIndexOutOfRange, "out of range"},
		{"non-integral index", "{$a[0.5]}", map[string]any{"a": []int{1}}, ErrIndexOutOfRange, ""},
		{"subtract string", "{$a - 'x'}", map[string]any{"a": 1}, ErrInvalidOperand, ""},
		{"divide by zero", "{1 / 0}", nil, ErrInvalidOperand, "division by zero"},
		{"modulo by zero", "{1 % 0}", nil, ErrInvalidOperand, "modulo by zero"},
		{"compare mixed", "{if 1 < 'a'}x{/if}", nil, ErrInvalidOperand, ""},
		{"negate string", "{-'a'}", nil, ErrInvalidOperand, ""},
		{"unknown function", "{lenth($a)}", map[string]any{"a": "x"}, ErrUnknownFunction, "did you mean `length`?"},
		{"wrong arity", "{round()}", nil, ErrInvalidArguments, "round()"},
		{"random non positive", "{randomInt(0)}", nil, ErrInvalidOperand, ""},
		{"loop function outside loop", "{index($a)}", nil, ErrInvalidArguments, "not a foreach variable"},
		{"foreach over string", "{foreach $x in 'abc'}{$x}{/foreach}", nil, ErrInvalidOperand, "expects a list"},
		{"zero step", "{for $i in range(0, 5, 0)}{$i}{/for}", nil, ErrInvalidOperand, "zero"},
		{"fractional range", "{for $i in range(1.5)}{$i}{/for}", nil, ErrInvalidOperand, ""},
		{"call data not a map", "{call .other data=\"$a\" /}", map[string]any{"a": 3}, ErrInvalidOperand, "must be a map"},
		{"unknown directive", "{$a |escHtml}", map[string]any{"a": 1}, ErrUnknownDirective, "did you mean `escapeHtml`?"},
		{"directive arguments", "{$a |truncate}", map[string]any{"a": "abc"}, ErrInvalidArguments, "|truncate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment()
			mustAddFile(t, env, "{namespace test}\n{template .main}"+tt.template+"{/template}\n{template .other}{/template}")
			out, err := env.Render("test.main", tt.data)
			soyErr := expectKind(t, err, tt.kind)
			if out != "" {
				t.Errorf("expected no output, got %q", out)
			}
			if !strings.Contains(soyErr.Message, tt.contains) {
				t.Errorf("expected message to contain %q, got %q", tt.contains, soyErr.Message)
			}
			if soyErr.Span == nil || soyErr.Span.StartLine != 2 {
				t.Errorf("expected a span on line 2, got %v", soyErr.Span)
			}
		})
	}
}

func TestUndefinedIsNotAnError(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, `{namespace test}
{template .main}
  [{$missing}{$missing.deep.path}{$map.nope}{$missing[3]}]
{/template}`)
	out, err := env.Render("test.main", map[string]any{"map": map[string]any{}})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "[]" {
		t.Errorf("expected %q, got %q", "[]", out)
	}
}

func TestRecursionLimit(t *testing.T) {
	env := NewEnvironment()
	env.SetRecursionLimit(10)
	mustAddFile(t, env, `{namespace test}
{template .countdown}
  {if $n > 0}{$n}{call .countdown}{param n: $n - 1 /}{/call}{/if}
{/template}
{template .forever}
  {call .forever /}
{/template}`)

	out, err := env.Render("test.countdown", map[string]any{"n": 5})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "54321" {
		t.Errorf("expected 54321, got %q", out)
	}

	_, err = env.Render("test.forever", nil)
	soyErr := expectKind(t, err, ErrRecursionLimitExceeded)
	wantChain := "(... -> test.forever -> test.forever -> test.forever -> test.forever -> test.forever)"
	if !strings.Contains(soyErr.Message, wantChain) {
		t.Errorf("expected the call chain in %q", soyErr.Message)
	}

	_, err = env.Render("test.countdown", map[string]any{"n": 20})
	expectKind(t, err, ErrRecursionLimitExceeded)
}

func TestFuel(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, `{namespace test}
{template .loop}
  {for $i in range($n)}{$i}{/for}
{/template}`)

	env.SetFuel(50)
	if _, err := env.Render("test.loop", map[string]any{"n": 3}); err != nil {
		t.Fatalf("small loop should fit: %v", err)
	}
	_, err := env.Render("test.loop", map[string]any{"n": 1000})
	expectKind(t, err, ErrOutOfFuel)

	env.SetFuel(0)
	if _, err := env.Render("test.loop", map[string]any{"n": 1000}); err != nil {
		t.Fatalf("unlimited fuel: %v", err)
	}
}

func TestPrivateTemplate(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, `{namespace test}
{template .secret private="true"}
  secret {$x}
{/template}
{template .public}
  {call .secret data="all" /}
{/template}`)

	_, err := env.Render("test.secret", map[string]any{"x": 1})
	expectKind(t, err, ErrPrivateTemplate)

	out, err := env.Render("test.public", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "secret 1" {
		t.Errorf("expected %q, got %q", "secret 1", out)
	}

	tmpl, err := env.GetTemplate("test.secret")
	if err != nil {
		t.Fatal(err)
	}
	if !tmpl.Private() {
		t.Error("expected template to be private")
	}
}

func TestErrorInCalledTemplate(t *testing.T) {
	env := NewEnvironment()
	mustAddFile(t, env, `{namespace test}
{template .outer}
  {call .inner data="all" /}
{/template}
{template .inner}
  {$items[3]}
{/template}`)

	_, err := env.Render("test.outer", map[string]any{"items": []int{1}})
	soyErr := expectKind(t, err, ErrIndexOutOfRange)
	if soyErr.Name != "test.inner" {
		t.Errorf("expected error located in test.inner, got %q", soyErr.Name)
	}
	if soyErr.Span == nil || soyErr.Span.StartLine != 6 {
		t.Errorf("expected span on line 6, got %v", soyErr.Span)
	}
	if soyErr.DebugInfo != nil {
		t.Error("debug info should only be collected in debug mode")
	}
}

func TestDebugInfo(t *testing.T) {
	env := NewEnvironment()
	env.SetDebug(true)
	mustAddFile(t, env, `{namespace test}
{template .outer}
  {call .inner data="all" /}
{/template}
{template .inner}
  {$items[$pos]}
{/template}`)

	_, err := env.Render("test.outer", map[string]any{"items": []int{1}, "pos": 3})
	soyErr := expectKind(t, err, ErrIndexOutOfRange)
	if soyErr.DebugInfo == nil {
		t.Fatal("expected debug info")
	}
	if got := soyErr.DebugInfo.CallStack; len(got) != 2 || got[0] != "test.outer" || got[1] != "test.inner" {
		t.Errorf("unexpected call stack %v", got)
	}
	if _, ok := soyErr.DebugInfo.ReferencedLocals["pos"]; !ok {
		t.Errorf("expected pos among referenced locals, got %v", soyErr.DebugInfo.ReferencedLocals)
	}

	rendered := fmt.Sprintf("%+v", err)
	for _, want := range []string{
		"index out of range",
		"{$items[$pos]}",
		"Referenced variables:",
		"pos: 3",
		"Call stack: test.outer -> test.inner",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("expected %q in debug output:\n%s", want, rendered)
		}
	}
}

func TestRecursionLimitShortChain(t *testing.T) {
	env := NewEnvironment()
	env.SetRecursionLimit(1)
	mustAddFile(t, env, `{namespace test}
{template .a}{call .b /}{/template}
{template .b}{call .c /}{/template}
{template .c}done{/template}`)

	_, err := env.Render("test.a", nil)
	soyErr := expectKind(t, err, ErrRecursionLimitExceeded)
	if want := "deeper than 1 levels (test.a -> test.b -> test.c)"; !strings.Contains(soyErr.Message, want) {
		t.Errorf("expected %q in %q", want, soyErr.Message)
	}
}
