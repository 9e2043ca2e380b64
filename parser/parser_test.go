package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseBody(t *testing.T, source string) string {
	t.Helper()
	tmpl, err := ParseTemplate(source, "")
	require.NoError(t, err)
	return Dump(tmpl.Body)
}

func TestParseExpression(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"'Hello world'", "'Hello world'"},
		{"''", "''"},
		{"5", "5"},
		{"3.14", "3.14"},
		{"0x1F", "31"},
		{" $var ", "$var"},
		{"$x.y", "$x.y"},
		{"$x.1.y", "$x.1.y"},
		{"$x[0].y", "$x[0].y"},
		{"$x[$z].y", "$x[$z].y"},
		{"$x[0][1][$y]", "$x[0][1][$y]"},
		{"-$x", "(-$x)"},
		{"not $x", "(not $x)"},
		{"not $a == $b", "((not $a) == $b)"},
		{"2 + 2 * 3", "(2 + (2 * 3))"},
		{"28 - 2 + (3 + 4)", "((28 - 2) + (3 + 4))"},
		{"$x / $y % 2", "(($x / $y) % 2)"},
		{"$a < $b == $c >= $d", "(($a < $b) == ($c >= $d))"},
		{"$a or $b and $c", "($a or ($b and $c))"},
		{"$a ? $b : $c ? 1 : 2", "($a ? $b : ($c ? 1 : 2))"},
		{
			"max(2, $x ? min($x, $y ? 3 : 5 + 4, 6) : 4)",
			"max(2, ($x ? min($x, ($y ? 3 : (5 + 4)), 6) : 4))",
		},
		{"hasData()", "hasData()"},
		{"min($x, max(5, $y))", "min($x, max(5, $y))"},
		{"[1, 'a', $b]", "[1, 'a', $b]"},
		{"[]", "[]"},
		{"[:]", "[:]"},
		{"['a': 1, 'b': [2]]", "['a': 1, 'b': [2]]"},
		{"true and null", "(true and null)"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			expr, err := ParseExpression(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, DumpExpr(expr))
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	for _, input := range []string{"", "$x +", "foo", "(1", "[1, 2", "$x.", "1 2", "$a ? 1"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseExpression(input)
			require.Error(t, err)
		})
	}
}

func TestTemplateProps(t *testing.T) {
	a, err := ParseTemplate(`{template testA autoescape="true"}{/template}`, "")
	require.NoError(t, err)
	assert.Equal(t, "testA", a.Name)
	assert.True(t, a.AutoEscape)
	assert.False(t, a.Private)

	c, err := ParseTemplate(`{template testC autoescape="false" private="true"}{/template}`, "")
	require.NoError(t, err)
	assert.False(t, c.AutoEscape)
	assert.True(t, c.Private)

	renamed, err := ParseTemplate(`{template testD}x{/template}`, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", renamed.Name)

	bare, err := ParseTemplate("Hello {$name}", "bare")
	require.NoError(t, err)
	assert.Equal(t, "bare", bare.Name)
	assert.True(t, bare.AutoEscape)
	assert.Equal(t, `Text("Hello ") Print($name)`, Dump(bare.Body))
}

func TestParseStatements(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			"specials",
			`{sp}{nil}{\r}{\n}{\t}{lb}{rb}`,
			`Special(" ") Special("") Special("\r") Special("\n") Special("\t") Special("{") Special("}")`,
		},
		{"print", "Hello {$name}", `Text("Hello ") Print($name)`},
		{"print command", "{print 2 + 2}", "Print((2 + 2))"},
		{"directives", "{2 + 2 |noAutoescape |truncate:5,false}", "Print((2 + 2)|noAutoescape|truncate:5, false)"},
		{"function print", "{hasData() ? 1 : 2}", "Print((hasData() ? 1 : 2))"},
		{
			"literal",
			"{literal}Test {$x} {foreach $foo in $bar}{$foo}{/foreach}{/literal}",
			`Literal("Test {$x} {foreach $foo in $bar}{$foo}{/foreach}")`,
		},
		{"if", "{if $x}Hello {$x}{/if}", `If($x) {Text("Hello ") Print($x)}`},
		{
			"if elseif else",
			"{if $x}Hello {$x}{elseif $y}By {$y}{else}Hello world{/if}",
			`If($x) {Text("Hello ") Print($x)} ElseIf($y) {Text("By ") Print($y)} Else {Text("Hello world")}`,
		},
		{
			"switch",
			"{switch $x}{case 1}hello world{case 2, 3, 4}by-by{/switch}",
			`Switch($x) Case(1) {Text("hello world")} Case(2, 3, 4) {Text("by-by")}`,
		},
		{
			"switch default",
			"{switch $x}\n  {case 'a'}A\n  {default}other\n{/switch}",
			`Switch($x) Case('a') {Text("A")} Default {Text("other")}`,
		},
		{
			"foreach",
			"{foreach $x in $y.foo }{$x}{ifempty}Hello{/foreach}",
			`Foreach($x in $y.foo) {Print($x)} IfEmpty {Text("Hello")}`,
		},
		{"foreach index", "{foreach $x, $i in $list}{$i}{/foreach}", "Foreach($x, $i in $list) {Print($i)}"},
		{"for", "{for $x in range(10)} ! {/for}", `For($x in range(0, 10)) {Text("!")}`},
		{"for two", "{for $x in range(4, 10)} ! {/for}", `For($x in range(4, 10)) {Text("!")}`},
		{"for three", "{for $x in range(4, 10, 2)} ! {/for}", `For($x in range(4, 10, 2)) {Text("!")}`},
		{"call data expr", `{call helloName1 data="$x" /}`, "Call(helloName1, expr=$x)"},
		{"call params", "{call helloName2}{param name: $x /}{/call}", "Call(helloName2, explicit, name: $x)"},
		{
			"call block params",
			"{call helloName3 data=\"$data\"}\n  {param a: $x /}\n  {param b}Hello {$y}{/param}\n{/call}",
			`Call(helloName3, expr=$data, a: $x, b {Text("Hello ") Print($y)})`,
		},
		{"call name", `{call name="$name"  /}`, "Call($name, none)"},
		{"call name all", `{call name="$x" data="all"  /}`, "Call($x, all)"},
		{"call plain", "{call hello /}", "Call(hello, none)"},
		{
			"let",
			"A{let $x: 1 + 2 /} {$x} B",
			`Text("A") Let($x: (1 + 2)) {Print($x) Text(" B")}`,
		},
		{
			"let in branch",
			"{if $a}{let $x: $a /}{$x}{/if}{$x}",
			"If($a) {Let($x: $a) {Print($x)}} Print($x)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseBody(t, tc.input))
		})
	}
}

func TestWhitespace(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"trim block edges", "\n   Hello world!\n", `Text("Hello world!")`},
		{"collapse", "Hello \n\t  world", `Text("Hello world")`},
		{"keep inner spaces", "  Hello {$name} from {$city}  ", `Text("Hello ") Print($name) Text(" from ") Print($city)`},
		{"line comment", " //Hello world\n   Hello world\n", `Comment Text("Hello world")`},
		{"block comment", "\n  /*Hello world*/\n  Hello world\n", `Comment Text("Hello world")`},
		{"merge across comment", "a /* x */ b", `Text("a b") Comment`},
		{"url is not comment", "see http://example.com", `Text("see http://example.com")`},
		{"special trims", "\n  {foreach $o in $os}\n    {sp}{$o}\n  {/foreach}\n", `Foreach($o in $os) {Special(" ") Print($o)}`},
		{"text around special", "a  {sp}  b", `Text("a") Special(" ") Text("b")`},
		{"tags keep spacing", "Hello\n  {if $n}{$n}{else}Guest{/if}", `Text("Hello ") If($n) {Print($n)} Else {Text("Guest")}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseBody(t, tc.input))
		})
	}
}

func TestWhitespaceMergedAcrossComment(t *testing.T) {
	tmpl, err := ParseTemplate("a /* x */ b", "")
	require.NoError(t, err)
	require.Len(t, tmpl.Body, 2)
	text, ok := tmpl.Body[0].(*Text)
	require.True(t, ok)
	assert.Equal(t, "a b", text.Text)
}

func TestParseFile(t *testing.T) {
	source := `
// leading comment
{namespace test.ns}

/* docs */
{template .helloWorld}
   Hello world!
{/template}

{template helloName private="true"}
  Hello {$name}
  {call .helloWorld /}
{/template}
`
	file, err := ParseFile(source, "hello.soy")
	require.NoError(t, err)
	assert.Equal(t, "test.ns", file.Namespace)
	require.Len(t, file.Templates, 2)

	first := file.Templates[0]
	assert.Equal(t, "test.ns.helloWorld", first.Name)
	assert.Equal(t, "test.ns", first.Namespace)
	assert.Equal(t, `Text("Hello world!")`, Dump(first.Body))

	second := file.Templates[1]
	assert.Equal(t, "helloName", second.Name)
	assert.True(t, second.Private)
	assert.Equal(t, `Text("Hello ") Print($name) Text(" ") Call(test.ns.helloWorld, none)`, Dump(second.Body))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		kind   ErrorKind
		line   uint16
		detail string
	}{
		{"unterminated if", "{template a}\n{if $x}yes{/template}", ErrUnterminatedBlock, 2, "unterminated {if} block"},
		{"unterminated else", "{template a}{if $x}a{else}\nb{/template}", ErrUnterminatedBlock, 1, "unterminated {if} block"},
		{"unterminated foreach", "{template a}\n\n{foreach $i in $xs}{$i}\n{/template}", ErrUnterminatedBlock, 3, "unterminated {foreach} block"},
		{"unterminated for", "{template a}{if $x}\n{for $i in range(3)}{/if}{/template}", ErrUnterminatedBlock, 2, "unterminated {for} block"},
		{"unterminated param", "{template a}{call b}\n{param p}x{/call}{/template}", ErrUnterminatedBlock, 2, "unterminated {param} block"},
		{"unterminated call", "{template a}{if $x}\n{call b}{/if}{/template}", ErrUnterminatedBlock, 2, "unterminated {call} block"},
		{"unterminated inside let", "{template a}{let $y: 1 /}\n{if $x}{/template}", ErrUnterminatedBlock, 2, "unterminated {if} block"},
		{"stray close", "{template a}\n{/if}{/template}", ErrSyntax, 2, "unexpected {/if}"},
		{"missing end", "{template a}\n{if $x}yes", ErrUnterminatedBlock, 2, "unterminated {if} block"},
		{"unterminated template", "{template a}yes", ErrUnterminatedBlock, 1, "unterminated {template} block"},
		{"unterminated tag", "{template a}{$x", ErrUnterminatedBlock, 1, "unterminated tag"},
		{"unknown command", "{template a}\n\n{frobnicate}{/template}", ErrUnknownCommand, 3, "unknown command {frobnicate}"},
		{"stray else", "{template a}{else}{/template}", ErrSyntax, 1, "unexpected {else}"},
		{"nested template", "{template a}{template b}{/template}{/template}", ErrSyntax, 1, "not allowed"},
		{"text in switch", "{template a}{switch $x}oops{case 1}{/switch}{/template}", ErrSyntax, 1, "unexpected text"},
		{"case after default", "{template a}{switch $x}{default}{case 1}{/switch}{/template}", ErrSyntax, 1, "{case} after {default}"},
		{"text in call", "{template a}{call b}oops{/call}{/template}", ErrSyntax, 1, "unexpected text"},
		{"bad range", "{template a}{for $i in range()}{/for}{/template}", ErrSyntax, 1, "range expects"},
		{"let without colon", "{template a}{let $x /}{/template}", ErrSyntax, 1, "expected `:`"},
		{"bad attribute", `{template a foo="bar"}{/template}`, ErrSyntax, 1, "unknown template attribute"},
		{"bad call attr expr", `{template a}{call b data="$x +"/}{/template}`, ErrSyntax, 1, "unexpected end of input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTemplate(tc.input, "err.soy")
			require.Error(t, err)
			var perr *Error
			require.True(t, errors.As(err, &perr), "got %T", err)
			assert.Equal(t, tc.kind, perr.Kind, perr.Error())
			assert.Equal(t, tc.line, perr.Span.StartLine, perr.Error())
			assert.Contains(t, perr.Detail, tc.detail)
			assert.Equal(t, "err.soy", perr.Name)
		})
	}
}

func TestParseFileErrors(t *testing.T) {
	_, err := ParseFile("{template a}{/template}", "x.soy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{namespace}")

	_, err = ParseFile("{namespace a}\nstray text", "x.soy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected text")
}

func TestNestingLimit(t *testing.T) {
	src := ""
	for i := 0; i < 200; i++ {
		src += "{if $x}"
	}
	for i := 0; i < 200; i++ {
		src += "{/if}"
	}
	_, err := ParseTemplate(src, "deep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting depth")
}

func TestSequentialLetsAreFlat(t *testing.T) {
	src := "{template a}"
	for i := 0; i < 200; i++ {
		src += "{let $x: 1 /}"
	}
	src += "{$x}{/template}"

	tmpl, err := ParseTemplate(src, "lets")
	require.NoError(t, err)

	depth := 0
	for body := tmpl.Body; len(body) == 1; depth++ {
		bind, ok := body[0].(*LocalBind)
		if !ok {
			break
		}
		body = bind.Body
	}
	assert.Equal(t, 200, depth)

	// nesting inside the lets is still limited
	src = "{template a}"
	for i := 0; i < 100; i++ {
		src += "{let $x: 1 /}"
	}
	for i := 0; i < 200; i++ {
		src += "{if $x}"
	}
	_, err = ParseTemplate(src, "deep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting depth")
}
