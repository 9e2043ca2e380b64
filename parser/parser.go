package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/archimag/soy-go/lexer"
	"github.com/archimag/soy-go/syntax"
	"github.com/archimag/soy-go/value"
)

const maxRecursion = 150

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	// ErrSyntax is malformed input.
	ErrSyntax ErrorKind = iota
	// ErrUnterminatedBlock is a block command, tag or literal missing its
	// end.
	ErrUnterminatedBlock
	// ErrUnknownCommand is a tag naming a command that does not exist.
	ErrUnknownCommand
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrUnterminatedBlock:
		return "unterminated block"
	case ErrUnknownCommand:
		return "unknown command"
	default:
		return "parse error"
	}
}

// Error represents a parse error.
type Error struct {
	Kind   ErrorKind
	Detail string
	Name   string
	Span   Span
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (in %s:%d)", e.Kind, e.Detail, e.Name, e.Span.StartLine)
	}
	return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Detail, e.Span.StartLine)
}

// blockCommands are the commands that may open a tag inside a template body.
var blockCommands = map[string]bool{
	"print": true, "if": true, "elseif": true, "else": true,
	"switch": true, "case": true, "default": true,
	"foreach": true, "ifempty": true, "for": true,
	"call": true, "param": true, "let": true,
	"template": true, "namespace": true,
}

// exprKeywords may start a print tag without the print command.
var exprKeywords = map[string]bool{
	"true": true, "false": true, "null": true, "not": true,
}

// Parser parses Soy template files.
type Parser struct {
	tokens    []lexer.Token
	pos       int
	filename  string
	namespace string
	depth     int
	lastSpan  Span
	// blocks holds the names of the blocks being parsed, outermost first.
	blocks []string
}

// endCheck reports whether a tag ends the block being parsed.
type endCheck func(closing bool, command string) bool

// ParseFile parses a file made of a {namespace} declaration followed by
// {template} definitions.
func ParseFile(source, filename string) (*File, error) {
	p, err := newParser(source, filename)
	if err != nil {
		return nil, err
	}
	file, perr := p.parseFile()
	if perr != nil {
		return nil, perr
	}
	return file, nil
}

// ParseTemplate parses a single template. The source is either one
// {template} definition or a bare template body. A non-empty name replaces
// the name given in the {template} tag.
func ParseTemplate(source, name string) (*Template, error) {
	p, err := newParser(source, name)
	if err != nil {
		return nil, err
	}
	tmpl, perr := p.parseSingle(name)
	if perr != nil {
		return nil, perr
	}
	return tmpl, nil
}

// ParseExpression parses a standalone expression.
func ParseExpression(source string) (Expr, error) {
	tokens, err := lexer.TokenizeExpression(source, syntax.Pos{Line: 1})
	if err != nil {
		return nil, convertLexError(err, "")
	}
	p := &Parser{tokens: tokens}
	expr, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if tok := p.current(); tok != nil {
		return nil, p.unexpected(tok, "end of expression")
	}
	return expr, nil
}

func newParser(source, filename string) (*Parser, error) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		return nil, convertLexError(err, filename)
	}
	return &Parser{tokens: tokens, filename: filename}, nil
}

func convertLexError(err error, filename string) *Error {
	var lexErr *lexer.Error
	if errors.As(err, &lexErr) {
		kind := ErrSyntax
		if lexErr.Unterminated {
			kind = ErrUnterminatedBlock
		}
		return &Error{Kind: kind, Detail: lexErr.Msg, Name: filename, Span: lexErr.Span}
	}
	return &Error{Kind: ErrSyntax, Detail: err.Error(), Name: filename}
}

// --- Token helpers ---

func (p *Parser) current() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peek(n int) *lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+n]
}

func (p *Parser) advance() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	tok := &p.tokens[p.pos]
	p.lastSpan = tok.Span
	p.pos++
	return tok
}

func (p *Parser) currentSpan() Span {
	if tok := p.current(); tok != nil {
		return tok.Span
	}
	return p.lastSpan
}

func (p *Parser) expandSpan(start Span) Span {
	return start.Join(p.lastSpan)
}

func (p *Parser) errorAt(kind ErrorKind, span Span, msg string) *Error {
	return &Error{Kind: kind, Detail: msg, Name: p.filename, Span: span}
}

func (p *Parser) syntaxError(msg string) *Error {
	return p.errorAt(ErrSyntax, p.currentSpan(), msg)
}

func (p *Parser) unexpected(tok *lexer.Token, expected string) *Error {
	return p.errorAt(ErrSyntax, tok.Span, fmt.Sprintf("unexpected %s, expected %s", tokenDescription(tok), expected))
}

func (p *Parser) unexpectedEOF(expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected end of input, expected %s", expected))
}

func (p *Parser) expect(typ lexer.TokenType, expected string) (*lexer.Token, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF(expected)
	}
	if tok.Type != typ {
		return nil, p.unexpected(tok, expected)
	}
	return tok, nil
}

func (p *Parser) expectIdent(expected string) (string, *Error) {
	tok, err := p.expect(lexer.TokenIdent, expected)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

func (p *Parser) expectKeyword(kw string) *Error {
	tok := p.advance()
	if tok == nil {
		return p.unexpectedEOF("`" + kw + "`")
	}
	if tok.Type != lexer.TokenIdent || tok.Value != kw {
		return p.unexpected(tok, "`"+kw+"`")
	}
	return nil
}

func (p *Parser) skip(typ lexer.TokenType) bool {
	if p.matches(typ) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) skipKeyword(kw string) bool {
	if p.matchesKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matches(typ lexer.TokenType) bool {
	tok := p.current()
	return tok != nil && tok.Type == typ
}

func (p *Parser) matchesKeyword(kw string) bool {
	tok := p.current()
	return tok != nil && tok.Type == lexer.TokenIdent && tok.Value == kw
}

// command returns the command of the tag starting at the current token and
// whether it is a closing tag.
func (p *Parser) command() (string, bool) {
	tok := p.current()
	if tok == nil || (tok.Type != lexer.TokenTagStart && tok.Type != lexer.TokenCloseTagStart) {
		return "", false
	}
	closing := tok.Type == lexer.TokenCloseTagStart
	if next := p.peek(1); next != nil && next.Type == lexer.TokenIdent {
		return next.Value, closing
	}
	return "", closing
}

func (p *Parser) atCommand(cmd string, closing bool) bool {
	name, isClosing := p.command()
	return name == cmd && isClosing == closing
}

// simpleTag consumes a tag without arguments such as {else} or {/if}.
func (p *Parser) simpleTag(cmd string, closing bool) *Error {
	open := lexer.TokenTagStart
	display := "{" + cmd + "}"
	if closing {
		open = lexer.TokenCloseTagStart
		display = "{/" + cmd + "}"
	}
	if _, err := p.expect(open, display); err != nil {
		return err
	}
	if err := p.expectKeyword(cmd); err != nil {
		return err
	}
	_, err := p.expect(lexer.TokenTagEnd, "`}`")
	return err
}

// skipBlank skips whitespace-only text and comments between tags where
// no output is allowed.
func (p *Parser) skipBlank() *Error {
	for {
		tok := p.current()
		if tok == nil {
			return nil
		}
		switch tok.Type {
		case lexer.TokenComment:
			p.advance()
		case lexer.TokenText:
			if strings.TrimSpace(tok.Value) != "" {
				return p.errorAt(ErrSyntax, tok.Span, fmt.Sprintf("unexpected text %q", strings.TrimSpace(tok.Value)))
			}
			p.advance()
		default:
			return nil
		}
	}
}

func tokenDescription(tok *lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent:
		return fmt.Sprintf("identifier `%s`", tok.Value)
	case lexer.TokenVariable:
		return fmt.Sprintf("variable `$%s`", tok.Value)
	case lexer.TokenString, lexer.TokenAttrString:
		return "string"
	case lexer.TokenInteger:
		return "integer"
	case lexer.TokenFloat:
		return "float"
	case lexer.TokenText:
		return "text"
	case lexer.TokenTagStart, lexer.TokenCloseTagStart:
		return "start of tag"
	case lexer.TokenTagEnd:
		return "`}`"
	case lexer.TokenSelfClose:
		return "`/}`"
	default:
		if tok.Value != "" {
			return fmt.Sprintf("`%s`", tok.Value)
		}
		return tok.Type.String()
	}
}

// --- Files and templates ---

func (p *Parser) parseFile() (*File, *Error) {
	start := p.currentSpan()
	if err := p.skipBlank(); err != nil {
		return nil, err
	}
	if !p.atCommand("namespace", false) {
		if tok := p.current(); tok != nil {
			return nil, p.unexpected(tok, "{namespace}")
		}
		return nil, p.unexpectedEOF("{namespace}")
	}
	p.advance()
	p.advance()
	ns, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	// namespace attributes such as autoescape are accepted and ignored
	if _, err := p.parseAttributes(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}
	p.namespace = ns

	file := &File{Name: p.filename, Namespace: ns}
	for {
		if err := p.skipBlank(); err != nil {
			return nil, err
		}
		tok := p.current()
		if tok == nil {
			break
		}
		if !p.atCommand("template", false) {
			return nil, p.unexpected(tok, "{template}")
		}
		tmpl, err := p.parseTemplateDef()
		if err != nil {
			return nil, err
		}
		file.Templates = append(file.Templates, tmpl)
	}
	file.span = p.expandSpan(start)
	return file, nil
}

func (p *Parser) parseSingle(name string) (*Template, *Error) {
	save := p.pos
	if err := p.skipBlank(); err == nil && p.atCommand("template", false) {
		tmpl, err := p.parseTemplateDef()
		if err != nil {
			return nil, err
		}
		if err := p.skipBlank(); err != nil {
			return nil, err
		}
		if tok := p.current(); tok != nil {
			return nil, p.unexpected(tok, "end of input")
		}
		if name != "" {
			tmpl.Name = name
		}
		return tmpl, nil
	}

	p.pos = save
	start := p.currentSpan()
	body, err := p.subparse(func(bool, string) bool { return false }, "", start)
	if err != nil {
		return nil, err
	}
	return &Template{
		Name:       name,
		AutoEscape: true,
		Body:       body,
		span:       p.expandSpan(start),
	}, nil
}

func (p *Parser) parseTemplateDef() (*Template, *Error) {
	start := p.currentSpan()
	p.advance()
	p.advance()
	name, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}
	tmpl := &Template{
		Name:       p.qualify(name),
		Namespace:  p.namespace,
		AutoEscape: true,
	}
	for _, attr := range attrs {
		switch attr.name {
		case "autoescape":
			tmpl.AutoEscape = attr.value != "false"
		case "private":
			tmpl.Private = attr.value == "true"
		case "kind", "requirecss", "cssbase", "stricthtml", "visibility":
		default:
			return nil, p.errorAt(ErrSyntax, attr.span, fmt.Sprintf("unknown template attribute `%s`", attr.name))
		}
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}

	body, err := p.subparse(func(closing bool, cmd string) bool {
		return closing && cmd == "template"
	}, "template", start)
	if err != nil {
		return nil, err
	}
	if err := p.simpleTag("template", true); err != nil {
		return nil, err
	}
	tmpl.Body = body
	tmpl.span = p.expandSpan(start)
	return tmpl, nil
}

// qualify prefixes names starting with a dot with the current namespace.
func (p *Parser) qualify(name string) string {
	if strings.HasPrefix(name, ".") && p.namespace != "" {
		return p.namespace + name
	}
	return name
}

func (p *Parser) parseDottedName() (string, *Error) {
	var sb strings.Builder
	if p.skip(lexer.TokenDot) {
		sb.WriteByte('.')
	}
	ident, err := p.expectIdent("name")
	if err != nil {
		return "", err
	}
	sb.WriteString(ident)
	for p.matches(lexer.TokenDot) {
		if next := p.peek(1); next == nil || next.Type != lexer.TokenIdent {
			break
		}
		p.advance()
		sb.WriteByte('.')
		sb.WriteString(p.advance().Value)
	}
	return sb.String(), nil
}

type attribute struct {
	name      string
	value     string
	span      Span
	valueSpan Span
}

func (p *Parser) parseAttributes() ([]attribute, *Error) {
	var attrs []attribute
	for p.matches(lexer.TokenIdent) {
		next := p.peek(1)
		if next == nil || next.Type != lexer.TokenAssign {
			break
		}
		nameTok := p.advance()
		p.advance()
		valueTok, err := p.expect(lexer.TokenAttrString, "quoted attribute value")
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{
			name:      nameTok.Value,
			value:     valueTok.Value,
			span:      nameTok.Span.Join(valueTok.Span),
			valueSpan: valueTok.Span,
		})
	}
	return attrs, nil
}

// parseAttrExpression parses the value of an attribute as an expression.
func (p *Parser) parseAttrExpression(attr attribute) (Expr, *Error) {
	// skip the opening quote
	start := attr.valueSpan.Start()
	origin := syntax.Pos{Line: start.Line, Col: start.Col + 1, Offset: start.Offset + 1}
	tokens, err := lexer.TokenizeExpression(attr.value, origin)
	if err != nil {
		return nil, convertLexError(err, p.filename)
	}
	if len(tokens) == 0 {
		return nil, p.errorAt(ErrSyntax, attr.span, fmt.Sprintf("empty `%s` attribute", attr.name))
	}
	sub := &Parser{tokens: tokens, filename: p.filename, namespace: p.namespace, depth: p.depth}
	expr, perr := sub.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if tok := sub.current(); tok != nil {
		return nil, sub.unexpected(tok, "end of expression")
	}
	return expr, nil
}

// --- Statements ---

// subparse collects statements until a tag accepted by end. The ending tag
// is left for the caller. what names the enclosing block for errors about a
// missing end; it is empty for the top level.
func (p *Parser) subparse(end endCheck, what string, open Span) ([]Stmt, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum nesting depth")
	}
	defer func() { p.depth-- }()
	if what != "" {
		p.blocks = append(p.blocks, what)
		defer func() { p.blocks = p.blocks[:len(p.blocks)-1] }()
	}

	var stmts []Stmt
	for {
		tok := p.current()
		if tok == nil {
			if what != "" {
				return nil, p.errorAt(ErrUnterminatedBlock, open, fmt.Sprintf("unterminated {%s} block", what))
			}
			return normalizeWhitespace(stmts), nil
		}

		switch tok.Type {
		case lexer.TokenText:
			p.advance()
			stmts = append(stmts, &Text{Text: tok.Value, span: tok.Span})
		case lexer.TokenComment:
			p.advance()
			stmts = append(stmts, &Comment{Text: tok.Value, span: tok.Span})
		case lexer.TokenLiteral:
			p.advance()
			stmts = append(stmts, &Literal{Text: tok.Value, span: tok.Span})
		case lexer.TokenSpecial:
			p.advance()
			stmts = append(stmts, &Special{Char: tok.Value, span: tok.Span})
		case lexer.TokenTagStart, lexer.TokenCloseTagStart:
			cmd, closing := p.command()
			if end(closing, cmd) {
				return normalizeWhitespace(stmts), nil
			}
			if closing {
				if what != "" && isOpen(p.blocks[:len(p.blocks)-1], cmd) {
					return nil, p.errorAt(ErrUnterminatedBlock, open, fmt.Sprintf("unterminated {%s} block", what))
				}
				return nil, p.errorAt(ErrSyntax, tok.Span, fmt.Sprintf("unexpected {/%s}", cmd))
			}
			if cmd == "let" {
				bind, err := p.parseLet(end, what, open)
				if err != nil {
					return nil, err
				}
				stmts = append(stmts, bind)
				return normalizeWhitespace(stmts), nil
			}
			stmt, err := p.parseTag(cmd)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		default:
			return nil, p.unexpected(tok, "template text or tag")
		}
	}
}

// isOpen reports whether cmd names one of blocks. A closing tag for an
// outer block leaves every block inside it unterminated.
func isOpen(blocks []string, cmd string) bool {
	for _, name := range blocks {
		if name == cmd {
			return true
		}
	}
	return false
}

func (p *Parser) parseTag(cmd string) (Stmt, *Error) {
	switch cmd {
	case "print":
		return p.parsePrint()
	case "if":
		return p.parseIf()
	case "switch":
		return p.parseSwitch()
	case "foreach":
		return p.parseForeach()
	case "for":
		return p.parseFor()
	case "call":
		return p.parseCall()
	case "template", "namespace":
		return nil, p.errorAt(ErrSyntax, p.currentSpan(), fmt.Sprintf("{%s} is not allowed inside a template", cmd))
	case "":
		return p.parsePrint()
	}
	if blockCommands[cmd] {
		return nil, p.errorAt(ErrSyntax, p.currentSpan(), fmt.Sprintf("unexpected {%s}", cmd))
	}
	if next := p.peek(2); exprKeywords[cmd] || (next != nil && next.Type == lexer.TokenParenOpen) {
		return p.parsePrint()
	}
	return nil, p.errorAt(ErrUnknownCommand, p.peek(1).Span, fmt.Sprintf("unknown command {%s}", cmd))
}

func (p *Parser) parsePrint() (Stmt, *Error) {
	start := p.currentSpan()
	p.advance()
	if p.matchesKeyword("print") {
		p.advance()
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var directives []Directive
	for p.matches(lexer.TokenPipe) {
		dirStart := p.advance().Span
		name, err := p.expectIdent("directive name")
		if err != nil {
			return nil, err
		}
		var args []Expr
		if p.skip(lexer.TokenColon) {
			for {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.skip(lexer.TokenComma) {
					break
				}
			}
		}
		directives = append(directives, Directive{Name: name, Args: args, Span: p.expandSpan(dirStart)})
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}` or `|directive`"); err != nil {
		return nil, err
	}
	return &Print{Expr: expr, Directives: directives, span: p.expandSpan(start)}, nil
}

// openTag consumes `{cmd` of an opening tag.
func (p *Parser) openTag(cmd string) Span {
	start := p.advance().Span
	p.advance()
	return start
}

func (p *Parser) parseIf() (Stmt, *Error) {
	start := p.openTag("if")
	stmt := &If{}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}

	branchEnd := func(closing bool, cmd string) bool {
		return (closing && cmd == "if") || (!closing && (cmd == "elseif" || cmd == "else"))
	}
	for {
		body, err := p.subparse(branchEnd, "if", start)
		if err != nil {
			return nil, err
		}
		stmt.Branches = append(stmt.Branches, IfBranch{Cond: cond, Body: body})
		if !p.atCommand("elseif", false) {
			break
		}
		p.openTag("elseif")
		if cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
			return nil, err
		}
	}

	if p.atCommand("else", false) {
		if err := p.simpleTag("else", false); err != nil {
			return nil, err
		}
		body, err := p.subparse(func(closing bool, cmd string) bool {
			return closing && cmd == "if"
		}, "if", start)
		if err != nil {
			return nil, err
		}
		stmt.Else = body
	}
	if err := p.simpleTag("if", true); err != nil {
		return nil, err
	}
	stmt.span = p.expandSpan(start)
	return stmt, nil
}

func (p *Parser) parseSwitch() (Stmt, *Error) {
	start := p.openTag("switch")
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}
	stmt := &Switch{Subject: subject}

	caseEnd := func(closing bool, cmd string) bool {
		return (closing && cmd == "switch") || (!closing && (cmd == "case" || cmd == "default"))
	}
	for {
		if err := p.skipBlank(); err != nil {
			return nil, err
		}
		if p.current() == nil {
			return nil, p.errorAt(ErrUnterminatedBlock, start, "unterminated {switch} block")
		}
		cmd, closing := p.command()
		switch {
		case closing && cmd == "switch":
			if err := p.simpleTag("switch", true); err != nil {
				return nil, err
			}
			stmt.span = p.expandSpan(start)
			return stmt, nil
		case !closing && cmd == "case":
			if stmt.Default != nil {
				return nil, p.syntaxError("{case} after {default}")
			}
			p.openTag("case")
			var values []Expr
			for {
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				values = append(values, v)
				if !p.skip(lexer.TokenComma) {
					break
				}
			}
			if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
				return nil, err
			}
			body, err := p.subparse(caseEnd, "switch", start)
			if err != nil {
				return nil, err
			}
			stmt.Cases = append(stmt.Cases, SwitchCase{Values: values, Body: body})
		case !closing && cmd == "default":
			if stmt.Default != nil {
				return nil, p.syntaxError("duplicate {default}")
			}
			if err := p.simpleTag("default", false); err != nil {
				return nil, err
			}
			body, err := p.subparse(caseEnd, "switch", start)
			if err != nil {
				return nil, err
			}
			stmt.Default = body
		default:
			return nil, p.unexpected(p.current(), "{case}, {default} or {/switch}")
		}
	}
}

func (p *Parser) parseForeach() (Stmt, *Error) {
	start := p.openTag("foreach")
	item, err := p.expect(lexer.TokenVariable, "loop variable")
	if err != nil {
		return nil, err
	}
	stmt := &Foreach{Item: item.Value}
	if p.skip(lexer.TokenComma) {
		index, err := p.expect(lexer.TokenVariable, "index variable")
		if err != nil {
			return nil, err
		}
		stmt.Index = index.Value
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	if stmt.List, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}

	stmt.Body, err = p.subparse(func(closing bool, cmd string) bool {
		return (closing && cmd == "foreach") || (!closing && cmd == "ifempty")
	}, "foreach", start)
	if err != nil {
		return nil, err
	}
	if p.atCommand("ifempty", false) {
		if err := p.simpleTag("ifempty", false); err != nil {
			return nil, err
		}
		stmt.IfEmpty, err = p.subparse(func(closing bool, cmd string) bool {
			return closing && cmd == "foreach"
		}, "foreach", start)
		if err != nil {
			return nil, err
		}
	}
	if err := p.simpleTag("foreach", true); err != nil {
		return nil, err
	}
	stmt.span = p.expandSpan(start)
	return stmt, nil
}

func (p *Parser) parseFor() (Stmt, *Error) {
	start := p.openTag("for")
	v, err := p.expect(lexer.TokenVariable, "loop variable")
	if err != nil {
		return nil, err
	}
	stmt := &For{Var: v.Value}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	rangeSpan := p.currentSpan()
	if err := p.expectKeyword("range"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenParenOpen, "`(`"); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.matches(lexer.TokenParenClose) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance()
	switch len(args) {
	case 1:
		stmt.From = &Const{Value: value.FromInt(0), span: rangeSpan}
		stmt.To = args[0]
	case 2:
		stmt.From, stmt.To = args[0], args[1]
	case 3:
		stmt.From, stmt.To, stmt.By = args[0], args[1], args[2]
	default:
		return nil, p.errorAt(ErrSyntax, p.expandSpan(rangeSpan), "range expects 1 to 3 arguments")
	}
	if _, err := p.expect(lexer.TokenTagEnd, "`}`"); err != nil {
		return nil, err
	}

	stmt.Body, err = p.subparse(func(closing bool, cmd string) bool {
		return closing && cmd == "for"
	}, "for", start)
	if err != nil {
		return nil, err
	}
	if err := p.simpleTag("for", true); err != nil {
		return nil, err
	}
	stmt.span = p.expandSpan(start)
	return stmt, nil
}

// parseLet parses {let $name: expr /}. The binding covers the rest of the
// enclosing block, which becomes its body.
func (p *Parser) parseLet(end endCheck, what string, open Span) (Stmt, *Error) {
	start := p.openTag("let")
	name, err := p.expect(lexer.TokenVariable, "variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenColon, "`:`"); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenSelfClose, "`/}`"); err != nil {
		return nil, err
	}
	span := p.expandSpan(start)
	// the rest of the block is not nested deeper in the source
	p.depth--
	body, err := p.subparse(end, what, open)
	p.depth++
	if err != nil {
		return nil, err
	}
	return &LocalBind{Name: name.Value, Value: val, Body: body, span: span}, nil
}

func (p *Parser) parseCall() (Stmt, *Error) {
	start := p.openTag("call")
	stmt := &Call{}

	if next := p.peek(1); p.matchesKeyword("name") && next != nil && next.Type == lexer.TokenAssign {
		attrs, err := p.parseAttributes()
		if err != nil {
			return nil, err
		}
		if err := p.applyCallAttrs(stmt, attrs); err != nil {
			return nil, err
		}
		if stmt.NameExpr == nil {
			return nil, p.syntaxError("missing template name")
		}
	} else {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		stmt.Name = p.qualify(name)
		attrs, err := p.parseAttributes()
		if err != nil {
			return nil, err
		}
		if err := p.applyCallAttrs(stmt, attrs); err != nil {
			return nil, err
		}
	}

	if !p.skip(lexer.TokenSelfClose) {
		if _, err := p.expect(lexer.TokenTagEnd, "`}` or `/}`"); err != nil {
			return nil, err
		}
		p.blocks = append(p.blocks, "call")
		defer func() { p.blocks = p.blocks[:len(p.blocks)-1] }()
		for {
			if err := p.skipBlank(); err != nil {
				return nil, err
			}
			if p.current() == nil {
				return nil, p.errorAt(ErrUnterminatedBlock, start, "unterminated {call} block")
			}
			if p.atCommand("call", true) {
				if err := p.simpleTag("call", true); err != nil {
					return nil, err
				}
				break
			}
			if cmd, closing := p.command(); closing && isOpen(p.blocks, cmd) {
				return nil, p.errorAt(ErrUnterminatedBlock, start, "unterminated {call} block")
			}
			if !p.atCommand("param", false) {
				return nil, p.unexpected(p.current(), "{param} or {/call}")
			}
			param, err := p.parseParam()
			if err != nil {
				return nil, err
			}
			stmt.Params = append(stmt.Params, param)
		}
	}

	if stmt.Data == DataNone && len(stmt.Params) > 0 {
		stmt.Data = DataExplicit
	}
	stmt.span = p.expandSpan(start)
	return stmt, nil
}

func (p *Parser) applyCallAttrs(stmt *Call, attrs []attribute) *Error {
	for _, attr := range attrs {
		switch attr.name {
		case "name":
			expr, err := p.parseAttrExpression(attr)
			if err != nil {
				return err
			}
			stmt.NameExpr = expr
		case "data":
			if attr.value == "all" {
				stmt.Data = DataAll
				continue
			}
			expr, err := p.parseAttrExpression(attr)
			if err != nil {
				return err
			}
			stmt.Data = DataExpr
			stmt.DataExpr = expr
		default:
			return p.errorAt(ErrSyntax, attr.span, fmt.Sprintf("unknown call attribute `%s`", attr.name))
		}
	}
	return nil
}

func (p *Parser) parseParam() (Param, *Error) {
	start := p.openTag("param")
	name, err := p.expectIdent("parameter name")
	if err != nil {
		return Param{}, err
	}
	param := Param{Name: name}
	if p.skip(lexer.TokenColon) {
		if param.Value, err = p.parseExpr(); err != nil {
			return Param{}, err
		}
		if _, err := p.expect(lexer.TokenSelfClose, "`/}`"); err != nil {
			return Param{}, err
		}
		param.Span = p.expandSpan(start)
		return param, nil
	}

	if _, err := p.expect(lexer.TokenTagEnd, "`:` or `}`"); err != nil {
		return Param{}, err
	}
	param.Body, err = p.subparse(func(closing bool, cmd string) bool {
		return closing && cmd == "param"
	}, "param", start)
	if err != nil {
		return Param{}, err
	}
	if err := p.simpleTag("param", true); err != nil {
		return Param{}, err
	}
	param.Span = p.expandSpan(start)
	return param, nil
}

// --- Expressions ---

func (p *Parser) parseExpr() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("expression exceeds maximum nesting depth")
	}
	defer func() { p.depth-- }()
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Expr, *Error) {
	span := p.currentSpan()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.skip(lexer.TokenQuestion) {
		return cond, nil
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenColon, "`:`"); err != nil {
		return nil, err
	}
	otherwise, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Ternary{Cond: cond, Then: then, Else: otherwise, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseOr() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpOr, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("and") {
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpAnd, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseEquality() (Expr, *Error) {
	return p.parseBinary(p.parseRelational, map[lexer.TokenType]BinOpKind{
		lexer.TokenEq: BinOpEq,
		lexer.TokenNe: BinOpNe,
	})
}

func (p *Parser) parseRelational() (Expr, *Error) {
	return p.parseBinary(p.parseAdditive, map[lexer.TokenType]BinOpKind{
		lexer.TokenLt: BinOpLt,
		lexer.TokenLe: BinOpLte,
		lexer.TokenGt: BinOpGt,
		lexer.TokenGe: BinOpGte,
	})
}

func (p *Parser) parseAdditive() (Expr, *Error) {
	return p.parseBinary(p.parseMultiplicative, map[lexer.TokenType]BinOpKind{
		lexer.TokenPlus:  BinOpAdd,
		lexer.TokenMinus: BinOpSub,
	})
}

func (p *Parser) parseMultiplicative() (Expr, *Error) {
	return p.parseBinary(p.parseUnary, map[lexer.TokenType]BinOpKind{
		lexer.TokenMul: BinOpMul,
		lexer.TokenDiv: BinOpDiv,
		lexer.TokenMod: BinOpRem,
	})
}

// parseBinary parses a left-associative chain of the given operators.
func (p *Parser) parseBinary(next func() (Expr, *Error), ops map[lexer.TokenType]BinOpKind) (Expr, *Error) {
	span := p.currentSpan()
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		if tok == nil {
			return left, nil
		}
		op, ok := ops[tok.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseUnary() (Expr, *Error) {
	span := p.currentSpan()
	switch {
	case p.skip(lexer.TokenMinus):
		operand, err := p.parseUnaryNested()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNeg, Expr: operand, span: p.expandSpan(span)}, nil
	case p.skipKeyword("not"):
		operand, err := p.parseUnaryNested()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNot, Expr: operand, span: p.expandSpan(span)}, nil
	}
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(expr, span)
}

func (p *Parser) parseUnaryNested() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("expression exceeds maximum nesting depth")
	}
	defer func() { p.depth-- }()
	return p.parseUnary()
}

func (p *Parser) parsePostfix(expr Expr, span Span) (Expr, *Error) {
	for {
		switch {
		case p.skip(lexer.TokenDot):
			tok := p.advance()
			if tok == nil {
				return nil, p.unexpectedEOF("attribute name")
			}
			if tok.Type != lexer.TokenIdent && tok.Type != lexer.TokenInteger {
				return nil, p.unexpected(tok, "attribute name or index")
			}
			expr = &GetAttr{Expr: expr, Name: tok.Value, span: p.expandSpan(span)}
		case p.skip(lexer.TokenBracketOpen):
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
				return nil, err
			}
			expr = &GetItem{Expr: expr, Index: index, span: p.expandSpan(span)}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("expression")
	}
	span := tok.Span

	switch tok.Type {
	case lexer.TokenVariable:
		return &Var{Name: tok.Value, span: span}, nil
	case lexer.TokenString:
		return &Const{Value: value.FromString(tok.Value), span: span}, nil
	case lexer.TokenInteger:
		return p.parseInteger(tok)
	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorAt(ErrSyntax, span, fmt.Sprintf("invalid number %s", tok.Value))
		}
		return &Const{Value: value.FromFloat(f), span: span}, nil
	case lexer.TokenIdent:
		switch tok.Value {
		case "true":
			return &Const{Value: value.FromBool(true), span: span}, nil
		case "false":
			return &Const{Value: value.FromBool(false), span: span}, nil
		case "null":
			return &Const{Value: value.None(), span: span}, nil
		}
		if p.matches(lexer.TokenParenOpen) {
			return p.parseCallArgs(tok.Value, span)
		}
		return nil, p.errorAt(ErrSyntax, span, fmt.Sprintf("unexpected identifier `%s`, variables start with `$`", tok.Value))
	case lexer.TokenParenOpen:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.TokenBracketOpen:
		return p.parseListOrMap(span)
	}
	return nil, p.unexpected(tok, "expression")
}

func (p *Parser) parseInteger(tok *lexer.Token) (Expr, *Error) {
	if n, err := strconv.ParseInt(tok.Value, 0, 64); err == nil {
		return &Const{Value: value.FromInt(n), span: tok.Span}, nil
	}
	f, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, p.errorAt(ErrSyntax, tok.Span, fmt.Sprintf("invalid number %s", tok.Value))
	}
	return &Const{Value: value.FromFloat(f), span: tok.Span}, nil
}

func (p *Parser) parseCallArgs(name string, span Span) (Expr, *Error) {
	p.advance()
	var args []Expr
	for !p.matches(lexer.TokenParenClose) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,` or `)`"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance()
	return &FuncCall{Name: name, Args: args, span: p.expandSpan(span)}, nil
}

// parseListOrMap parses [a, b], ['k': v] and the empty map [:].
func (p *Parser) parseListOrMap(span Span) (Expr, *Error) {
	if p.skip(lexer.TokenColon) {
		if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
			return nil, err
		}
		return &Map{span: p.expandSpan(span)}, nil
	}
	if p.skip(lexer.TokenBracketClose) {
		return &List{span: p.expandSpan(span)}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.skip(lexer.TokenColon) {
		m := &Map{}
		key := first
		for {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			m.Keys = append(m.Keys, key)
			m.Values = append(m.Values, val)
			if !p.skip(lexer.TokenComma) || p.matches(lexer.TokenBracketClose) {
				break
			}
			if key, err = p.parseExpr(); err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenColon, "`:`"); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
			return nil, err
		}
		m.span = p.expandSpan(span)
		return m, nil
	}

	items := []Expr{first}
	for p.skip(lexer.TokenComma) {
		if p.matches(lexer.TokenBracketClose) {
			break
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
		return nil, err
	}
	return &List{Items: items, span: p.expandSpan(span)}, nil
}
