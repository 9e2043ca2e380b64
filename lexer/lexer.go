package lexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/archimag/soy-go/syntax"
)

type lexerState int

const (
	stateText lexerState = iota
	stateTag
)

var specialChars = []struct {
	tag   string
	value string
}{
	{"{sp}", " "},
	{"{nil}", ""},
	{"{\\r}", "\r"},
	{"{\\n}", "\n"},
	{"{\\t}", "\t"},
	{"{lb}", "{"},
	{"{rb}", "}"},
}

const (
	literalOpen  = "{literal}"
	literalClose = "{/literal}"
)

// Lexer tokenizes template source code.
type Lexer struct {
	source    string
	pos       int // current position in source
	start     int // start position of current token
	line      uint16
	col       uint16
	startLine uint16
	startCol  uint16
	base      uint32 // offset of source within the enclosing file

	state    lexerState
	exprOnly bool
	runStart int  // position where the current text run began
	tagSpan  Span // opening of the tag being lexed, for unterminated tag errors
	prev     TokenType
}

// New creates a lexer over a whole template file.
func New(input string) *Lexer {
	return &Lexer{
		source: input,
		line:   1,
		state:  stateText,
		prev:   TokenEOF,
	}
}

// NewExpression creates a lexer for a bare expression, such as the value of
// a tag attribute. Positions are reported relative to origin.
func NewExpression(input string, origin syntax.Pos) *Lexer {
	return &Lexer{
		source:   input,
		line:     origin.Line,
		col:      origin.Col,
		base:     origin.Offset,
		state:    stateTag,
		exprOnly: true,
		prev:     TokenEOF,
	}
}

// Tokenize returns all tokens of a template file.
func Tokenize(input string) ([]Token, error) {
	return New(input).All()
}

// TokenizeExpression returns all tokens of a bare expression.
func TokenizeExpression(input string, origin syntax.Pos) ([]Token, error) {
	return NewExpression(input, origin).All()
}

// All collects all tokens into a slice.
func (l *Lexer) All() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

// Next returns the next token, or nil at end of input.
func (l *Lexer) Next() (*Token, error) {
	for {
		if l.state == stateTag {
			l.skipWhitespace()
		}
		if l.atEnd() {
			if l.state == stateTag && !l.exprOnly {
				return nil, &Error{Msg: "unterminated tag", Span: l.tagSpan, Unterminated: true}
			}
			return nil, nil
		}

		var tok *Token
		var cont bool
		var err error
		switch l.state {
		case stateText:
			tok, cont, err = l.tokenizeText()
		case stateTag:
			tok, cont, err = l.tokenizeTag()
		}
		if err != nil {
			return nil, err
		}
		if cont {
			continue
		}
		if tok != nil {
			l.prev = tok.Type
			return tok, nil
		}
	}
}

func (l *Lexer) tokenizeText() (*Token, bool, error) {
	l.markStart()
	rest := l.rest()

	if rest[0] == '{' {
		return l.tokenizeTagOpen()
	}

	i := 0
	for i < len(rest) {
		c := rest[i]
		if c == '{' {
			break
		}
		if c == '}' {
			l.advance(i)
			l.markStart()
			l.advance(1)
			return nil, false, l.syntaxError("unexpected `}` in text, use {rb}")
		}
		if c == '/' && l.commentAt(l.pos+i) {
			if i == 0 {
				return l.lexComment()
			}
			text := strings.TrimRightFunc(rest[:i], isSpaceRune)
			l.advance(len(text))
			tok := l.makeToken(TokenText, text)
			// whitespace in front of a comment belongs to the comment
			l.advance(i - len(text))
			if text == "" {
				return nil, true, nil
			}
			return &tok, false, nil
		}
		i++
	}

	l.advance(i)
	tok := l.makeToken(TokenText, rest[:i])
	return &tok, false, nil
}

// commentAt reports whether a comment opens at pos. Comments must start a
// text run or follow whitespace, so "http://" is not a comment.
func (l *Lexer) commentAt(pos int) bool {
	if pos+1 >= len(l.source) {
		return false
	}
	next := l.source[pos+1]
	if next != '/' && next != '*' {
		return false
	}
	return pos == l.runStart || isSpace(l.source[pos-1])
}

func (l *Lexer) lexComment() (*Token, bool, error) {
	rest := l.rest()
	if strings.HasPrefix(rest, "//") {
		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			end = len(rest)
		}
		l.advance(end)
		tok := l.makeToken(TokenComment, strings.TrimSpace(rest[2:end]))
		return &tok, false, nil
	}

	end := strings.Index(rest[2:], "*/")
	if end < 0 {
		l.advance(2)
		return nil, false, l.unterminated("unterminated comment")
	}
	l.advance(end + 4)
	tok := l.makeToken(TokenComment, strings.TrimSpace(rest[2:end+2]))
	return &tok, false, nil
}

func (l *Lexer) tokenizeTagOpen() (*Token, bool, error) {
	rest := l.rest()

	if strings.HasPrefix(rest, literalOpen) {
		body := rest[len(literalOpen):]
		end := strings.Index(body, literalClose)
		if end < 0 {
			l.advance(len(literalOpen))
			return nil, false, l.unterminated("unterminated {literal} block")
		}
		l.advance(len(literalOpen) + end + len(literalClose))
		tok := l.makeToken(TokenLiteral, body[:end])
		l.runStart = l.pos
		return &tok, false, nil
	}

	for _, special := range specialChars {
		if strings.HasPrefix(rest, special.tag) {
			l.advance(len(special.tag))
			tok := l.makeToken(TokenSpecial, special.value)
			l.runStart = l.pos
			return &tok, false, nil
		}
	}

	typ := TokenTagStart
	if strings.HasPrefix(rest, "{/") {
		typ = TokenCloseTagStart
		l.advance(2)
	} else {
		l.advance(1)
	}
	tok := l.makeToken(typ, "")
	l.tagSpan = tok.Span
	l.state = stateTag
	return &tok, false, nil
}

func (l *Lexer) tokenizeTag() (*Token, bool, error) {
	l.markStart()
	rest := l.rest()
	c := rest[0]

	switch {
	case c == '}':
		if l.exprOnly {
			l.advance(1)
			return nil, false, l.syntaxError("unexpected `}`")
		}
		return l.closeTag(1, TokenTagEnd)
	case c == '/' && len(rest) > 1 && rest[1] == '}' && !l.exprOnly:
		return l.closeTag(2, TokenSelfClose)
	case c == '$':
		return l.lexVariable()
	case c == '\'':
		return l.lexString()
	case c == '"':
		return l.lexAttrString()
	case isDigit(c):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	case c == '{':
		l.advance(1)
		return nil, false, l.syntaxError("unexpected `{` inside tag")
	}

	if len(rest) > 1 {
		var typ TokenType
		switch rest[:2] {
		case "==":
			typ = TokenEq
		case "!=":
			typ = TokenNe
		case "<=":
			typ = TokenLe
		case ">=":
			typ = TokenGe
		}
		if typ != TokenText {
			l.advance(2)
			tok := l.makeToken(typ, rest[:2])
			return &tok, false, nil
		}
	}

	var typ TokenType
	switch c {
	case '+':
		typ = TokenPlus
	case '-':
		typ = TokenMinus
	case '*':
		typ = TokenMul
	case '/':
		typ = TokenDiv
	case '%':
		typ = TokenMod
	case '<':
		typ = TokenLt
	case '>':
		typ = TokenGt
	case '?':
		typ = TokenQuestion
	case ':':
		typ = TokenColon
	case '=':
		typ = TokenAssign
	case '|':
		typ = TokenPipe
	case '.':
		typ = TokenDot
	case ',':
		typ = TokenComma
	case '(':
		typ = TokenParenOpen
	case ')':
		typ = TokenParenClose
	case '[':
		typ = TokenBracketOpen
	case ']':
		typ = TokenBracketClose
	default:
		r, size := utf8.DecodeRuneInString(rest)
		l.advance(size)
		return nil, false, l.syntaxError("unexpected character " + strconv.QuoteRune(r))
	}
	l.advance(1)
	tok := l.makeToken(typ, rest[:1])
	return &tok, false, nil
}

func (l *Lexer) closeTag(width int, typ TokenType) (*Token, bool, error) {
	l.advance(width)
	tok := l.makeToken(typ, "")
	l.state = stateText
	l.runStart = l.pos
	return &tok, false, nil
}

func (l *Lexer) lexVariable() (*Token, bool, error) {
	l.advance(1)
	rest := l.rest()
	if rest == "" || !isIdentStart(rest[0]) {
		return nil, false, l.syntaxError("expected variable name after `$`")
	}
	n := identLength(rest)
	l.advance(n)
	tok := l.makeToken(TokenVariable, rest[:n])
	return &tok, false, nil
}

func (l *Lexer) lexIdent() (*Token, bool, error) {
	rest := l.rest()
	n := identLength(rest)
	l.advance(n)
	tok := l.makeToken(TokenIdent, rest[:n])
	return &tok, false, nil
}

func (l *Lexer) lexString() (*Token, bool, error) {
	l.advance(1) // skip opening quote

	var sb strings.Builder
	for !l.atEnd() {
		ch := l.rest()[0]
		if ch == '\'' {
			l.advance(1)
			tok := l.makeToken(TokenString, sb.String())
			return &tok, false, nil
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			l.advance(1)
			continue
		}

		l.advance(1)
		if l.atEnd() {
			break
		}
		escaped := l.rest()[0]
		l.advance(1)
		switch escaped {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '\\', '\'', '"':
			sb.WriteByte(escaped)
		case 'u':
			if len(l.rest()) < 4 {
				return nil, false, l.syntaxError("invalid unicode escape")
			}
			val, err := strconv.ParseUint(l.rest()[:4], 16, 32)
			if err != nil {
				return nil, false, l.syntaxError("invalid unicode escape")
			}
			sb.WriteRune(rune(val))
			l.advance(4)
		default:
			return nil, false, l.syntaxError("invalid escape sequence \\" + string(escaped))
		}
	}
	return nil, false, l.unterminated("unexpected end of string")
}

// lexAttrString lexes a double quoted attribute value. The content is kept
// raw; expression-valued attributes are tokenized again by the parser.
func (l *Lexer) lexAttrString() (*Token, bool, error) {
	rest := l.rest()
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		l.advance(len(rest))
		return nil, false, l.unterminated("unterminated attribute string")
	}
	l.advance(end + 2)
	tok := l.makeToken(TokenAttrString, rest[1:end+1])
	return &tok, false, nil
}

// lexNumber lexes decimal, hex and float literals. Directly after a dot only
// an integer is read so that $list.1.2 is two index steps.
func (l *Lexer) lexNumber() (*Token, bool, error) {
	rest := l.rest()

	if len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		n := 2
		for n < len(rest) && isHexDigit(rest[n]) {
			n++
		}
		if n == 2 {
			l.advance(2)
			return nil, false, l.syntaxError("invalid hex literal")
		}
		l.advance(n)
		tok := l.makeToken(TokenInteger, rest[:n])
		return &tok, false, nil
	}

	n := digitsLength(rest)
	typ := TokenInteger
	if l.prev != TokenDot {
		if n+1 < len(rest) && rest[n] == '.' && isDigit(rest[n+1]) {
			n += 1 + digitsLength(rest[n+1:])
			typ = TokenFloat
		}
		if n < len(rest) && (rest[n] == 'e' || rest[n] == 'E') {
			m := n + 1
			if m < len(rest) && (rest[m] == '+' || rest[m] == '-') {
				m++
			}
			if m < len(rest) && isDigit(rest[m]) {
				n = m + digitsLength(rest[m:])
				typ = TokenFloat
			}
		}
	}
	l.advance(n)
	tok := l.makeToken(typ, rest[:n])
	return &tok, false, nil
}

// Helper methods

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) rest() string {
	if l.pos >= len(l.source) {
		return ""
	}
	return l.source[l.pos:]
}

func (l *Lexer) advance(n int) string {
	if n <= 0 {
		return ""
	}
	start := l.pos
	end := l.pos + n
	if end > len(l.source) {
		end = len(l.source)
	}

	skipped := l.source[start:end]
	for _, c := range skipped {
		if c == '\n' {
			l.line++
			l.col = 0
		} else if l.col < 65535 {
			l.col++
		}
	}
	l.pos = end
	return skipped
}

func (l *Lexer) markStart() {
	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) span() Span {
	return Span{
		StartLine:   l.startLine,
		StartCol:    l.startCol,
		StartOffset: l.base + uint32(l.start),
		EndLine:     l.line,
		EndCol:      l.col,
		EndOffset:   l.base + uint32(l.pos),
	}
}

func (l *Lexer) makeToken(typ TokenType, value string) Token {
	return Token{
		Type:  typ,
		Value: value,
		Span:  l.span(),
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() && isSpace(l.rest()[0]) {
		l.advance(1)
	}
}

func (l *Lexer) syntaxError(msg string) error {
	return &Error{Msg: msg, Span: l.span()}
}

func (l *Lexer) unterminated(msg string) error {
	return &Error{Msg: msg, Span: l.span(), Unterminated: true}
}

func identLength(s string) int {
	n := 0
	for n < len(s) && isIdentPart(s[n]) {
		n++
	}
	return n
}

func digitsLength(s string) int {
	n := 0
	for n < len(s) && isDigit(s[n]) {
		n++
	}
	return n
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isSpaceRune(r rune) bool {
	return r < utf8.RuneSelf && isSpace(byte(r))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
