// Package lexer provides tokenization for Closure-style templates.
package lexer

import (
	"fmt"

	"github.com/archimag/soy-go/syntax"
)

// TokenType represents the type of a token.
type TokenType int

const (
	// Template level
	TokenText TokenType = iota // raw text between tags
	TokenComment               // // line or /* block */ comment
	TokenLiteral               // body of {literal}...{/literal}
	TokenSpecial               // {sp} {nil} {\n} {\r} {\t} {lb} {rb}
	TokenTagStart              // {
	TokenCloseTagStart         // {/
	TokenTagEnd                // }
	TokenSelfClose             // /}

	// Literals
	TokenIdent      // identifier or keyword
	TokenVariable   // $name
	TokenString     // 'string'
	TokenAttrString // "attribute value"
	TokenInteger    // 123 or 0x1F
	TokenFloat      // 1.5e3

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenMul      // *
	TokenDiv      // /
	TokenMod      // %
	TokenEq       // ==
	TokenNe       // !=
	TokenLt       // <
	TokenLe       // <=
	TokenGt       // >
	TokenGe       // >=
	TokenQuestion // ?
	TokenColon    // :
	TokenAssign   // =
	TokenPipe     // |

	// Punctuation
	TokenDot          // .
	TokenComma        // ,
	TokenParenOpen    // (
	TokenParenClose   // )
	TokenBracketOpen  // [
	TokenBracketClose // ]

	TokenEOF
)

var tokenNames = map[TokenType]string{
	TokenText:          "text",
	TokenComment:       "comment",
	TokenLiteral:       "literal",
	TokenSpecial:       "special character",
	TokenTagStart:      "`{`",
	TokenCloseTagStart: "`{/`",
	TokenTagEnd:        "`}`",
	TokenSelfClose:     "`/}`",
	TokenIdent:         "identifier",
	TokenVariable:      "variable",
	TokenString:        "string",
	TokenAttrString:    "attribute string",
	TokenInteger:       "integer",
	TokenFloat:         "float",
	TokenPlus:          "`+`",
	TokenMinus:         "`-`",
	TokenMul:           "`*`",
	TokenDiv:           "`/`",
	TokenMod:           "`%`",
	TokenEq:            "`==`",
	TokenNe:            "`!=`",
	TokenLt:            "`<`",
	TokenLe:            "`<=`",
	TokenGt:            "`>`",
	TokenGe:            "`>=`",
	TokenQuestion:      "`?`",
	TokenColon:         "`:`",
	TokenAssign:        "`=`",
	TokenPipe:          "`|`",
	TokenDot:           "`.`",
	TokenComma:         "`,`",
	TokenParenOpen:     "`(`",
	TokenParenClose:    "`)`",
	TokenBracketOpen:   "`[`",
	TokenBracketClose:  "`]`",
	TokenEOF:           "end of input",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a single token from the lexer.
type Token struct {
	Type  TokenType
	Value string // identifier name, decoded string, number text or raw text
	Span  Span
}

func (t Token) String() string {
	switch t.Type {
	case TokenText, TokenComment, TokenLiteral, TokenSpecial, TokenString, TokenAttrString:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	case TokenIdent, TokenVariable, TokenInteger, TokenFloat:
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Span represents a location range in source code.
type Span = syntax.Span

// Error is a tokenization failure.
type Error struct {
	Msg  string
	Span Span
	// Unterminated is set when the input ended inside a tag, string,
	// comment or literal block.
	Unterminated bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at line %d, col %d: %s", e.Span.StartLine, e.Span.StartCol, e.Msg)
}
