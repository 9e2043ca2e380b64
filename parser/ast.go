package parser

import (
	"fmt"
	"strings"

	"github.com/archimag/soy-go/lexer"
	"github.com/archimag/soy-go/value"
)

// Span represents a location range in source code.
type Span = lexer.Span

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
	Span() Span
}

// Stmt represents a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr represents an expression node.
type Expr interface {
	Node
	expr()
}

// --- Files and templates ---

// File is a parsed template file: a namespace and its templates.
type File struct {
	Name      string
	Namespace string
	Templates []*Template
	span      Span
}

func (f *File) node()      {}
func (f *File) Span() Span { return f.span }

// Template is a single named template.
type Template struct {
	// Name is the fully qualified name the template is registered under.
	Name       string
	Namespace  string
	AutoEscape bool
	Private    bool
	Body       []Stmt
	span       Span
}

func (t *Template) node()      {}
func (t *Template) Span() Span { return t.span }

// --- Statement types ---

// Text outputs literal template text after whitespace joining.
type Text struct {
	Text string
	span Span
}

func (t *Text) node()      {}
func (t *Text) stmt()      {}
func (t *Text) Span() Span { return t.span }

// Literal outputs the verbatim content of a {literal} block.
type Literal struct {
	Text string
	span Span
}

func (l *Literal) node()      {}
func (l *Literal) stmt()      {}
func (l *Literal) Span() Span { return l.span }

// Special outputs a character written as a command, such as {sp} or {lb}.
type Special struct {
	Char string
	span Span
}

func (s *Special) node()      {}
func (s *Special) stmt()      {}
func (s *Special) Span() Span { return s.span }

// Comment is inert.
type Comment struct {
	Text string
	span Span
}

func (c *Comment) node()      {}
func (c *Comment) stmt()      {}
func (c *Comment) Span() Span { return c.span }

// Print evaluates an expression and outputs it through a directive
// pipeline.
type Print struct {
	Expr       Expr
	Directives []Directive
	span       Span
}

func (p *Print) node()      {}
func (p *Print) stmt()      {}
func (p *Print) Span() Span { return p.span }

// Directive is a single |name or |name:arg entry of a print tag.
type Directive struct {
	Name string
	Args []Expr
	Span Span
}

// If runs the body of the first branch with a truthy condition.
type If struct {
	Branches []IfBranch
	Else     []Stmt
	span     Span
}

// IfBranch is an {if} or {elseif} branch.
type IfBranch struct {
	Cond Expr
	Body []Stmt
}

func (i *If) node()      {}
func (i *If) stmt()      {}
func (i *If) Span() Span { return i.span }

// Switch runs the body of the first case matching the subject.
type Switch struct {
	Subject Expr
	Cases   []SwitchCase
	Default []Stmt
	span    Span
}

// SwitchCase matches when any of its values equals the subject.
type SwitchCase struct {
	Values []Expr
	Body   []Stmt
}

func (s *Switch) node()      {}
func (s *Switch) stmt()      {}
func (s *Switch) Span() Span { return s.span }

// Foreach iterates over a list.
type Foreach struct {
	Item    string
	Index   string // optional
	List    Expr
	Body    []Stmt
	IfEmpty []Stmt
	span    Span
}

func (f *Foreach) node()      {}
func (f *Foreach) stmt()      {}
func (f *Foreach) Span() Span { return f.span }

// For iterates a counter over range(from, to, by).
type For struct {
	Var  string
	From Expr
	To   Expr
	By   Expr // optional
	Body []Stmt
	span Span
}

func (f *For) node()      {}
func (f *For) stmt()      {}
func (f *For) Span() Span { return f.span }

// LocalBind binds a name for the duration of its body.
type LocalBind struct {
	Name  string
	Value Expr
	Body  []Stmt
	span  Span
}

func (l *LocalBind) node()      {}
func (l *LocalBind) stmt()      {}
func (l *LocalBind) Span() Span { return l.span }

// DataMode selects what a called template sees as its data.
type DataMode int

const (
	// DataNone passes nothing but the listed params (there are none).
	DataNone DataMode = iota
	// DataAll passes the caller's data overlaid by the params.
	DataAll
	// DataExplicit passes only the listed params.
	DataExplicit
	// DataExpr passes the value of the data expression overlaid by the
	// params.
	DataExpr
)

func (m DataMode) String() string {
	switch m {
	case DataNone:
		return "none"
	case DataAll:
		return "all"
	case DataExplicit:
		return "explicit"
	case DataExpr:
		return "expr"
	default:
		return "unknown"
	}
}

// Call renders another template.
type Call struct {
	// Name is the qualified target. NameExpr is set instead for
	// {call name="expr"}.
	Name     string
	NameExpr Expr
	Data     DataMode
	DataExpr Expr
	Params   []Param
	span     Span
}

// Param is a {param} of a call. Either Value or Body is set.
type Param struct {
	Name  string
	Value Expr
	Body  []Stmt
	Span  Span
}

func (c *Call) node()      {}
func (c *Call) stmt()      {}
func (c *Call) Span() Span { return c.span }

// --- Expression types ---

// Var references a variable.
type Var struct {
	Name string
	span Span
}

func (v *Var) node()      {}
func (v *Var) expr()      {}
func (v *Var) Span() Span { return v.span }

// Const is a literal value.
type Const struct {
	Value value.Value
	span  Span
}

func (c *Const) node()      {}
func (c *Const) expr()      {}
func (c *Const) Span() Span { return c.span }

// List is a list literal.
type List struct {
	Items []Expr
	span  Span
}

func (l *List) node()      {}
func (l *List) expr()      {}
func (l *List) Span() Span { return l.span }

// Map is a map literal. Keys are evaluated and stringified.
type Map struct {
	Keys   []Expr
	Values []Expr
	span   Span
}

func (m *Map) node()      {}
func (m *Map) expr()      {}
func (m *Map) Span() Span { return m.span }

// UnaryOpKind is the operator of a UnaryOp.
type UnaryOpKind int

const (
	UnaryNot UnaryOpKind = iota
	UnaryNeg
)

// UnaryOp applies not or negation.
type UnaryOp struct {
	Op   UnaryOpKind
	Expr Expr
	span Span
}

func (u *UnaryOp) node()      {}
func (u *UnaryOp) expr()      {}
func (u *UnaryOp) Span() Span { return u.span }

// BinOpKind is the operator of a BinOp.
type BinOpKind int

const (
	BinOpEq BinOpKind = iota
	BinOpNe
	BinOpLt
	BinOpLte
	BinOpGt
	BinOpGte
	BinOpAnd
	BinOpOr
	BinOpAdd
	BinOpSub
	BinOpMul
	BinOpDiv
	BinOpRem
)

var binOpSymbols = [...]string{
	BinOpEq:  "==",
	BinOpNe:  "!=",
	BinOpLt:  "<",
	BinOpLte: "<=",
	BinOpGt:  ">",
	BinOpGte: ">=",
	BinOpAnd: "and",
	BinOpOr:  "or",
	BinOpAdd: "+",
	BinOpSub: "-",
	BinOpMul: "*",
	BinOpDiv: "/",
	BinOpRem: "%",
}

func (k BinOpKind) String() string {
	if int(k) < len(binOpSymbols) {
		return binOpSymbols[k]
	}
	return "?"
}

// BinOp is a binary operation.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
	span  Span
}

func (b *BinOp) node()      {}
func (b *BinOp) expr()      {}
func (b *BinOp) Span() Span { return b.span }

// Ternary is cond ? then : else.
type Ternary struct {
	Cond Expr
	Then Expr
	Else Expr
	span Span
}

func (t *Ternary) node()      {}
func (t *Ternary) expr()      {}
func (t *Ternary) Span() Span { return t.span }

// GetAttr is dotted access.
type GetAttr struct {
	Expr Expr
	Name string
	span Span
}

func (g *GetAttr) node()      {}
func (g *GetAttr) expr()      {}
func (g *GetAttr) Span() Span { return g.span }

// GetItem is bracket access.
type GetItem struct {
	Expr  Expr
	Index Expr
	span  Span
}

func (g *GetItem) node()      {}
func (g *GetItem) expr()      {}
func (g *GetItem) Span() Span { return g.span }

// FuncCall calls a built-in or registered function.
type FuncCall struct {
	Name string
	Args []Expr
	span Span
}

func (f *FuncCall) node()      {}
func (f *FuncCall) expr()      {}
func (f *FuncCall) Span() Span { return f.span }

// --- Debug formatting ---

// Dump renders statements in a compact single-line form used by tests and
// debugging tools.
func Dump(stmts []Stmt) string {
	parts := make([]string, len(stmts))
	for i, stmt := range stmts {
		parts[i] = dumpStmt(stmt)
	}
	return strings.Join(parts, " ")
}

// DumpExpr renders an expression in a compact, fully parenthesized form.
func DumpExpr(e Expr) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *Var:
		return "$" + x.Name
	case *Const:
		return x.Value.Repr()
	case *List:
		return "[" + dumpExprs(x.Items) + "]"
	case *Map:
		if len(x.Keys) == 0 {
			return "[:]"
		}
		parts := make([]string, len(x.Keys))
		for i := range x.Keys {
			parts[i] = DumpExpr(x.Keys[i]) + ": " + DumpExpr(x.Values[i])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *UnaryOp:
		if x.Op == UnaryNot {
			return "(not " + DumpExpr(x.Expr) + ")"
		}
		return "(-" + DumpExpr(x.Expr) + ")"
	case *BinOp:
		return "(" + DumpExpr(x.Left) + " " + x.Op.String() + " " + DumpExpr(x.Right) + ")"
	case *Ternary:
		return "(" + DumpExpr(x.Cond) + " ? " + DumpExpr(x.Then) + " : " + DumpExpr(x.Else) + ")"
	case *GetAttr:
		return DumpExpr(x.Expr) + "." + x.Name
	case *GetItem:
		return DumpExpr(x.Expr) + "[" + DumpExpr(x.Index) + "]"
	case *FuncCall:
		return x.Name + "(" + dumpExprs(x.Args) + ")"
	}
	return fmt.Sprintf("%T", e)
}

func dumpExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = DumpExpr(e)
	}
	return strings.Join(parts, ", ")
}

func dumpStmt(stmt Stmt) string {
	switch s := stmt.(type) {
	case *Text:
		return fmt.Sprintf("Text(%q)", s.Text)
	case *Literal:
		return fmt.Sprintf("Literal(%q)", s.Text)
	case *Special:
		return fmt.Sprintf("Special(%q)", s.Char)
	case *Comment:
		return "Comment"
	case *Print:
		var sb strings.Builder
		sb.WriteString("Print(")
		sb.WriteString(DumpExpr(s.Expr))
		for _, d := range s.Directives {
			sb.WriteString("|" + d.Name)
			if len(d.Args) > 0 {
				sb.WriteString(":" + dumpExprs(d.Args))
			}
		}
		sb.WriteString(")")
		return sb.String()
	case *If:
		var sb strings.Builder
		for i, br := range s.Branches {
			if i == 0 {
				sb.WriteString("If(")
			} else {
				sb.WriteString(" ElseIf(")
			}
			sb.WriteString(DumpExpr(br.Cond) + ") {" + Dump(br.Body) + "}")
		}
		if s.Else != nil {
			sb.WriteString(" Else {" + Dump(s.Else) + "}")
		}
		return sb.String()
	case *Switch:
		var sb strings.Builder
		sb.WriteString("Switch(" + DumpExpr(s.Subject) + ")")
		for _, c := range s.Cases {
			sb.WriteString(" Case(" + dumpExprs(c.Values) + ") {" + Dump(c.Body) + "}")
		}
		if s.Default != nil {
			sb.WriteString(" Default {" + Dump(s.Default) + "}")
		}
		return sb.String()
	case *Foreach:
		head := "$" + s.Item
		if s.Index != "" {
			head += ", $" + s.Index
		}
		out := "Foreach(" + head + " in " + DumpExpr(s.List) + ") {" + Dump(s.Body) + "}"
		if s.IfEmpty != nil {
			out += " IfEmpty {" + Dump(s.IfEmpty) + "}"
		}
		return out
	case *For:
		args := DumpExpr(s.From) + ", " + DumpExpr(s.To)
		if s.By != nil {
			args += ", " + DumpExpr(s.By)
		}
		return "For($" + s.Var + " in range(" + args + ")) {" + Dump(s.Body) + "}"
	case *LocalBind:
		return "Let($" + s.Name + ": " + DumpExpr(s.Value) + ") {" + Dump(s.Body) + "}"
	case *Call:
		name := s.Name
		if s.NameExpr != nil {
			name = DumpExpr(s.NameExpr)
		}
		out := "Call(" + name + ", " + s.Data.String()
		if s.DataExpr != nil {
			out += "=" + DumpExpr(s.DataExpr)
		}
		for _, p := range s.Params {
			if p.Value != nil {
				out += ", " + p.Name + ": " + DumpExpr(p.Value)
			} else {
				out += ", " + p.Name + " {" + Dump(p.Body) + "}"
			}
		}
		return out + ")"
	}
	return fmt.Sprintf("%T", stmt)
}
