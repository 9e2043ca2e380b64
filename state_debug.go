package soy

import (
	soyerrors "github.com/archimag/soy-go/internal/errors"
	"github.com/archimag/soy-go/parser"
	"github.com/archimag/soy-go/value"
)

// attachErrorInfo turns err into an *Error located at node. Fields already
// set by a more deeply nested node are kept.
func (s *State) attachErrorInfo(err error, node parser.Node) error {
	if err == nil {
		return nil
	}
	templErr := convertValueError(err)
	if s.tmpl != nil {
		if templErr.Name == "" {
			templErr.WithName(s.tmpl.name)
		}
		if templErr.Source == "" {
			templErr.WithSource(s.tmpl.source)
		}
	}
	if templErr.Span == nil && node != nil {
		templErr.WithSpan(node.Span())
	}
	if s.env.debug && templErr.DebugInfo == nil {
		templErr.WithDebugInfo(s.makeDebugInfo(node))
	}
	return templErr
}

func (s *State) makeDebugInfo(node parser.Node) soyerrors.DebugInfo {
	referenced := map[string]struct{}{}
	switch typed := node.(type) {
	case parser.Expr:
		collectReferencedNamesExpr(typed, referenced)
	case parser.Stmt:
		collectReferencedNamesStmt(typed, referenced)
	}

	locals := make(map[string]value.Value, len(referenced))
	for name := range referenced {
		if val := s.scope.resolve(name); !val.IsNone() {
			locals[name] = val
		}
	}

	info := soyerrors.DebugInfo{
		ReferencedLocals: locals,
		CallStack:        append([]string(nil), s.callStack...),
	}
	if s.tmpl != nil {
		info.TemplateSource = s.tmpl.source
	}
	return info
}

func collectReferencedNamesStmt(stmt parser.Stmt, referenced map[string]struct{}) {
	switch st := stmt.(type) {
	case *parser.Print:
		collectReferencedNamesExpr(st.Expr, referenced)
		for _, d := range st.Directives {
			collectReferencedNamesExprs(d.Args, referenced)
		}
	case *parser.If:
		for _, branch := range st.Branches {
			collectReferencedNamesExpr(branch.Cond, referenced)
		}
	case *parser.Switch:
		collectReferencedNamesExpr(st.Subject, referenced)
		for _, c := range st.Cases {
			collectReferencedNamesExprs(c.Values, referenced)
		}
	case *parser.Foreach:
		collectReferencedNamesExpr(st.List, referenced)
	case *parser.For:
		collectReferencedNamesExpr(st.From, referenced)
		collectReferencedNamesExpr(st.To, referenced)
		collectReferencedNamesExpr(st.By, referenced)
	case *parser.LocalBind:
		collectReferencedNamesExpr(st.Value, referenced)
	case *parser.Call:
		collectReferencedNamesExpr(st.NameExpr, referenced)
		collectReferencedNamesExpr(st.DataExpr, referenced)
		for _, p := range st.Params {
			collectReferencedNamesExpr(p.Value, referenced)
		}
	}
}

func collectReferencedNamesExprs(exprs []parser.Expr, referenced map[string]struct{}) {
	for _, expr := range exprs {
		collectReferencedNamesExpr(expr, referenced)
	}
}

func collectReferencedNamesExpr(expr parser.Expr, referenced map[string]struct{}) {
	if expr == nil {
		return
	}

	switch e := expr.(type) {
	case *parser.Var:
		referenced[e.Name] = struct{}{}
	case *parser.List:
		collectReferencedNamesExprs(e.Items, referenced)
	case *parser.Map:
		collectReferencedNamesExprs(e.Keys, referenced)
		collectReferencedNamesExprs(e.Values, referenced)
	case *parser.UnaryOp:
		collectReferencedNamesExpr(e.Expr, referenced)
	case *parser.BinOp:
		collectReferencedNamesExpr(e.Left, referenced)
		collectReferencedNamesExpr(e.Right, referenced)
	case *parser.Ternary:
		collectReferencedNamesExpr(e.Cond, referenced)
		collectReferencedNamesExpr(e.Then, referenced)
		collectReferencedNamesExpr(e.Else, referenced)
	case *parser.GetAttr:
		collectReferencedNamesExpr(e.Expr, referenced)
	case *parser.GetItem:
		collectReferencedNamesExpr(e.Expr, referenced)
		collectReferencedNamesExpr(e.Index, referenced)
	case *parser.FuncCall:
		collectReferencedNamesExprs(e.Args, referenced)
	}
}
