package soy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/archimag/soy-go/parser"
	"github.com/archimag/soy-go/value"
)

// State holds the evaluation state of a single render. Functions receive
// it to look at the data of the template being rendered.
type State struct {
	env       *Environment
	tmpl      *compiledTemplate
	scope     *scope
	out       *strings.Builder
	depth     int
	fuel      *fuelTracker
	callStack []string
}

func newState(env *Environment, data value.Value) *State {
	s := &State{
		env:   env,
		scope: newScope(data),
		out:   &strings.Builder{},
	}
	if env.fuel > 0 {
		s.fuel = newFuelTracker(env.fuel)
	}
	return s
}

// Name returns the name of the template currently being rendered.
func (s *State) Name() string {
	if s.tmpl == nil {
		return ""
	}
	return s.tmpl.name
}

// Lookup resolves a variable in the current scope. Unbound names yield
// None.
func (s *State) Lookup(name string) value.Value {
	return s.scope.resolve(name)
}

// Data returns the data the current template was called with.
func (s *State) Data() value.Value {
	return value.FromMap(s.scope.root())
}

// Env returns the environment the render belongs to.
func (s *State) Env() *Environment {
	return s.env
}

func (s *State) render(tmpl *compiledTemplate) (string, error) {
	s.tmpl = tmpl
	s.callStack = append(s.callStack, tmpl.name)
	if err := s.evalStmts(tmpl.ast.Body); err != nil {
		return "", err
	}
	return s.out.String(), nil
}

func (s *State) evalStmts(stmts []parser.Stmt) error {
	for _, stmt := range stmts {
		if err := s.evalStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evalStmt(stmt parser.Stmt) error {
	if err := s.fuel.consume(1); err != nil {
		return s.attachErrorInfo(err, stmt)
	}

	var err error
	switch st := stmt.(type) {
	case *parser.Text:
		s.out.WriteString(st.Text)
	case *parser.Literal:
		s.out.WriteString(st.Text)
	case *parser.Special:
		s.out.WriteString(st.Char)
	case *parser.Comment:
	case *parser.Print:
		err = s.evalPrint(st)
	case *parser.If:
		err = s.evalIf(st)
	case *parser.Switch:
		err = s.evalSwitch(st)
	case *parser.Foreach:
		err = s.evalForeach(st)
	case *parser.For:
		err = s.evalFor(st)
	case *parser.LocalBind:
		err = s.evalLocalBind(st)
	case *parser.Call:
		err = s.evalCall(st)
	default:
		err = newError(ErrSyntax, "unsupported statement %T", stmt)
	}
	if err != nil {
		return s.attachErrorInfo(err, stmt)
	}
	return nil
}

func (s *State) evalPrint(p *parser.Print) error {
	val, err := s.evalExpr(p.Expr)
	if err != nil {
		return err
	}
	str := val.String()

	// automatic escaping runs before the listed directives so markup they
	// produce, such as <br> or <wbr>, survives
	if s.tmpl.ast.AutoEscape && !s.hasEscapingDirective(p.Directives) {
		str = EscapeHTML(str)
	}

	for _, d := range p.Directives {
		dir, ok := s.env.directives[d.Name]
		if !ok {
			msg := suggest(fmt.Sprintf("unknown print directive `%s`", d.Name), d.Name, s.env.directiveNames())
			return NewError(ErrUnknownDirective, msg).WithSpan(d.Span)
		}
		args := make([]value.Value, len(d.Args))
		for i, arg := range d.Args {
			if args[i], err = s.evalExpr(arg); err != nil {
				return err
			}
		}
		str, err = dir.fn(str, args)
		if err != nil {
			return NewError(ErrInvalidArguments, fmt.Sprintf("|%s %v", d.Name, err)).
				WithSpan(d.Span).
				WithCause(err)
		}
	}

	s.out.WriteString(str)
	return nil
}

func (s *State) hasEscapingDirective(directives []parser.Directive) bool {
	for _, d := range directives {
		if dir, ok := s.env.directives[d.Name]; ok && dir.escaping {
			return true
		}
	}
	return false
}

func (s *State) evalIf(stmt *parser.If) error {
	for _, branch := range stmt.Branches {
		cond, err := s.evalExpr(branch.Cond)
		if err != nil {
			return err
		}
		if cond.IsTrue() {
			return s.evalStmts(branch.Body)
		}
	}
	return s.evalStmts(stmt.Else)
}

func (s *State) evalSwitch(stmt *parser.Switch) error {
	subject, err := s.evalExpr(stmt.Subject)
	if err != nil {
		return err
	}
	for _, c := range stmt.Cases {
		for _, expr := range c.Values {
			candidate, err := s.evalExpr(expr)
			if err != nil {
				return err
			}
			if subject.Equal(candidate) {
				return s.evalStmts(c.Body)
			}
		}
	}
	return s.evalStmts(stmt.Default)
}

func (s *State) evalForeach(stmt *parser.Foreach) error {
	list, err := s.evalExpr(stmt.List)
	if err != nil {
		return err
	}
	if list.IsNone() {
		return s.evalStmts(stmt.IfEmpty)
	}
	items, ok := list.AsSlice()
	if !ok {
		return newError(ErrInvalidOperand, "foreach expects a list, got %s", list.Kind()).
			WithSpan(stmt.List.Span())
	}
	if len(items) == 0 {
		return s.evalStmts(stmt.IfEmpty)
	}
	for i, item := range items {
		if err := s.foreachIteration(stmt, i, len(items), item); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) foreachIteration(stmt *parser.Foreach, index, length int, item value.Value) error {
	s.scope.push()
	defer s.scope.pop()

	s.scope.define(stmt.Item, item)
	if stmt.Index != "" {
		s.scope.define(stmt.Index, value.FromInt(int64(index)))
	}
	s.scope.setLoop(&loopInfo{item: stmt.Item, index: index, length: length})
	return s.evalStmts(stmt.Body)
}

func (s *State) evalFor(stmt *parser.For) error {
	from, err := s.evalRangeArg(stmt.From)
	if err != nil {
		return err
	}
	to, err := s.evalRangeArg(stmt.To)
	if err != nil {
		return err
	}
	by := int64(1)
	if stmt.By != nil {
		if by, err = s.evalRangeArg(stmt.By); err != nil {
			return err
		}
		if by == 0 {
			return NewError(ErrInvalidOperand, "range() step must not be zero").WithSpan(stmt.By.Span())
		}
	}

	for i := from; (by > 0 && i < to) || (by < 0 && i > to); i += by {
		if err := s.forIteration(stmt, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evalRangeArg(expr parser.Expr) (int64, error) {
	val, err := s.evalExpr(expr)
	if err != nil {
		return 0, err
	}
	n, ok := val.AsInt()
	if !ok {
		return 0, newError(ErrInvalidOperand, "range() expects integers, got %s", val.Repr()).
			WithSpan(expr.Span())
	}
	return n, nil
}

func (s *State) forIteration(stmt *parser.For, i int64) error {
	s.scope.push()
	defer s.scope.pop()

	s.scope.define(stmt.Var, value.FromInt(i))
	return s.evalStmts(stmt.Body)
}

func (s *State) evalLocalBind(stmt *parser.LocalBind) error {
	val, err := s.evalExpr(stmt.Value)
	if err != nil {
		return err
	}
	s.scope.push()
	defer s.scope.pop()

	s.scope.define(stmt.Name, val)
	return s.evalStmts(stmt.Body)
}

func (s *State) evalCall(call *parser.Call) error {
	name := call.Name
	if call.NameExpr != nil {
		val, err := s.evalExpr(call.NameExpr)
		if err != nil {
			return err
		}
		name = val.String()
		if strings.HasPrefix(name, ".") && s.tmpl.ast.Namespace != "" {
			name = s.tmpl.ast.Namespace + name
		}
	}

	callee, err := s.env.lookup(name)
	if err != nil {
		return err
	}
	if s.depth >= s.env.recursionLimit {
		return newError(ErrRecursionLimitExceeded, "template calls nested deeper than %d levels (%s)",
			s.env.recursionLimit, s.callChain(callee.name))
	}

	params, err := s.evalParams(call.Params)
	if err != nil {
		return err
	}

	var data value.Value
	switch call.Data {
	case parser.DataAll:
		data = value.MergeMaps(value.FromMap(s.scope.root()), params)
	case parser.DataExpr:
		base, err := s.evalExpr(call.DataExpr)
		if err != nil {
			return err
		}
		if !base.IsNone() && base.Kind() != value.KindMap {
			return newError(ErrInvalidOperand, "call data must be a map, got %s", base.Kind()).
				WithSpan(call.DataExpr.Span())
		}
		data = value.MergeMaps(base, params)
	default:
		data = params
	}

	return s.callTemplate(callee, data)
}

// callChainShown bounds how many callers callChain lists.
const callChainShown = 4

// callChain describes the innermost calls ending in next, such as
// "... -> a.b -> a.b -> a.b".
func (s *State) callChain(next string) string {
	names := s.callStack
	prefix := ""
	if len(names) > callChainShown {
		names = names[len(names)-callChainShown:]
		prefix = "... -> "
	}
	return prefix + strings.Join(append(slices.Clone(names), next), " -> ")
}

// evalParams evaluates call parameters in the caller's scope. Block params
// render to plain strings.
func (s *State) evalParams(params []parser.Param) (value.Value, error) {
	result := make(map[string]value.Value, len(params))
	for _, p := range params {
		if p.Value != nil {
			val, err := s.evalExpr(p.Value)
			if err != nil {
				return value.None(), err
			}
			result[p.Name] = val
			continue
		}
		body, err := s.captureOutput(p.Body)
		if err != nil {
			return value.None(), err
		}
		result[p.Name] = value.FromString(body)
	}
	return value.FromMap(result), nil
}

func (s *State) captureOutput(stmts []parser.Stmt) (string, error) {
	prev := s.out
	s.out = &strings.Builder{}
	defer func() { s.out = prev }()

	if err := s.evalStmts(stmts); err != nil {
		return "", err
	}
	return s.out.String(), nil
}

func (s *State) callTemplate(callee *compiledTemplate, data value.Value) error {
	prev := s.tmpl
	s.tmpl = callee
	s.depth++
	s.callStack = append(s.callStack, callee.name)
	s.scope.pushBarrier(data)
	defer func() {
		s.scope.pop()
		s.callStack = s.callStack[:len(s.callStack)-1]
		s.depth--
		s.tmpl = prev
	}()

	return s.evalStmts(callee.ast.Body)
}

func (s *State) evalExpr(expr parser.Expr) (value.Value, error) {
	if err := s.fuel.consume(1); err != nil {
		return value.None(), s.attachErrorInfo(err, expr)
	}
	val, err := s.evalExprNode(expr)
	if err != nil {
		return value.None(), s.attachErrorInfo(err, expr)
	}
	return val, nil
}

func (s *State) evalExprNode(expr parser.Expr) (value.Value, error) {
	switch e := expr.(type) {
	case *parser.Var:
		return s.scope.resolve(e.Name), nil
	case *parser.Const:
		return e.Value, nil
	case *parser.List:
		return s.evalList(e)
	case *parser.Map:
		return s.evalMap(e)
	case *parser.UnaryOp:
		return s.evalUnaryOp(e)
	case *parser.BinOp:
		return s.evalBinOp(e)
	case *parser.Ternary:
		cond, err := s.evalExpr(e.Cond)
		if err != nil {
			return value.None(), err
		}
		if cond.IsTrue() {
			return s.evalExpr(e.Then)
		}
		return s.evalExpr(e.Else)
	case *parser.GetAttr:
		val, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.None(), err
		}
		return val.GetAttr(e.Name), nil
	case *parser.GetItem:
		val, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.None(), err
		}
		idx, err := s.evalExpr(e.Index)
		if err != nil {
			return value.None(), err
		}
		return val.GetItem(idx)
	case *parser.FuncCall:
		return s.evalFuncCall(e)
	}
	return value.None(), newError(ErrSyntax, "unsupported expression %T", expr)
}

func (s *State) evalList(list *parser.List) (value.Value, error) {
	items := make([]value.Value, len(list.Items))
	for i, item := range list.Items {
		val, err := s.evalExpr(item)
		if err != nil {
			return value.None(), err
		}
		items[i] = val
	}
	return value.FromSlice(items), nil
}

func (s *State) evalMap(m *parser.Map) (value.Value, error) {
	result := make(map[string]value.Value, len(m.Keys))
	for i := range m.Keys {
		key, err := s.evalExpr(m.Keys[i])
		if err != nil {
			return value.None(), err
		}
		val, err := s.evalExpr(m.Values[i])
		if err != nil {
			return value.None(), err
		}
		result[key.String()] = val
	}
	return value.FromMap(result), nil
}

func (s *State) evalUnaryOp(op *parser.UnaryOp) (value.Value, error) {
	val, err := s.evalExpr(op.Expr)
	if err != nil {
		return value.None(), err
	}
	if op.Op == parser.UnaryNot {
		return val.Not(), nil
	}
	return val.Neg()
}

func (s *State) evalBinOp(op *parser.BinOp) (value.Value, error) {
	left, err := s.evalExpr(op.Left)
	if err != nil {
		return value.None(), err
	}

	switch op.Op {
	case parser.BinOpAnd:
		if !left.IsTrue() {
			return value.FromBool(false), nil
		}
		right, err := s.evalExpr(op.Right)
		if err != nil {
			return value.None(), err
		}
		return value.FromBool(right.IsTrue()), nil
	case parser.BinOpOr:
		if left.IsTrue() {
			return value.FromBool(true), nil
		}
		right, err := s.evalExpr(op.Right)
		if err != nil {
			return value.None(), err
		}
		return value.FromBool(right.IsTrue()), nil
	}

	right, err := s.evalExpr(op.Right)
	if err != nil {
		return value.None(), err
	}

	switch op.Op {
	case parser.BinOpEq:
		return value.FromBool(left.Equal(right)), nil
	case parser.BinOpNe:
		return value.FromBool(!left.Equal(right)), nil
	case parser.BinOpLt, parser.BinOpLte, parser.BinOpGt, parser.BinOpGte:
		c, err := left.Compare(right)
		if err != nil {
			return value.None(), err
		}
		switch op.Op {
		case parser.BinOpLt:
			return value.FromBool(c < 0), nil
		case parser.BinOpLte:
			return value.FromBool(c <= 0), nil
		case parser.BinOpGt:
			return value.FromBool(c > 0), nil
		default:
			return value.FromBool(c >= 0), nil
		}
	case parser.BinOpAdd:
		return left.Add(right)
	case parser.BinOpSub:
		return left.Sub(right)
	case parser.BinOpMul:
		return left.Mul(right)
	case parser.BinOpDiv:
		return left.Div(right)
	case parser.BinOpRem:
		return left.Rem(right)
	}
	return value.None(), newError(ErrSyntax, "unknown operator %s", op.Op)
}

func (s *State) evalFuncCall(call *parser.FuncCall) (value.Value, error) {
	if fn, ok := loopFunctions[call.Name]; ok {
		info, err := s.loopArg(call)
		if err != nil {
			return value.None(), err
		}
		return fn(info), nil
	}

	fn, ok := s.env.functions[call.Name]
	if !ok {
		msg := suggest(fmt.Sprintf("unknown function `%s`", call.Name), call.Name, s.env.functionNames())
		return value.None(), NewError(ErrUnknownFunction, msg)
	}
	args := make([]value.Value, len(call.Args))
	for i, arg := range call.Args {
		val, err := s.evalExpr(arg)
		if err != nil {
			return value.None(), err
		}
		args[i] = val
	}
	return fn(s, args)
}

// loopArg resolves the foreach position named by the single argument of
// index(), isFirst() or isLast().
func (s *State) loopArg(call *parser.FuncCall) (*loopInfo, error) {
	if len(call.Args) != 1 {
		return nil, newError(ErrInvalidArguments, "%s() takes 1 argument, got %d", call.Name, len(call.Args))
	}
	v, ok := call.Args[0].(*parser.Var)
	if !ok {
		return nil, newError(ErrInvalidArguments, "%s() expects a foreach variable, got %s", call.Name, parser.DumpExpr(call.Args[0]))
	}
	info, ok := s.scope.loop(v.Name)
	if !ok {
		return nil, newError(ErrInvalidArguments, "%s(): $%s is not a foreach variable", call.Name, v.Name)
	}
	return info, nil
}
