package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/joncooperworks/xmlharness/ext"
	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

const (
	// ContextItemVariable names the context item inside expressions.
	ContextItemVariable = "node"

	ctxVariable = "__ctx"
)

var exprBuiltins = func() map[string]bool {
	m := make(map[string]bool, len(builtin.Builtins))
	for _, fn := range builtin.Builtins {
		m[fn.Name] = true
	}
	return m
}()

// ExpressionCompiler compiles expressions against a static context.
type ExpressionCompiler struct {
	proc             *Processor
	namespaces       map[string]string
	defaultElementNS string
	variables        map[string]bool
	allowUndeclared  bool
	baseURI          string
	reporter         sink.ErrorReporter
	resolver         resolve.Resolver
}

// DeclareNamespace binds prefix for prefixed function calls.
func (c *ExpressionCompiler) DeclareNamespace(prefix, uri string) { c.namespaces[prefix] = uri }

// SetDefaultElementNamespace sets the default element namespace of the static context.
func (c *ExpressionCompiler) SetDefaultElementNamespace(uri string) { c.defaultElementNS = uri }

// DeclareVariable makes name available to compiled expressions.
func (c *ExpressionCompiler) DeclareVariable(name string) { c.variables[name] = true }

// SetAllowUndeclaredVariables turns references to undeclared variables into
// external variables instead of static errors.
func (c *ExpressionCompiler) SetAllowUndeclaredVariables(on bool) { c.allowUndeclared = on }

// SetBaseURI sets the static base URI.
func (c *ExpressionCompiler) SetBaseURI(uri string) { c.baseURI = uri }

// SetErrorReporter receives every static error found while compiling.
func (c *ExpressionCompiler) SetErrorReporter(r sink.ErrorReporter) { c.reporter = r }

// SetResolver sets the run-time resolver evaluators start with.
func (c *ExpressionCompiler) SetResolver(r resolve.Resolver) { c.resolver = r }

// Compile compiles src. Every static error is reported; the first is returned.
func (c *ExpressionCompiler) Compile(src string) (*Executable, error) {
	namespaces := make(map[string]string, len(c.namespaces))
	for k, v := range c.namespaces {
		namespaces[k] = v
	}
	variables := make(map[string]bool, len(c.variables))
	for k, v := range c.variables {
		variables[k] = v
	}
	exe, errs := c.proc.compileExpression(src, compileScope{
		namespaces:       namespaces,
		defaultElementNS: c.defaultElementNS,
		baseURI:          c.baseURI,
		declared:         func(name string) bool { return variables[name] },
		allowUndeclared:  c.allowUndeclared,
		resolver:         c.resolver,
	})
	if len(errs) > 0 {
		for _, e := range errs {
			if c.reporter != nil {
				c.reporter.Report(e.diagnostic())
			}
		}
		return nil, errs[0]
	}
	exe.declared = variables
	return exe, nil
}

// compileScope is the static context of one expression.
type compileScope struct {
	namespaces       map[string]string
	defaultElementNS string
	baseURI          string
	location         sink.Location
	declared         func(name string) bool
	allowUndeclared  bool
	resolver         resolve.Resolver
}

func (s compileScope) lookup(prefix string) (string, bool) {
	uri, ok := s.namespaces[prefix]
	return uri, ok
}

// staticContext is what StaticContextAware calls receive.
type staticContext struct {
	namespaces       map[string]string
	defaultElementNS string
	baseURI          string
}

var _ ext.StaticContext = (*staticContext)(nil)

func (s *staticContext) NamespaceForPrefix(prefix string) (string, bool) {
	uri, ok := s.namespaces[prefix]
	return uri, ok
}

func (s *staticContext) DefaultElementNamespace() string { return s.defaultElementNS }

func (s *staticContext) BaseURI() string { return s.baseURI }

func (s *staticContext) HostLanguage() string { return HostLanguage }

// callSite is one extension call in a compiled expression. Its Call instance is
// made once, at compile time, and shared by every evaluation.
type callSite struct {
	desc ext.Descriptor
	call ext.Call
}

type siteTable struct {
	sites []*callSite
}

// Executable is a compiled expression. It is immutable and may be loaded and
// evaluated from several goroutines.
type Executable struct {
	proc      *Processor
	source    string
	program   *vm.Program
	sites     *siteTable
	externals []string
	declared  map[string]bool
	baseURI   string
	resolver  resolve.Resolver
	location  sink.Location
}

// Source returns the expression text as written.
func (e *Executable) Source() string { return e.source }

// ExternalVariables lists the undeclared variables the expression refers to,
// in sorted order. It is empty unless undeclared variables were allowed.
func (e *Executable) ExternalVariables() []string {
	return append([]string(nil), e.externals...)
}

// Load returns a fresh evaluator.
func (e *Executable) Load() *Evaluator {
	return &Evaluator{exe: e, vars: make(map[string]any), resolver: e.resolver}
}

func (p *Processor) compileExpression(src string, scope compileScope) (*Executable, []*Error) {
	var errs []*Error
	fail := func(code, format string, args ...any) *Error {
		e := errorf(code, format, args...).at(scope.location)
		errs = append(errs, e)
		return e
	}

	q, prefixErrs := qualifyCalls(src, scope.lookup)
	for _, pe := range prefixErrs {
		line, col := lineColumn(src, pe.offset)
		e := fail(CodeUnknownPrefix, "namespace prefix %s has not been declared", pe.prefix)
		if scope.location.Line == 0 {
			e.Location.Line, e.Location.Column = line, col
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	tree, err := parser.Parse(q.source)
	if err != nil {
		e := fail(CodeSyntax, "%s", syntaxMessage(err))
		var fe *file.Error
		if errors.As(err, &fe) && scope.location.Line == 0 {
			e.Location.Line, e.Location.Column = fe.Line, fe.Column+1
		}
		e.Err = err
		return nil, errs
	}

	externals := p.analyze(tree.Node, q, scope, fail)
	if len(errs) > 0 {
		return nil, errs
	}

	static := &staticContext{namespaces: scope.namespaces, defaultElementNS: scope.defaultElementNS, baseURI: scope.baseURI}
	sites := &siteTable{}
	patcher := &callPatcher{proc: p, names: q.names, static: static, sites: sites}

	opts := []expr.Option{
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.Patch(patcher),
	}
	for name, fn := range builtinFunctions {
		opts = append(opts, expr.Function(name, builtinAdapter(fn)))
	}
	for name := range q.names {
		opts = append(opts, expr.Function(name, sites.dispatch))
	}

	program, err := expr.Compile(q.source, opts...)
	if err != nil {
		e := fail(CodeSyntax, "%s", syntaxMessage(err))
		e.Err = err
		return nil, errs
	}
	if patcher.err != nil {
		errs = append(errs, patcher.err.at(scope.location))
		return nil, errs
	}

	p.logger.Debug("compiled expression", "source", src, "sites", len(sites.sites), "folded", patcher.folded)
	return &Executable{
		proc:      p,
		source:    src,
		program:   program,
		sites:     sites,
		externals: externals,
		baseURI:   scope.baseURI,
		resolver:  scope.resolver,
		location:  scope.location,
	}, nil
}

func syntaxMessage(err error) string {
	var fe *file.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// analyze checks variable references and extension calls, returning the
// external variables of the expression.
func (p *Processor) analyze(root ast.Node, q qualified, scope compileScope, fail func(code, format string, args ...any) *Error) []string {
	v := &referenceCollector{callees: make(map[*ast.IdentifierNode]bool), locals: make(map[string]bool)}
	ast.Walk(&root, v)

	for _, call := range v.calls {
		id, ok := call.Callee.(*ast.IdentifierNode)
		if !ok {
			continue
		}
		name := id.Value
		if qn, ok := q.names[name]; ok {
			if _, err := p.registry.Resolve(qn, len(call.Arguments)); err != nil {
				fail(CodeUnknownFunction, "cannot find a %d-argument function named %s()", len(call.Arguments), qn)
			}
			continue
		}
		if _, ok := builtinFunctions[name]; ok || exprBuiltins[name] {
			continue
		}
		if v.locals[name] || scope.declared(name) {
			continue
		}
		fail(CodeUnknownFunction, "cannot find a %d-argument function named %s()", len(call.Arguments), name)
	}

	externals := make(map[string]bool)
	for _, id := range v.idents {
		if v.callees[id] {
			continue
		}
		name := id.Value
		switch {
		case name == ContextItemVariable || name == ctxVariable || strings.HasPrefix(name, "$"):
		case v.locals[name] || scope.declared(name):
		case scope.allowUndeclared:
			externals[name] = true
		default:
			fail(CodeUndeclaredVariable, "variable $%s has not been declared", name)
		}
	}
	out := make([]string, 0, len(externals))
	for name := range externals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type referenceCollector struct {
	calls   []*ast.CallNode
	callees map[*ast.IdentifierNode]bool
	idents  []*ast.IdentifierNode
	locals  map[string]bool
}

func (r *referenceCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		r.calls = append(r.calls, n)
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			r.callees[id] = true
		}
	case *ast.VariableDeclaratorNode:
		r.locals[n.Name] = true
	case *ast.IdentifierNode:
		r.idents = append(r.idents, n)
	}
}

// callPatcher binds each extension call to a call site and passes the
// evaluation context to every engine function. Calls to functions that do not
// depend on context and have only literal arguments are evaluated here, once,
// and replaced by their value. Context-dependent calls always stay in place.
type callPatcher struct {
	proc   *Processor
	names  map[string]ext.QName
	static *staticContext
	sites  *siteTable
	folded int
	err    *Error
}

func (c *callPatcher) Visit(node *ast.Node) {
	call, ok := (*node).(*ast.CallNode)
	if !ok {
		return
	}
	id, ok := call.Callee.(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, ok := builtinFunctions[id.Value]; ok {
		call.Arguments = append([]ast.Node{&ast.IdentifierNode{Value: ctxVariable}}, call.Arguments...)
		return
	}
	qn, ok := c.names[id.Value]
	if !ok {
		return
	}
	binding, err := c.proc.registry.Resolve(qn, len(call.Arguments))
	if err != nil {
		if c.err == nil {
			c.err = errorf(CodeUnknownFunction, "cannot find a %d-argument function named %s()", len(call.Arguments), qn)
		}
		return
	}
	site := &callSite{desc: binding.Descriptor(), call: binding.MakeCall()}
	if aware, ok := site.call.(ext.StaticContextAware); ok {
		aware.SupplyStaticContext(c.static)
	}

	if !site.desc.DependsOnContext {
		if args, ok := literalArguments(call.Arguments); ok {
			v, err := ext.Invoke(foldContext{now: c.proc.now()}, site.desc, site.call, args)
			if err == nil {
				if lit, ok := literalNode(toExpr(v)); ok {
					ast.Patch(node, lit)
					c.folded++
					return
				}
			}
		}
	}

	idx := len(c.sites.sites)
	c.sites.sites = append(c.sites.sites, site)
	call.Arguments = append([]ast.Node{&ast.IdentifierNode{Value: ctxVariable}, &ast.IntegerNode{Value: idx}}, call.Arguments...)
}

func literalArguments(nodes []ast.Node) ([]any, bool) {
	args := make([]any, len(nodes))
	for i, n := range nodes {
		switch lit := n.(type) {
		case *ast.IntegerNode:
			args[i] = lit.Value
		case *ast.FloatNode:
			args[i] = lit.Value
		case *ast.StringNode:
			args[i] = lit.Value
		case *ast.BoolNode:
			args[i] = lit.Value
		case *ast.NilNode:
			args[i] = ext.Empty
		default:
			return nil, false
		}
	}
	return args, true
}

func literalNode(v any) (ast.Node, bool) {
	switch x := v.(type) {
	case nil:
		return &ast.NilNode{}, true
	case int:
		return &ast.IntegerNode{Value: x}, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return &ast.FloatNode{Value: x}, true
	case string:
		return &ast.StringNode{Value: x}, true
	case bool:
		return &ast.BoolNode{Value: x}, true
	case []any:
		nodes := make([]ast.Node, len(x))
		for i, item := range x {
			n, ok := literalNode(item)
			if !ok {
				return nil, false
			}
			nodes[i] = n
		}
		return &ast.ArrayNode{Nodes: nodes}, true
	}
	return nil, false
}

func (s *siteTable) dispatch(params ...any) (any, error) {
	if len(params) < 2 {
		return nil, errors.New("extension call is missing its evaluation context")
	}
	ec, ok := params[0].(*evalContext)
	if !ok {
		return nil, errors.New("extension call is missing its evaluation context")
	}
	site := s.sites[params[1].(int)]
	args := make([]any, len(params)-2)
	for i, a := range params[2:] {
		args[i] = fromExpr(a)
	}
	v, err := ext.Invoke(ec, site.desc, site.call, args)
	if err != nil {
		return nil, asEngineError(err, CodeDynamic)
	}
	return toExpr(v), nil
}

func builtinAdapter(fn func(c *evalContext, args []any) (any, error)) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) == 0 {
			return nil, errors.New("engine function is missing its evaluation context")
		}
		ec, ok := params[0].(*evalContext)
		if !ok {
			return nil, errors.New("engine function is missing its evaluation context")
		}
		return fn(ec, params[1:])
	}
}

// fromExpr maps expression values to extension values and toExpr maps back.
// The expression language has no empty sequence; nil stands in for it.
func fromExpr(v any) any {
	if v == nil {
		return ext.Empty
	}
	return v
}

func toExpr(v any) any {
	if ext.IsEmpty(v) {
		return nil
	}
	return v
}

// Evaluator runs one Executable. It is not safe for concurrent use; load one
// per goroutine.
type Evaluator struct {
	exe      *Executable
	vars     map[string]any
	item     any
	resolver resolve.Resolver
}

// SetVariable binds a declared or external variable.
func (e *Evaluator) SetVariable(name string, value any) error {
	if !e.exe.declared[name] && !contains(e.exe.externals, name) {
		return fmt.Errorf("variable $%s is not used by %q", name, e.exe.source)
	}
	e.vars[name] = value
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// SetContextItem sets the item the expression is evaluated against. A *Document
// is replaced by its document node.
func (e *Evaluator) SetContextItem(item any) {
	if d, ok := item.(*Document); ok {
		item = d.Node()
	}
	e.item = item
}

// SetResolver sets the resolver used by doc(), unparsedText() and extension calls.
func (e *Evaluator) SetResolver(r resolve.Resolver) { e.resolver = r }

// Evaluate returns the value of the expression. The empty sequence is ext.Empty.
func (e *Evaluator) Evaluate(ctx context.Context) (any, error) {
	rs := e.exe.proc.newRunState(ctx, e.resolver)
	v, err := e.exe.run(rs, e.item, e.vars)
	if err != nil {
		return nil, err
	}
	return fromExpr(v), nil
}

// EvaluateSingle returns the first item of the result, or ext.Empty.
func (e *Evaluator) EvaluateSingle(ctx context.Context) (any, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if seq, ok := v.([]any); ok {
		if len(seq) == 0 {
			return ext.Empty, nil
		}
		return seq[0], nil
	}
	return v, nil
}

// EffectiveBooleanValue evaluates the expression as a condition.
func (e *Evaluator) EffectiveBooleanValue(ctx context.Context) (bool, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	return effectiveBoolean(v)
}

func (e *Executable) run(rs *runState, item any, vars map[string]any) (any, error) {
	env := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		env[k] = toExpr(v)
	}
	env[ContextItemVariable] = item
	env[ctxVariable] = &evalContext{run: rs, item: item, baseURI: e.baseURI}

	v, err := expr.Run(e.program, env)
	if err != nil {
		return nil, asEngineError(err, CodeDynamic).at(e.location)
	}
	return v, nil
}

func effectiveBoolean(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		return x != "", nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0 && !math.IsNaN(x), nil
	case *Node:
		return true, nil
	case []any:
		if len(x) == 0 {
			return false, nil
		}
		if _, ok := x[0].(*Node); ok {
			return true, nil
		}
		if len(x) == 1 {
			return effectiveBoolean(x[0])
		}
		return false, errorf(CodeType, "effective boolean value is not defined for a sequence of %d atomic values", len(x))
	}
	if ext.IsEmpty(v) {
		return false, nil
	}
	return false, errorf(CodeType, "effective boolean value is not defined for %T", v)
}
