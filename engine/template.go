package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

// TemplateNamespace is the namespace of template instructions.
const TemplateNamespace = "urn:xmlharness:template"

// DefaultInitialTemplate is the template Apply starts from.
const DefaultInitialTemplate = "main"

// TemplateCompiler compiles template modules. Modules pulled in by include are
// fetched through the compile-time resolver with nature "stylesheet module".
type TemplateCompiler struct {
	proc        *Processor
	resolver    resolve.Resolver
	runResolver resolve.Resolver
	reporter    sink.ErrorReporter
	baseURI     string
}

// SetResolver replaces the compile-time resolver.
func (c *TemplateCompiler) SetResolver(r resolve.Resolver) { c.resolver = r }

// SetErrorReporter receives every static error. Compilation reports all of them
// before it fails.
func (c *TemplateCompiler) SetErrorReporter(r sink.ErrorReporter) { c.reporter = r }

// SetBaseURI sets the base for relative module URIs passed to Compile.
func (c *TemplateCompiler) SetBaseURI(uri string) { c.baseURI = uri }

// Compile resolves and compiles the module at uri.
func (c *TemplateCompiler) Compile(ctx context.Context, uri string) (*Template, error) {
	res, err := c.proc.fetch(ctx, c.resolver, resolve.Request{URI: uri, BaseURI: c.baseURI, Nature: resolve.NatureStylesheetModule})
	if err != nil {
		return nil, c.failWith(&Error{Code: CodeTemplateStatic, Message: err.Error(), Location: sink.Location{SystemID: uri}, Err: err})
	}
	return c.compile(ctx, res.Content, res.URI)
}

// CompileString compiles a module held in memory.
func (c *TemplateCompiler) CompileString(ctx context.Context, src, systemID string) (*Template, error) {
	return c.compile(ctx, []byte(src), systemID)
}

func (c *TemplateCompiler) failWith(e *Error) error {
	if c.reporter != nil {
		c.reporter.Report(e.diagnostic())
	}
	return e
}

type topLevel struct {
	el  *etree.Element
	doc *Document
}

type templateCompilation struct {
	c       *TemplateCompiler
	ctx     context.Context
	tpl     *Template
	errs    []*Error
	modules map[string]bool
	entries []topLevel
	globals map[string]bool
	calls   []*callTemplateInstr
}

func (c *TemplateCompiler) compile(ctx context.Context, data []byte, systemID string) (*Template, error) {
	tc := &templateCompilation{
		c:       c,
		ctx:     ctx,
		modules: make(map[string]bool),
		globals: make(map[string]bool),
		tpl: &Template{
			proc:        c.proc,
			systemID:    systemID,
			templates:   make(map[string]*namedTemplate),
			runResolver: c.runResolver,
		},
	}
	tc.loadModule(data, systemID)
	for _, e := range tc.entries {
		if isInstruction(e.el, "param") || isInstruction(e.el, "variable") {
			tc.globals[e.el.SelectAttrValue("name", "")] = true
		}
	}
	for _, e := range tc.entries {
		tc.topLevel(e)
	}
	for _, call := range tc.calls {
		if _, ok := tc.tpl.templates[call.name]; !ok {
			tc.report(errorf(CodeTemplateStatic, "no template named %s has been declared", call.name).at(call.loc))
		}
	}

	if len(tc.errs) > 0 {
		first := tc.errs[0]
		err := &Error{
			Code:     first.Code,
			Message:  fmt.Sprintf("%d error(s) reported while compiling %s; first: %s", len(tc.errs), systemID, first.Message),
			Location: first.Location,
			Err:      first,
		}
		return nil, err
	}
	c.proc.logger.Debug("compiled template module", "uri", systemID, "templates", len(tc.tpl.templates), "globals", len(tc.tpl.globals))
	return tc.tpl, nil
}

func (tc *templateCompilation) report(e *Error) {
	tc.errs = append(tc.errs, e)
	if tc.c.reporter != nil {
		tc.c.reporter.Report(e.diagnostic())
	}
}

func (tc *templateCompilation) staticError(n *Node, format string, args ...any) {
	tc.report(errorf(CodeTemplateStatic, format, args...).at(nodeLocation(n)))
}

func nodeLocation(n *Node) sink.Location {
	return sink.Location{SystemID: n.URI(), Line: n.Line()}
}

// loadModule parses one module and appends its top-level declarations,
// expanding includes in place.
func (tc *templateCompilation) loadModule(data []byte, systemID string) {
	if tc.modules[systemID] {
		tc.report(errorf(CodeTemplateStatic, "module %s includes itself", systemID).at(sink.Location{SystemID: systemID}))
		return
	}
	tc.modules[systemID] = true

	b := tc.c.proc.NewDocumentBuilder()
	b.SetResolver(tc.c.resolver)
	doc, err := b.parseXML(tc.ctx, data, systemID)
	if err != nil {
		tc.report(asEngineError(err, CodeNotWellFormed))
		return
	}
	root := doc.Root()
	if !isInstruction(root.el, "transform") {
		tc.staticError(root, "the root element of a template module must be transform in namespace %s", TemplateNamespace)
		return
	}
	if root.Attr("indent") == "yes" {
		tc.tpl.indent = true
	}
	for _, el := range root.el.ChildElements() {
		n := newNode(doc, el)
		if !isInstruction(el, "include") {
			tc.entries = append(tc.entries, topLevel{el: el, doc: doc})
			continue
		}
		href := n.Attr("href")
		if href == "" {
			tc.staticError(n, "include requires an href attribute")
			continue
		}
		res, err := tc.c.proc.fetch(tc.ctx, tc.c.resolver, resolve.Request{URI: href, BaseURI: systemID, Nature: resolve.NatureStylesheetModule})
		if err != nil {
			tc.report((&Error{Code: CodeTemplateStatic, Message: err.Error(), Err: err}).at(nodeLocation(n)))
			continue
		}
		tc.loadModule(res.Content, res.URI)
	}
}

func isInstruction(el *etree.Element, name string) bool {
	return el != nil && el.Tag == name && el.NamespaceURI() == TemplateNamespace
}

func isTemplateElement(el *etree.Element) bool {
	return el.NamespaceURI() == TemplateNamespace
}

// scope tracks the variables visible at a point in a template body.
type scope struct {
	parent *scope
	names  map[string]bool
}

func newScope(parent *scope, names ...string) *scope {
	s := &scope{parent: parent, names: make(map[string]bool)}
	for _, n := range names {
		s.names[n] = true
	}
	return s
}

func (s *scope) has(name string) bool {
	for ; s != nil; s = s.parent {
		if s.names[name] {
			return true
		}
	}
	return false
}

func (tc *templateCompilation) topLevel(e topLevel) {
	n := newNode(e.doc, e.el)
	if !isTemplateElement(e.el) {
		return
	}
	globalScope := newScope(nil)
	for name := range tc.globals {
		globalScope.names[name] = true
	}

	switch e.el.Tag {
	case "param", "variable":
		name := n.Attr("name")
		if name == "" {
			tc.staticError(n, "%s requires a name attribute", e.el.Tag)
			return
		}
		g := &globalDecl{name: name, param: e.el.Tag == "param", required: n.Attr("required") == "yes", loc: nodeLocation(n)}
		g.sel, g.body = tc.valueSource(n, globalScope)
		tc.tpl.globals = append(tc.tpl.globals, g)
	case "template":
		name := n.Attr("name")
		if name == "" {
			tc.staticError(n, "template requires a name attribute")
			return
		}
		if _, dup := tc.tpl.templates[name]; dup {
			tc.staticError(n, "duplicate template named %s", name)
			return
		}
		t := &namedTemplate{name: name, loc: nodeLocation(n)}
		s := newScope(globalScope)
		for _, child := range e.el.ChildElements() {
			if !isInstruction(child, "param") {
				break
			}
			cn := newNode(e.doc, child)
			pname := cn.Attr("name")
			if pname == "" {
				tc.staticError(cn, "param requires a name attribute")
				continue
			}
			p := &paramDecl{name: pname, required: cn.Attr("required") == "yes"}
			p.sel, p.body = tc.valueSource(cn, s)
			t.params = append(t.params, p)
			s.names[pname] = true
		}
		t.body = tc.body(e.doc, withoutParams(e.el.Child), s)
		tc.tpl.templates[name] = t
	case "output":
		if n.Attr("indent") == "yes" {
			tc.tpl.indent = true
		}
	default:
		tc.staticError(n, "unknown top-level element %s", e.el.FullTag())
	}
}

func withoutParams(tokens []etree.Token) []etree.Token {
	out := make([]etree.Token, 0, len(tokens))
	for _, t := range tokens {
		if el, ok := t.(*etree.Element); ok && isInstruction(el, "param") {
			continue
		}
		out = append(out, t)
	}
	return out
}

// valueSource compiles the value of a param or variable: a select expression
// or, failing that, the content of the element.
func (tc *templateCompilation) valueSource(n *Node, s *scope) (*Executable, []instruction) {
	if sel := n.Attr("select"); sel != "" {
		return tc.expression(n, sel, s), nil
	}
	return nil, tc.body(n.doc, n.el.Child, newScope(s))
}

func (tc *templateCompilation) expression(n *Node, src string, s *scope) *Executable {
	exe, errs := tc.c.proc.compileExpression(src, compileScope{
		namespaces:       inScopeNamespaces(n.el),
		defaultElementNS: defaultNamespace(n.el),
		baseURI:          n.URI(),
		location:         nodeLocation(n),
		declared:         s.has,
		resolver:         tc.c.runResolver,
	})
	for _, e := range errs {
		tc.report(e)
	}
	return exe
}

func inScopeNamespaces(el *etree.Element) map[string]string {
	ns := make(map[string]string)
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "xmlns" {
				if _, seen := ns[a.Key]; !seen {
					ns[a.Key] = a.Value
				}
			}
		}
	}
	return ns
}

// defaultNamespace returns the nearest default-namespace attribute: unprefixed
// on instructions, in the template namespace on literal result elements.
func defaultNamespace(el *etree.Element) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Key != "default-namespace" {
				continue
			}
			if (a.Space == "" && isTemplateElement(e)) || (a.Space != "" && a.NamespaceURI() == TemplateNamespace) {
				return a.Value
			}
		}
	}
	return ""
}

func (tc *templateCompilation) body(doc *Document, tokens []etree.Token, s *scope) []instruction {
	var out []instruction
	for _, t := range tokens {
		switch tok := t.(type) {
		case *etree.CharData:
			if strings.TrimSpace(tok.Data) != "" {
				out = append(out, &textInstr{text: tok.Data})
			}
		case *etree.Element:
			if in := tc.instruction(newNode(doc, tok), s); in != nil {
				out = append(out, in)
			}
		}
	}
	return out
}

func (tc *templateCompilation) require(n *Node, attr string) (string, bool) {
	v := n.Attr(attr)
	if v == "" {
		tc.staticError(n, "%s requires a %s attribute", n.el.Tag, attr)
		return "", false
	}
	return v, true
}

func (tc *templateCompilation) instruction(n *Node, s *scope) instruction {
	if !isTemplateElement(n.el) {
		return tc.literal(n, s)
	}
	loc := nodeLocation(n)
	switch n.el.Tag {
	case "value-of":
		sel, ok := tc.require(n, "select")
		if !ok {
			return nil
		}
		sep := " "
		if n.HasAttr("separator") {
			sep = n.Attr("separator")
		}
		return &valueOfInstr{sel: tc.expression(n, sel, s), separator: sep, loc: loc}
	case "copy-of":
		sel, ok := tc.require(n, "select")
		if !ok {
			return nil
		}
		return &copyOfInstr{sel: tc.expression(n, sel, s), loc: loc}
	case "text":
		return &textInstr{text: n.Text()}
	case "for-each":
		sel, ok := tc.require(n, "select")
		if !ok {
			return nil
		}
		return &forEachInstr{
			sel:  tc.expression(n, sel, s),
			body: tc.body(n.doc, n.el.Child, newScope(s, "position", "last")),
			loc:  loc,
		}
	case "if":
		test, ok := tc.require(n, "test")
		if !ok {
			return nil
		}
		return &ifInstr{test: tc.expression(n, test, s), body: tc.body(n.doc, n.el.Child, newScope(s)), loc: loc}
	case "choose":
		in := &chooseInstr{loc: loc}
		for _, child := range n.el.ChildElements() {
			cn := newNode(n.doc, child)
			switch {
			case isInstruction(child, "when"):
				test, ok := tc.require(cn, "test")
				if !ok {
					continue
				}
				in.whens = append(in.whens, &ifInstr{test: tc.expression(cn, test, s), body: tc.body(n.doc, child.Child, newScope(s)), loc: nodeLocation(cn)})
			case isInstruction(child, "otherwise"):
				in.otherwise = tc.body(n.doc, child.Child, newScope(s))
			default:
				tc.staticError(cn, "choose may only contain when and otherwise")
			}
		}
		return in
	case "variable":
		name, ok := tc.require(n, "name")
		if !ok {
			return nil
		}
		in := &variableInstr{name: name, loc: loc}
		in.sel, in.body = tc.valueSource(n, s)
		s.names[name] = true
		return in
	case "call-template":
		name, ok := tc.require(n, "name")
		if !ok {
			return nil
		}
		in := &callTemplateInstr{name: name, loc: loc}
		for _, child := range n.el.ChildElements() {
			cn := newNode(n.doc, child)
			if !isInstruction(child, "with-param") {
				tc.staticError(cn, "call-template may only contain with-param")
				continue
			}
			pname, ok := tc.require(cn, "name")
			if !ok {
				continue
			}
			wp := &paramDecl{name: pname}
			wp.sel, wp.body = tc.valueSource(cn, s)
			in.params = append(in.params, wp)
		}
		tc.calls = append(tc.calls, in)
		return in
	case "message":
		in := &messageInstr{loc: loc}
		switch t := n.Attr("terminate"); t {
		case "", "no":
		case "yes":
			in.terminate = true
		default:
			tc.staticError(n, "terminate must be yes or no, not %q", t)
		}
		in.sel, in.body = tc.valueSource(n, s)
		return in
	case "result-document":
		href, ok := tc.require(n, "href")
		if !ok {
			return nil
		}
		return &resultDocumentInstr{
			href: tc.avt(n, href, s),
			body: tc.body(n.doc, n.el.Child, newScope(s)),
			loc:  loc,
		}
	}
	tc.staticError(n, "unknown instruction %s", n.el.FullTag())
	return nil
}

func (tc *templateCompilation) literal(n *Node, s *scope) instruction {
	in := &literalInstr{tag: n.el.FullTag(), loc: nodeLocation(n)}
	for _, a := range n.el.Attr {
		switch {
		case a.Space == "xmlns" && a.Value == TemplateNamespace:
			continue
		case a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns"):
			in.attrs = append(in.attrs, literalAttr{name: a.FullKey(), value: []avtPart{{text: a.Value}}})
		case a.Space != "" && a.NamespaceURI() == TemplateNamespace:
			continue
		default:
			in.attrs = append(in.attrs, literalAttr{name: a.FullKey(), value: tc.avt(n, a.Value, s)})
		}
	}
	in.body = tc.body(n.doc, n.el.Child, newScope(s))
	return in
}

// avt compiles an attribute value template: literal text with {expression}
// parts, {{ and }} standing for literal braces.
func (tc *templateCompilation) avt(n *Node, src string, s *scope) []avtPart {
	var parts []avtPart
	var text strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '{' && i+1 < len(src) && src[i+1] == '{':
			text.WriteByte('{')
			i++
		case c == '}' && i+1 < len(src) && src[i+1] == '}':
			text.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				tc.staticError(n, "unclosed { in attribute value %q", src)
				return parts
			}
			if text.Len() > 0 {
				parts = append(parts, avtPart{text: text.String()})
				text.Reset()
			}
			parts = append(parts, avtPart{expr: tc.expression(n, src[i+1:i+1+end], s)})
			i += end + 1
		case c == '}':
			tc.staticError(n, "unmatched } in attribute value %q", src)
			return parts
		default:
			text.WriteByte(c)
		}
	}
	if text.Len() > 0 || len(parts) == 0 {
		parts = append(parts, avtPart{text: text.String()})
	}
	return parts
}
