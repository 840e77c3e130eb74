package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

// Template is a compiled template module. It is immutable; each run loads its
// own Transformer.
type Template struct {
	proc        *Processor
	systemID    string
	globals     []*globalDecl
	templates   map[string]*namedTemplate
	indent      bool
	runResolver resolve.Resolver
}

type globalDecl struct {
	name     string
	param    bool
	required bool
	sel      *Executable
	body     []instruction
	loc      sink.Location
}

type namedTemplate struct {
	name   string
	params []*paramDecl
	body   []instruction
	loc    sink.Location
}

type paramDecl struct {
	name     string
	required bool
	sel      *Executable
	body     []instruction
}

// SystemID returns the URI of the principal module.
func (t *Template) SystemID() string { return t.systemID }

// TemplateNames lists the named templates.
func (t *Template) TemplateNames() []string {
	names := make([]string, 0, len(t.templates))
	for name := range t.templates {
		names = append(names, name)
	}
	return names
}

// Load returns a transformer with default settings: secondary results kept in
// an in-memory registry and messages discarded.
func (t *Template) Load() *Transformer {
	return &Transformer{
		tpl:             t,
		params:          make(map[string]any),
		resolver:        t.runResolver,
		results:         sink.NewResultRegistry(),
		initialTemplate: DefaultInitialTemplate,
	}
}

// Transformer runs a Template once or several times. It is not safe for
// concurrent use.
type Transformer struct {
	tpl             *Template
	params          map[string]any
	resolver        resolve.Resolver
	listener        sink.MessageListener
	handler         sink.ResultHandler
	results         *sink.ResultRegistry
	baseOutputURI   string
	initialTemplate string
}

// SetParameter supplies a value for a global param.
func (t *Transformer) SetParameter(name string, value any) error {
	for _, g := range t.tpl.globals {
		if g.param && g.name == name {
			t.params[name] = value
			return nil
		}
	}
	return fmt.Errorf("template %s declares no param named %s", t.tpl.systemID, name)
}

// SetResolver sets the resolver used by doc() and friends during the run.
func (t *Transformer) SetResolver(r resolve.Resolver) { t.resolver = r }

// SetMessageListener receives message output.
func (t *Transformer) SetMessageListener(l sink.MessageListener) { t.listener = l }

// SetResultHandler receives secondary result documents. Without one they are
// kept in Results().
func (t *Transformer) SetResultHandler(h sink.ResultHandler) { t.handler = h }

// SetBaseOutputURI is the base relative result-document hrefs resolve against.
func (t *Transformer) SetBaseOutputURI(uri string) { t.baseOutputURI = uri }

// SetInitialTemplate changes the template Apply starts from.
func (t *Transformer) SetInitialTemplate(name string) { t.initialTemplate = name }

// Results returns the default in-memory result registry.
func (t *Transformer) Results() *sink.ResultRegistry { return t.results }

// Apply runs the initial template with source's document node as context item
// and writes the principal result to out.
func (t *Transformer) Apply(ctx context.Context, source *Document, out io.Writer) error {
	var item any
	if source != nil {
		item = source.Node()
	}
	return t.run(ctx, t.initialTemplate, item, out)
}

// CallTemplate runs the named template with no context item.
func (t *Transformer) CallTemplate(ctx context.Context, name string, out io.Writer) error {
	return t.run(ctx, name, nil, out)
}

func (t *Transformer) run(ctx context.Context, name string, item any, out io.Writer) error {
	tmpl, ok := t.tpl.templates[name]
	if !ok {
		return errorf(CodeTemplateDynamic, "template %s has no template named %s", t.tpl.systemID, name).at(sink.Location{SystemID: t.tpl.systemID})
	}
	s := &execState{tr: t, run: t.tpl.proc.newRunState(ctx, t.resolver), item: item, vars: make(map[string]any)}
	for _, g := range t.tpl.globals {
		if g.param {
			if v, ok := t.params[g.name]; ok {
				s.vars[g.name] = v
				continue
			}
			if g.required {
				return errorf(CodeTemplateDynamic, "no value supplied for required param %s", g.name).at(g.loc)
			}
		}
		v, err := s.value(g.sel, g.body)
		if err != nil {
			return err
		}
		s.vars[g.name] = v
	}
	s.globals = s.vars

	doc := etree.NewDocument()
	if err := s.callTemplate(tmpl, nil, &doc.Element); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return t.serialize(doc, out)
}

func (t *Transformer) serialize(doc *etree.Document, out io.Writer) error {
	if t.tpl.indent {
		doc.Indent(2)
	}
	if _, err := doc.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

type execState struct {
	tr      *Transformer
	run     *runState
	item    any
	vars    map[string]any
	globals map[string]any
}

// child returns a state for a nested body: same focus, its own variable frame.
func (s *execState) child() *execState {
	vars := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		vars[k] = v
	}
	return &execState{tr: s.tr, run: s.run, item: s.item, vars: vars, globals: s.globals}
}

func (s *execState) eval(exe *Executable) (any, error) {
	if err := s.run.ctx.Err(); err != nil {
		return nil, err
	}
	return exe.run(s.run, s.item, s.vars)
}

// value computes a param or variable: its select expression, or its content
// rendered as text.
func (s *execState) value(sel *Executable, body []instruction) (any, error) {
	if sel != nil {
		return s.eval(sel)
	}
	if len(body) == 0 {
		return "", nil
	}
	tmp := etree.NewElement("value")
	if err := execute(body, s.child(), tmp); err != nil {
		return nil, err
	}
	return newNode(nil, tmp).Text(), nil
}

func (s *execState) callTemplate(tmpl *namedTemplate, args map[string]any, out *etree.Element) error {
	callee := &execState{tr: s.tr, run: s.run, item: s.item, vars: make(map[string]any, len(s.globals)+len(tmpl.params)), globals: s.globals}
	for k, v := range s.globals {
		callee.vars[k] = v
	}
	for _, p := range tmpl.params {
		if v, ok := args[p.name]; ok {
			callee.vars[p.name] = v
			continue
		}
		if p.required {
			return errorf(CodeTemplateDynamic, "no value supplied for required param %s of template %s", p.name, tmpl.name).at(tmpl.loc)
		}
		v, err := callee.value(p.sel, p.body)
		if err != nil {
			return err
		}
		callee.vars[p.name] = v
	}
	return execute(tmpl.body, callee, out)
}

func execute(body []instruction, s *execState, out *etree.Element) error {
	for _, in := range body {
		if err := in.execute(s, out); err != nil {
			return err
		}
	}
	return nil
}

type instruction interface {
	execute(s *execState, out *etree.Element) error
}

type textInstr struct {
	text string
}

func (i *textInstr) execute(_ *execState, out *etree.Element) error {
	out.CreateText(i.text)
	return nil
}

type valueOfInstr struct {
	sel       *Executable
	separator string
	loc       sink.Location
}

func (i *valueOfInstr) execute(s *execState, out *etree.Element) error {
	v, err := s.eval(i.sel)
	if err != nil {
		return locate(err, i.loc)
	}
	seq := items(v)
	parts := make([]string, len(seq))
	for n, item := range seq {
		parts[n] = StringValue(item)
	}
	if text := strings.Join(parts, i.separator); text != "" {
		out.CreateText(text)
	}
	return nil
}

type copyOfInstr struct {
	sel *Executable
	loc sink.Location
}

func (i *copyOfInstr) execute(s *execState, out *etree.Element) error {
	v, err := s.eval(i.sel)
	if err != nil {
		return locate(err, i.loc)
	}
	for _, item := range items(v) {
		n, ok := item.(*Node)
		if !ok {
			out.CreateText(StringValue(item))
			continue
		}
		if n.IsDocument() {
			for _, el := range n.el.ChildElements() {
				out.AddChild(el.Copy())
			}
			continue
		}
		out.AddChild(n.el.Copy())
	}
	return nil
}

type forEachInstr struct {
	sel  *Executable
	body []instruction
	loc  sink.Location
}

func (i *forEachInstr) execute(s *execState, out *etree.Element) error {
	v, err := s.eval(i.sel)
	if err != nil {
		return locate(err, i.loc)
	}
	seq := items(v)
	for n, item := range seq {
		cs := s.child()
		cs.item = item
		cs.vars["position"] = n + 1
		cs.vars["last"] = len(seq)
		if err := execute(i.body, cs, out); err != nil {
			return err
		}
	}
	return nil
}

type ifInstr struct {
	test *Executable
	body []instruction
	loc  sink.Location
}

func (i *ifInstr) holds(s *execState) (bool, error) {
	v, err := s.eval(i.test)
	if err != nil {
		return false, locate(err, i.loc)
	}
	ok, err := effectiveBoolean(v)
	if err != nil {
		return false, locate(err, i.loc)
	}
	return ok, nil
}

func (i *ifInstr) execute(s *execState, out *etree.Element) error {
	ok, err := i.holds(s)
	if err != nil || !ok {
		return err
	}
	return execute(i.body, s.child(), out)
}

type chooseInstr struct {
	whens     []*ifInstr
	otherwise []instruction
	loc       sink.Location
}

func (i *chooseInstr) execute(s *execState, out *etree.Element) error {
	for _, w := range i.whens {
		ok, err := w.holds(s)
		if err != nil {
			return err
		}
		if ok {
			return execute(w.body, s.child(), out)
		}
	}
	return execute(i.otherwise, s.child(), out)
}

type variableInstr struct {
	name string
	sel  *Executable
	body []instruction
	loc  sink.Location
}

func (i *variableInstr) execute(s *execState, _ *etree.Element) error {
	v, err := s.value(i.sel, i.body)
	if err != nil {
		return locate(err, i.loc)
	}
	s.vars[i.name] = v
	return nil
}

type callTemplateInstr struct {
	name   string
	params []*paramDecl
	loc    sink.Location
}

func (i *callTemplateInstr) execute(s *execState, out *etree.Element) error {
	args := make(map[string]any, len(i.params))
	for _, p := range i.params {
		v, err := s.value(p.sel, p.body)
		if err != nil {
			return locate(err, i.loc)
		}
		args[p.name] = v
	}
	return s.callTemplate(s.tr.tpl.templates[i.name], args, out)
}

type messageInstr struct {
	sel       *Executable
	body      []instruction
	terminate bool
	loc       sink.Location
}

func (i *messageInstr) execute(s *execState, _ *etree.Element) error {
	v, err := s.value(i.sel, i.body)
	if err != nil {
		return locate(err, i.loc)
	}
	content := StringValue(v)
	if l := s.tr.listener; l != nil {
		l.Message(sink.Message{Content: content, Location: i.loc, Terminate: i.terminate, Time: s.run.now})
	}
	if i.terminate {
		return errorf(CodeTerminated, "processing terminated by message: %s", content).at(i.loc)
	}
	return nil
}

type resultDocumentInstr struct {
	href []avtPart
	body []instruction
	loc  sink.Location
}

func (i *resultDocumentInstr) execute(s *execState, _ *etree.Element) error {
	href, err := s.avt(i.href)
	if err != nil {
		return locate(err, i.loc)
	}
	doc := etree.NewDocument()
	if err := execute(i.body, s.child(), &doc.Element); err != nil {
		return err
	}

	var handler sink.ResultHandler = s.tr.results
	if s.tr.handler != nil {
		handler = s.tr.handler
	}
	dest, err := handler.ResultRequested(href, s.tr.baseOutputURI)
	if err != nil {
		return (&Error{Code: CodeTemplateDynamic, Message: err.Error(), Err: err}).at(i.loc)
	}
	if err := s.tr.serialize(doc, dest); err != nil {
		dest.Close()
		return locate(err, i.loc)
	}
	if err := dest.Close(); err != nil {
		return (&Error{Code: CodeTemplateDynamic, Message: err.Error(), Err: err}).at(i.loc)
	}
	return nil
}

type literalAttr struct {
	name  string
	value []avtPart
}

type literalInstr struct {
	tag   string
	attrs []literalAttr
	body  []instruction
	loc   sink.Location
}

func (i *literalInstr) execute(s *execState, out *etree.Element) error {
	el := out.CreateElement(i.tag)
	for _, a := range i.attrs {
		v, err := s.avt(a.value)
		if err != nil {
			return locate(err, i.loc)
		}
		el.CreateAttr(a.name, v)
	}
	return execute(i.body, s.child(), el)
}

type avtPart struct {
	text string
	expr *Executable
}

func (s *execState) avt(parts []avtPart) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		if p.expr == nil {
			b.WriteString(p.text)
			continue
		}
		v, err := s.eval(p.expr)
		if err != nil {
			return "", err
		}
		b.WriteString(StringValue(v))
	}
	return b.String(), nil
}

// locate attaches an instruction's location to an error that has none.
func locate(err error, loc sink.Location) error {
	if e, ok := err.(*Error); ok {
		return e.at(loc)
	}
	return asEngineError(err, CodeDynamic).at(loc)
}
