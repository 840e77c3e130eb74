package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

func compileTemplate(t *testing.T, p *Processor, src string) *Template {
	t.Helper()
	tpl, err := p.NewTemplateCompiler().CompileString(context.Background(), src, "file:///virtual/test.tpl")
	if err != nil {
		t.Fatalf("CompileString() error = %v", err)
	}
	return tpl
}

func TestTemplateOutput(t *testing.T) {
	p := newTestProcessor(t)
	tpl := compileTemplate(t, p, `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <ul count="{node.Count('//ITEM')}" note="{{literal}}">
      <t:for-each select="node.Find('//ITEM')">
        <li n="{position}/{last}"><t:value-of select="node.First('TITLE').Text()"/></li>
      </t:for-each>
      <t:choose>
        <t:when test="node.Count('//ITEM') > 5">many</t:when>
        <t:otherwise><t:text>few</t:text></t:otherwise>
      </t:choose>
      <t:variable name="cheap" select="len(filter(node.Find('//PRICE'), #.Number() &lt; 5))"/>
      <cheap><t:value-of select="cheap"/></cheap>
    </ul>
  </t:template>
</t:transform>`)

	var out bytes.Buffer
	if err := tpl.Load().Apply(context.Background(), buildBooks(t, p), &out); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		`<ul count="3" note="{literal}">`,
		`<li n="1/3">Pride and Prejudice</li>`,
		`<li n="2/3">Wuthering Heights</li>`,
		`few`,
		`<cheap>2</cheap>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %s:\n%s", want, got)
		}
	}
}

func TestTemplateReportsEveryStaticError(t *testing.T) {
	p := newTestProcessor(t)
	var diags sink.DiagnosticList
	c := p.NewTemplateCompiler()
	c.SetErrorReporter(&diags)

	_, err := c.CompileString(context.Background(), `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:value-of select="undeclared + 1"/>
    <t:value-of select="1 +"/>
    <t:bogus/>
  </t:template>
</t:transform>`, "file:///virtual/errors.tpl")

	var e *Error
	if !errors.As(err, &e) || e.Code != CodeUndeclaredVariable {
		t.Fatalf("CompileString() error = %v, want %s", err, CodeUndeclaredVariable)
	}
	records := diags.Records()
	if len(records) != 3 {
		t.Fatalf("reported %d diagnostics, want 3: %v", len(records), records)
	}
	want := []struct {
		code string
		line int
	}{
		{CodeUndeclaredVariable, 3},
		{CodeSyntax, 4},
		{CodeTemplateStatic, 5},
	}
	for i, w := range want {
		if records[i].Code != w.code || records[i].Line != w.line {
			t.Errorf("diagnostic %d = %s at line %d, want %s at line %d", i, records[i].Code, records[i].Line, w.code, w.line)
		}
		if records[i].SystemID != "file:///virtual/errors.tpl" {
			t.Errorf("diagnostic %d system ID = %q", i, records[i].SystemID)
		}
	}
}

func TestTemplateStaticErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not a transform", `<root/>`},
		{"missing call target", `<t:transform xmlns:t="urn:xmlharness:template"><t:template name="main"><t:call-template name="nosuch"/></t:template></t:transform>`},
		{"duplicate template", `<t:transform xmlns:t="urn:xmlharness:template"><t:template name="a"/><t:template name="a"/></t:transform>`},
		{"bad terminate", `<t:transform xmlns:t="urn:xmlharness:template"><t:template name="main"><t:message terminate="maybe"/></t:template></t:transform>`},
		{"unclosed avt", `<t:transform xmlns:t="urn:xmlharness:template"><t:template name="main"><a href="{node"/></t:template></t:transform>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestProcessor(t).NewTemplateCompiler().CompileString(context.Background(), tt.src, "bad.tpl")
			var e *Error
			if !errors.As(err, &e) || e.Code != CodeTemplateStatic {
				t.Errorf("CompileString() error = %v, want %s", err, CodeTemplateStatic)
			}
		})
	}
}

func TestTemplateTerminatingMessage(t *testing.T) {
	p := newTestProcessor(t)
	tpl := compileTemplate(t, p, `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:message select="'starting'"/>
    <t:message terminate="yes">stop at <t:value-of select="node.Count('//ITEM')"/></t:message>
    <never/>
  </t:template>
</t:transform>`)

	var listener sink.MessageLog
	tr := tpl.Load()
	tr.SetMessageListener(&listener)
	var out bytes.Buffer
	err := tr.Apply(context.Background(), buildBooks(t, p), &out)

	var e *Error
	if !errors.As(err, &e) || e.Code != CodeTerminated {
		t.Fatalf("Apply() error = %v, want %s", err, CodeTerminated)
	}
	if e.Location.Line != 4 {
		t.Errorf("error line = %d, want 4", e.Location.Line)
	}
	msgs := listener.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "starting" || msgs[0].Terminate {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Content != "stop at 3" || !msgs[1].Terminate {
		t.Errorf("second message = %+v", msgs[1])
	}
	if out.Len() != 0 {
		t.Errorf("terminated run wrote %q", out.String())
	}
}

func TestTemplateResultDocuments(t *testing.T) {
	p := newTestProcessor(t)
	tpl := compileTemplate(t, p, `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:for-each select="node.Find('//ITEM')">
      <t:result-document href="item{position}.xml"><title><t:value-of select="node.First('TITLE').Text()"/></title></t:result-document>
    </t:for-each>
    <summary>written</summary>
  </t:template>
</t:transform>`)

	tr := tpl.Load()
	tr.SetBaseOutputURI("file:///out/")
	var out bytes.Buffer
	if err := tr.Apply(context.Background(), buildBooks(t, p), &out); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.String() != "<summary>written</summary>" {
		t.Errorf("principal result = %q", out.String())
	}
	uris := tr.Results().URIs()
	want := []string{"file:///out/item1.xml", "file:///out/item2.xml", "file:///out/item3.xml"}
	if strings.Join(uris, ",") != strings.Join(want, ",") {
		t.Fatalf("Results().URIs() = %v, want %v", uris, want)
	}
	d, _ := tr.Results().Get("file:///out/item2.xml")
	if d.String() != "<title>Wuthering Heights</title>" || !d.Closed() {
		t.Errorf("item2.xml = %q (closed %v)", d.String(), d.Closed())
	}
}

func TestTemplateIncludeParamsAndCallTemplate(t *testing.T) {
	p := newTestProcessor(t)
	r := &staticResolver{content: map[string]string{
		"main.tpl": `<t:transform xmlns:t="urn:xmlharness:template">
  <t:include href="lib.tpl"/>
  <t:param name="greeting" select="'Hello'"/>
  <t:param name="audience" required="yes"/>
  <t:template name="main">
    <t:call-template name="greet"><t:with-param name="who" select="audience"/></t:call-template>
  </t:template>
</t:transform>`,
		"lib.tpl": `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="greet">
    <t:param name="who" required="yes"/>
    <t:param name="mark">!</t:param>
    <p><t:value-of select="greeting + ', ' + who + mark"/></p>
  </t:template>
</t:transform>`,
	}}
	c := p.NewTemplateCompiler()
	c.SetResolver(r)
	tpl, err := c.Compile(context.Background(), "main.tpl")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(r.natures) != 2 || r.natures[1] != resolve.NatureStylesheetModule {
		t.Errorf("resolver saw natures %v, want two stylesheet modules", r.natures)
	}
	if tpl.SystemID() != "file:///virtual/main.tpl" {
		t.Errorf("SystemID() = %q", tpl.SystemID())
	}

	tr := tpl.Load()
	var e *Error
	if err := tr.CallTemplate(context.Background(), "main", nil); !errors.As(err, &e) || e.Code != CodeTemplateDynamic {
		t.Errorf("CallTemplate() without a required param error = %v, want %s", err, CodeTemplateDynamic)
	}
	if err := tr.SetParameter("nosuch", 1); err == nil {
		t.Error("SetParameter(nosuch) error = nil")
	}
	if err := tr.SetParameter("audience", "reader"); err != nil {
		t.Fatalf("SetParameter() error = %v", err)
	}
	var out bytes.Buffer
	if err := tr.CallTemplate(context.Background(), "main", &out); err != nil {
		t.Fatalf("CallTemplate() error = %v", err)
	}
	if out.String() != "<p>Hello, reader!</p>" {
		t.Errorf("CallTemplate() wrote %q", out.String())
	}

	tr.SetParameter("greeting", "Hi")
	out.Reset()
	if err := tr.CallTemplate(context.Background(), "main", &out); err != nil {
		t.Fatalf("CallTemplate() error = %v", err)
	}
	if out.String() != "<p>Hi, reader!</p>" {
		t.Errorf("CallTemplate() with greeting wrote %q", out.String())
	}

	if err := tr.CallTemplate(context.Background(), "absent", &out); !errors.As(err, &e) || e.Code != CodeTemplateDynamic {
		t.Errorf("CallTemplate(absent) error = %v, want %s", err, CodeTemplateDynamic)
	}
}

func TestTemplateIncludeCycle(t *testing.T) {
	r := &staticResolver{content: map[string]string{
		"a.tpl": `<t:transform xmlns:t="urn:xmlharness:template"><t:include href="b.tpl"/></t:transform>`,
		"b.tpl": `<t:transform xmlns:t="urn:xmlharness:template"><t:include href="a.tpl"/></t:transform>`,
	}}
	c := newTestProcessor(t).NewTemplateCompiler()
	c.SetResolver(r)
	_, err := c.Compile(context.Background(), "a.tpl")
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeTemplateStatic {
		t.Errorf("Compile() error = %v, want %s", err, CodeTemplateStatic)
	}
}

func TestTemplateCollections(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.xml":    `<first/>`,
		"b.xml":    `<second/>`,
		"note.txt": `not xml`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dirURI, err := resolve.DirURI(dir)
	if err != nil {
		t.Fatalf("DirURI() error = %v", err)
	}

	p := newTestProcessor(t)
	p.SetCollectionFinder(&resolve.ManifestFinder{
		Collections: map[string][]string{"http://example.com/pair": {"b.xml", "a.xml"}},
		Base:        dirURI,
		Standard:    p.StandardCollectionFinder(),
	})

	c := p.NewTemplateCompiler()
	tpl, err := c.CompileString(context.Background(), `<t:transform xmlns:t="urn:xmlharness:template">
  <t:param name="dir"/>
  <t:template name="main">
    <named><t:for-each select="collection('http://example.com/pair')"><t:value-of select="node.Element().ChildElements()[0].Tag"/>;</t:for-each></named>
    <scanned><t:value-of select="len(collection(dir + '?select=*.xml'))"/></scanned>
  </t:template>
</t:transform>`, "file:///virtual/collections.tpl")
	if err != nil {
		t.Fatalf("CompileString() error = %v", err)
	}
	tr := tpl.Load()
	tr.SetParameter("dir", dirURI)
	var out bytes.Buffer
	if err := tr.CallTemplate(context.Background(), "main", &out); err != nil {
		t.Fatalf("CallTemplate() error = %v", err)
	}
	want := "<named>second;first;</named><scanned>2</scanned>"
	if out.String() != want {
		t.Errorf("CallTemplate() wrote %q, want %q", out.String(), want)
	}

	tpl, err = c.CompileString(context.Background(), `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main"><t:value-of select="collection('http://example.com/unknown')"/></t:template>
</t:transform>`, "file:///virtual/missing.tpl")
	if err != nil {
		t.Fatalf("CompileString() error = %v", err)
	}
	err = tpl.Load().CallTemplate(context.Background(), "main", &out)
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeCollection {
		t.Errorf("CallTemplate() error = %v, want %s", err, CodeCollection)
	}
}
