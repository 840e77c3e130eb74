package scenario

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

const (
	booksTemplatePath = "styles/books.tpl"
	actsTemplatePath  = "styles/acts.tpl"
)

func transformSimple(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	tpl, err := p.NewTemplateCompiler().Compile(ctx, env.Sample(booksTemplatePath))
	if err != nil {
		return err
	}
	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	if err := tpl.Load().Apply(ctx, doc, env.Out); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

const copyCategoriesTemplate = `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:copy-of select="node.First('//CATEGORIES')"/>
  </t:template>
</t:transform>`

func transformStripSpace(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	b := p.NewDocumentBuilder()
	b.SetStripWhitespace(true)
	doc, err := b.Build(ctx, env.Sample(booksPath))
	if err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, copyCategoriesTemplate, env.Sample("styles/strip-space.tpl"))
	if err != nil {
		return err
	}
	if err := tpl.Load().Apply(ctx, doc, env.Out); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

const entitySource = `<!DOCTYPE doc [<!ENTITY e SYSTEM "flamingo.txt">]><doc>&e;</doc>`

const resolvingTemplate = `<t:transform xmlns:t="urn:xmlharness:template">
  <t:include href="empty.tpl"/>
  <t:template name="main">
    <out note="{doc('heron.txt').Text()}"><t:copy-of select="node"/></out>
  </t:template>
</t:transform>`

func transformUsingSourceResolver(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()
	p.InstallResolvers(tracedPhases(env.Out))

	doc, err := p.NewDocumentBuilder().BuildString(ctx, entitySource, env.Sample("in-memory.xml"))
	if err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, resolvingTemplate, env.Sample("in-memory.tpl"))
	if err != nil {
		return err
	}
	if err := tpl.Load().Apply(ctx, doc, env.Out); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

// brokenTemplate has three static errors: an undeclared variable, an unknown
// instruction and a malformed expression.
const brokenTemplate = `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:value-of select="total"/>
    <t:apply-templates/>
    <out n="{1 +}"/>
  </t:template>
</t:transform>`

func transformDisplayingErrors(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewTemplateCompiler()
	c.SetErrorReporter(&sink.WriterReporter{Out: env.Out})
	if _, err := c.CompileString(ctx, brokenTemplate, env.Sample("styles/broken.tpl")); err != nil {
		env.printf("Template compilation failed: %v\n", err)
		return nil
	}
	env.printf("Template compilation succeeded unexpectedly\n")
	return nil
}

func transformCapturingErrors(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	var diags sink.DiagnosticList
	c := p.NewTemplateCompiler()
	c.SetErrorReporter(&diags)
	if _, err := c.CompileString(ctx, brokenTemplate, env.Sample("styles/broken.tpl")); err == nil {
		env.printf("Template compilation succeeded unexpectedly\n")
		return nil
	}
	env.printf("Template compilation failed with %d errors\n", diags.Errors())
	for _, d := range diags.Records() {
		env.printf("At line %d: %s\n", d.Line, d.Message)
	}
	return nil
}

const messagesTemplate = `<t:transform xmlns:t="urn:xmlharness:template">
  <t:template name="main">
    <t:message>Starting to list <t:value-of select="node.Count('//ITEM')"/> books</t:message>
    <books date="{currentDateTime().Format('2006-01-02')}">
      <t:for-each select="node.Find('//ITEM')">
        <t:if test="node.First('PRICE').Number() > 10">
          <t:message select="'Expensive: ' + node.First('TITLE').Text()"/>
        </t:if>
        <book><t:value-of select="node.First('TITLE').Text()"/></book>
      </t:for-each>
    </books>
    <t:message>Finished</t:message>
  </t:template>
</t:transform>`

func transformCapturingMessages(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, messagesTemplate, env.Sample("styles/messages.tpl"))
	if err != nil {
		return err
	}
	tr := tpl.Load()
	tr.SetMessageListener(sink.MessageListenerFunc(func(m sink.Message) {
		terminate := "no"
		if m.Terminate {
			terminate = "yes"
		}
		env.printf("MESSAGE terminate=%s at %s\n", terminate, m.Time.Format(time.RFC3339))
		env.printf("From instruction at line %d of %s\n", m.Location.Line, m.Location.SystemID)
		env.printf(">>%s\n", m.Content)
	}))
	if err := tr.Apply(ctx, doc, io.Discard); err != nil {
		return err
	}
	return nil
}

func transformUsingResultHandler(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := p.NewDocumentBuilder().Build(ctx, env.Sample(othelloPath))
	if err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().Compile(ctx, env.Sample(actsTemplatePath))
	if err != nil {
		return err
	}

	results := make(map[string]*sink.BufferDestination)
	tr := tpl.Load()
	tr.SetBaseOutputURI(env.SamplesDir)
	tr.SetResultHandler(sink.ResultHandlerFunc(func(href, baseURI string) (sink.Destination, error) {
		uri, err := resolve.Absolute(baseURI, href)
		if err != nil {
			return nil, err
		}
		d := &sink.BufferDestination{}
		results[uri] = d
		return d, nil
	}))
	if err := tr.Apply(ctx, doc, io.Discard); err != nil {
		return err
	}

	uris := make([]string, 0, len(results))
	for uri := range results {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		env.printf("Result File %s\n", uri)
		env.printf("%s\n", results[uri].String())
	}
	return nil
}

const collectionTemplate = `<t:transform xmlns:t="urn:xmlharness:template">
  <t:param name="uri"/>
  <t:output indent="yes"/>
  <t:template name="main">
    <collection uri="{uri}">
      <t:for-each select="collection(uri)">
        <document uri="{node.URI()}" nodes="{node.Count('//*')}"/>
      </t:for-each>
    </collection>
  </t:template>
</t:transform>`

func runCollectionTemplate(ctx context.Context, env *Env, p *engine.Processor, uri string) error {
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, collectionTemplate, env.Sample("styles/collection.tpl"))
	if err != nil {
		return err
	}
	tr := tpl.Load()
	if err := tr.SetParameter("uri", uri); err != nil {
		return err
	}
	return tr.CallTemplate(ctx, engine.DefaultInitialTemplate, env.Out)
}

func transformUsingCollectionFinder(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	path, err := env.SamplePath(manifestPath)
	if err != nil {
		return err
	}
	manifest, err := resolve.LoadManifest(path)
	if err != nil {
		return err
	}
	finder, err := manifest.Finder(p.StandardCollectionFinder())
	if err != nil {
		return err
	}
	p.SetCollectionFinder(finder)

	if err := runCollectionTemplate(ctx, env, p, "http://www.example.org/my-collection"); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

func transformUsingDirectoryCollection(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	uri := fmt.Sprintf("%s?recurse=yes;select=*.xml", env.Sample("data/"))
	if err := runCollectionTemplate(ctx, env, p, uri); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}
