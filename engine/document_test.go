package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/joncooperworks/xmlharness/resolve"
)

const booksXML = `<?xml version="1.0"?>
<BOOKLIST>
  <BOOKS>
    <ITEM CAT="MMP">
      <TITLE>Pride and Prejudice</TITLE>
      <PRICE>4.95</PRICE>
    </ITEM>
    <ITEM CAT="P">
      <TITLE>Wuthering Heights</TITLE>
      <PRICE>12.50</PRICE>
    </ITEM>
    <ITEM CAT="P">
      <TITLE>Tess of the d'Urbervilles</TITLE>
      <PRICE>4.95</PRICE>
    </ITEM>
  </BOOKS>
</BOOKLIST>`

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p := NewProcessor(WithLogger(log.New(io.Discard)))
	t.Cleanup(func() { p.Close() })
	return p
}

func buildBooks(t *testing.T, p *Processor) *Document {
	t.Helper()
	doc, err := p.NewDocumentBuilder().BuildString(context.Background(), booksXML, "file:///data/books.xml")
	if err != nil {
		t.Fatalf("BuildString() error = %v", err)
	}
	return doc
}

// staticResolver serves fixed content by request URI and records natures.
type staticResolver struct {
	content     map[string]string
	contentType string
	natures     []resolve.Nature
}

func (r *staticResolver) Resolve(_ context.Context, req resolve.Request) (*resolve.Resource, error) {
	text, ok := r.content[req.URI]
	if !ok {
		return nil, nil
	}
	r.natures = append(r.natures, req.Nature)
	ct := r.contentType
	if ct == "" {
		ct = "application/xml"
	}
	return &resolve.Resource{URI: "file:///virtual/" + req.URI, ContentType: ct, Content: []byte(text)}, nil
}

func TestDocumentNavigation(t *testing.T) {
	doc := buildBooks(t, newTestProcessor(t))
	root := doc.Root()

	if root.Name() != "BOOKLIST" {
		t.Errorf("Root().Name() = %q, want BOOKLIST", root.Name())
	}
	if n, err := root.Count("BOOKS/ITEM"); err != nil || n != 3 {
		t.Errorf("Count(BOOKS/ITEM) = %d, %v, want 3", n, err)
	}
	items, err := doc.Node().Find("//ITEM")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	second := items[1].(*Node)
	if got := second.Attr("CAT"); got != "P" {
		t.Errorf("Attr(CAT) = %q, want P", got)
	}
	if got := second.Path(); got != "/BOOKLIST/BOOKS/ITEM[2]" {
		t.Errorf("Path() = %q", got)
	}
	title, err := second.First("TITLE")
	if err != nil || title.(*Node).Text() != "Wuthering Heights" {
		t.Errorf("First(TITLE) = %v, %v", title, err)
	}
	price, err := second.First("PRICE")
	if err != nil {
		t.Fatalf("First(PRICE) error = %v", err)
	}
	if f, err := price.(*Node).Number(); err != nil || f != 12.5 {
		t.Errorf("Number() = %v, %v, want 12.5", f, err)
	}
	if root.Line() != 2 || second.Line() != 8 {
		t.Errorf("Line() = %d and %d, want 2 and 8", root.Line(), second.Line())
	}
	if doc.Node().Path() != "/" || !doc.Node().IsDocument() {
		t.Error("document node path is not /")
	}
	if _, err := root.Find("[[["); err == nil {
		t.Error("Find() with an invalid path error = nil")
	}
}

func TestDocumentStripWhitespace(t *testing.T) {
	b := newTestProcessor(t).NewDocumentBuilder()
	b.SetStripWhitespace(true)
	doc, err := b.BuildString(context.Background(), booksXML, "books.xml")
	if err != nil {
		t.Fatalf("BuildString() error = %v", err)
	}
	if n := len(doc.Root().Element().Child); n != 1 {
		t.Errorf("BOOKLIST has %d children after stripping, want 1", n)
	}
}

func TestDocumentExternalEntity(t *testing.T) {
	r := &staticResolver{content: map[string]string{"intro.txt": "Hello from an entity"}}
	b := newTestProcessor(t).NewDocumentBuilder()
	b.SetResolver(r)

	src := `<!DOCTYPE doc [<!ENTITY intro SYSTEM "intro.txt"><!ENTITY who "reader">]><doc>&intro;, &who;</doc>`
	doc, err := b.BuildString(context.Background(), src, "file:///virtual/doc.xml")
	if err != nil {
		t.Fatalf("BuildString() error = %v", err)
	}
	if got := doc.Root().Text(); got != "Hello from an entity, reader" {
		t.Errorf("Text() = %q", got)
	}
	if len(r.natures) != 1 || r.natures[0] != resolve.NatureExternalEntity {
		t.Errorf("resolver saw natures %v, want [external entity]", r.natures)
	}
}

func TestDocumentBuildThroughResolver(t *testing.T) {
	r := &staticResolver{content: map[string]string{"books.xml": booksXML}}
	b := newTestProcessor(t).NewDocumentBuilder()
	b.SetResolver(r)

	doc, err := b.Build(context.Background(), "books.xml")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if doc.URI() != "file:///virtual/books.xml" {
		t.Errorf("URI() = %q", doc.URI())
	}
	if r.natures[0] != resolve.NatureDocument {
		t.Errorf("nature = %q, want document", r.natures[0])
	}
}

func TestDocumentHTML(t *testing.T) {
	r := &staticResolver{
		content:     map[string]string{"page.html": `<html><head><title>Books</title></head><body><p class="x">One<p>Two</body></html>`},
		contentType: "text/html",
	}
	b := newTestProcessor(t).NewDocumentBuilder()
	b.SetResolver(r)

	doc, err := b.Build(context.Background(), "page.html")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	root := doc.Root()
	if root.Name() != "html" {
		t.Errorf("Root().Name() = %q, want html", root.Name())
	}
	if n, _ := root.Count("body/p"); n != 2 {
		t.Errorf("Count(body/p) = %d, want 2", n)
	}
	title, _ := root.First("head/title")
	if title == nil || title.(*Node).Text() != "Books" {
		t.Errorf("title = %v", title)
	}
}

func TestDocumentNotWellFormed(t *testing.T) {
	_, err := newTestProcessor(t).NewDocumentBuilder().BuildString(context.Background(), "<a>\n<b></a>", "bad.xml")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("BuildString() error = %v, want *Error", err)
	}
	if e.Code != CodeNotWellFormed || e.Location.Line != 2 || e.Location.SystemID != "bad.xml" {
		t.Errorf("error = %+v", e)
	}
}

func TestDocumentMissingResource(t *testing.T) {
	b := newTestProcessor(t).NewDocumentBuilder()
	b.SetResolver(&staticResolver{})
	_, err := b.Build(context.Background(), "https-unknown://nowhere/x.xml")
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeDocument {
		t.Errorf("Build() error = %v, want %s", err, CodeDocument)
	}
}
