package engine

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

// Document is a parsed source document.
type Document struct {
	tree  *etree.Document
	uri   string
	lines map[*etree.Element]int
}

// URI returns the document's system id.
func (d *Document) URI() string { return d.uri }

// Tree exposes the underlying tree.
func (d *Document) Tree() *etree.Document { return d.tree }

// Node returns the document node.
func (d *Document) Node() *Node { return newNode(d, &d.tree.Element) }

// Root returns the document element, or nil for an empty document.
func (d *Document) Root() *Node { return newNode(d, d.tree.Root()) }

// String serializes the document.
func (d *Document) String() string {
	s, err := d.tree.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// DocumentBuilder parses XML and HTML into Documents.
type DocumentBuilder struct {
	proc     *Processor
	resolver resolve.Resolver
	baseURI  string
	strip    bool
}

// SetResolver replaces the resolver used for the document and its external entities.
func (b *DocumentBuilder) SetResolver(r resolve.Resolver) { b.resolver = r }

// SetBaseURI sets the base against which relative URIs passed to Build are resolved.
func (b *DocumentBuilder) SetBaseURI(uri string) { b.baseURI = uri }

// SetStripWhitespace removes whitespace-only text nodes from built documents.
func (b *DocumentBuilder) SetStripWhitespace(on bool) { b.strip = on }

// Build resolves uri and parses the result.
func (b *DocumentBuilder) Build(ctx context.Context, uri string) (*Document, error) {
	res, err := b.proc.fetch(ctx, b.resolver, resolve.Request{URI: uri, BaseURI: b.baseURI, Nature: resolve.NatureDocument})
	if err != nil {
		return nil, &Error{Code: CodeDocument, Message: err.Error(), Location: sink.Location{SystemID: uri}, Err: err}
	}
	return b.buildResource(ctx, res)
}

// BuildString parses text as XML.
func (b *DocumentBuilder) BuildString(ctx context.Context, text, systemID string) (*Document, error) {
	return b.parseXML(ctx, []byte(text), systemID)
}

// BuildReader parses XML read from r.
func (b *DocumentBuilder) BuildReader(ctx context.Context, r io.Reader, systemID string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Code: CodeDocument, Message: err.Error(), Location: sink.Location{SystemID: systemID}, Err: err}
	}
	return b.parseXML(ctx, data, systemID)
}

func (b *DocumentBuilder) buildResource(ctx context.Context, res *resolve.Resource) (*Document, error) {
	if res.ContentType == "text/html" {
		return b.parseHTML(res.Content, res.URI)
	}
	return b.parseXML(ctx, res.Content, res.URI)
}

var (
	externalEntityDecl = regexp.MustCompile(`<!ENTITY\s+([^\s%]+)\s+(?:SYSTEM|PUBLIC\s+(?:"[^"]*"|'[^']*'))\s+("[^"]*"|'[^']*')\s*>`)
	internalEntityDecl = regexp.MustCompile(`<!ENTITY\s+([^\s%]+)\s+("[^"]*"|'[^']*')\s*>`)
)

// entities collects the general entities declared in the internal DTD subset,
// resolving external ones through the builder's resolver.
func (b *DocumentBuilder) entities(ctx context.Context, data []byte, systemID string) (map[string]string, error) {
	start := bytes.Index(data, []byte("<!DOCTYPE"))
	if start < 0 {
		return nil, nil
	}
	subset := data[start:]
	if end := bytes.Index(subset, []byte("]>")); end >= 0 {
		subset = subset[:end]
	}

	ents := make(map[string]string)
	for _, m := range internalEntityDecl.FindAllSubmatch(subset, -1) {
		ents[string(m[1])] = unquote(string(m[2]))
	}
	for _, m := range externalEntityDecl.FindAllSubmatch(subset, -1) {
		name, uri := string(m[1]), unquote(string(m[2]))
		res, err := b.proc.fetch(ctx, b.resolver, resolve.Request{URI: uri, BaseURI: systemID, Nature: resolve.NatureExternalEntity})
		if err != nil {
			return nil, &Error{
				Code:     CodeNotWellFormed,
				Message:  "failed to resolve external entity " + name + ": " + err.Error(),
				Location: sink.Location{SystemID: systemID},
				Err:      err,
			}
		}
		ents[name] = res.Text()
	}
	return ents, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

func (b *DocumentBuilder) parseXML(ctx context.Context, data []byte, systemID string) (*Document, error) {
	ents, err := b.entities(ctx, data, systemID)
	if err != nil {
		return nil, err
	}
	tree := etree.NewDocument()
	tree.ReadSettings.Entity = ents
	if err := tree.ReadFromBytes(data); err != nil {
		e := &Error{Code: CodeNotWellFormed, Message: err.Error(), Location: sink.Location{SystemID: systemID}, Err: err}
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			e.Message = se.Msg
			e.Location.Line = se.Line
		}
		return nil, e
	}

	doc := &Document{tree: tree, uri: systemID, lines: elementLines(tree, data, ents)}
	if b.strip {
		stripWhitespace(&tree.Element)
	}
	if tree.Root() == nil {
		return nil, &Error{Code: CodeNotWellFormed, Message: "document has no root element", Location: sink.Location{SystemID: systemID}}
	}
	b.proc.logger.Debug("built document", "uri", systemID, "root", tree.Root().FullTag())
	return doc, nil
}

func (b *DocumentBuilder) parseHTML(data []byte, systemID string) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Code: CodeNotWellFormed, Message: err.Error(), Location: sink.Location{SystemID: systemID}, Err: err}
	}
	tree := etree.NewDocument()
	copyHTML(&tree.Element, root)
	if b.strip {
		stripWhitespace(&tree.Element)
	}
	b.proc.logger.Debug("built HTML document", "uri", systemID)
	return &Document{tree: tree, uri: systemID, lines: map[*etree.Element]int{}}, nil
}

func copyHTML(parent *etree.Element, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el := parent.CreateElement(c.Data)
			for _, a := range c.Attr {
				el.CreateAttr(a.Key, a.Val)
			}
			copyHTML(el, c)
		case html.TextNode:
			parent.CreateText(c.Data)
		case html.CommentNode:
			parent.CreateComment(c.Data)
		}
	}
}

func stripWhitespace(el *etree.Element) {
	for i := len(el.Child) - 1; i >= 0; i-- {
		switch c := el.Child[i].(type) {
		case *etree.CharData:
			if strings.TrimSpace(c.Data) == "" {
				el.RemoveChildAt(i)
			}
		case *etree.Element:
			stripWhitespace(c)
		}
	}
}

// elementLines maps each element to the line its start tag ends on. A second,
// lenient token pass yields start elements in the same document order the tree
// holds them.
func elementLines(tree *etree.Document, data []byte, ents map[string]string) map[*etree.Element]int {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = ents
	var lines []int
	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}
		if _, ok := tok.(xml.StartElement); ok {
			line, _ := dec.InputPos()
			lines = append(lines, line)
		}
	}

	out := make(map[*etree.Element]int, len(lines))
	i := 0
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if i < len(lines) {
				out[c] = lines[i]
			}
			i++
			walk(c)
		}
	}
	walk(&tree.Element)
	return out
}
