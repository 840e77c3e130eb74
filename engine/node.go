package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Node is an element or document node as seen by expressions. Expressions call
// its methods directly, as in node.Find("BOOKS/ITEM")[0].Attr("CAT").
type Node struct {
	el  *etree.Element
	doc *Document
}

func newNode(doc *Document, el *etree.Element) *Node {
	if el == nil {
		return nil
	}
	return &Node{el: el, doc: doc}
}

// Element exposes the underlying tree element.
func (n *Node) Element() *etree.Element { return n.el }

// Document returns the document the node belongs to.
func (n *Node) Document() *Document { return n.doc }

// IsDocument reports whether n is a document node.
func (n *Node) IsDocument() bool { return n.el.Parent() == nil }

// Name returns the local name, or "" for a document node.
func (n *Node) Name() string { return n.el.Tag }

// Namespace returns the namespace URI of the element.
func (n *Node) Namespace() string { return n.el.NamespaceURI() }

// Text returns the string value: all descendant text in document order.
func (n *Node) Text() string {
	var b strings.Builder
	appendText(&b, n.el)
	return b.String()
}

func appendText(b *strings.Builder, el *etree.Element) {
	for _, t := range el.Child {
		switch c := t.(type) {
		case *etree.CharData:
			b.WriteString(c.Data)
		case *etree.Element:
			appendText(b, c)
		}
	}
}

// Number parses the string value as a number.
func (n *Node) Number() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(n.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a number: %q", n.Path(), n.Text())
	}
	return f, nil
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	return n.el.SelectAttrValue(name, "")
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(name string) bool {
	return n.el.SelectAttr(name) != nil
}

// Find returns the elements selected by an etree path, relative to n. Paths
// starting with / or // are evaluated from the document root.
func (n *Node) Find(path string) ([]any, error) {
	els, err := n.selectPath(path)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(els))
	for i, el := range els {
		out[i] = newNode(n.doc, el)
	}
	return out, nil
}

// First returns the first element selected by path, or nil.
func (n *Node) First(path string) (any, error) {
	els, err := n.selectPath(path)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return newNode(n.doc, els[0]), nil
}

// Count returns the number of elements selected by path.
func (n *Node) Count(path string) (int, error) {
	els, err := n.selectPath(path)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (n *Node) selectPath(path string) ([]*etree.Element, error) {
	p, err := etree.CompilePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return n.el.FindElementsPath(p), nil
}

// Children returns the child elements.
func (n *Node) Children() []any {
	kids := n.el.ChildElements()
	out := make([]any, len(kids))
	for i, el := range kids {
		out[i] = newNode(n.doc, el)
	}
	return out
}

// Parent returns the parent node, or nil for a document node.
func (n *Node) Parent() any {
	if p := n.el.Parent(); p != nil {
		return newNode(n.doc, p)
	}
	return nil
}

// URI returns the document URI.
func (n *Node) URI() string {
	if n.doc == nil {
		return ""
	}
	return n.doc.uri
}

// Line returns the line the element starts on, or 0 when unknown.
func (n *Node) Line() int {
	if n.doc == nil {
		return 0
	}
	return n.doc.lines[n.el]
}

// Path returns an absolute path to the node such as /BOOKLIST/BOOKS/ITEM[2].
// Positions are given only where a name repeats among siblings.
func (n *Node) Path() string {
	if n.IsDocument() {
		return "/"
	}
	var steps []string
	for el := n.el; el.Parent() != nil; el = el.Parent() {
		step := el.FullTag()
		parent := el.Parent()
		pos, count := 0, 0
		for _, sib := range parent.ChildElements() {
			if sib.Space == el.Space && sib.Tag == el.Tag {
				count++
				if sib == el {
					pos = count
				}
			}
		}
		if count > 1 {
			step += "[" + strconv.Itoa(pos) + "]"
		}
		steps = append(steps, step)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

// String serializes the node.
func (n *Node) String() string {
	if n.IsDocument() && n.doc != nil {
		return n.doc.String()
	}
	d := etree.NewDocument()
	d.SetRoot(n.el.Copy())
	s, err := d.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
