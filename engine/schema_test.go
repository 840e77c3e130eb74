package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

const booksXSD = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:include schemaLocation="item.xsd"/>
  <xs:element name="BOOKLIST">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="BOOKS">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="ITEM" type="itemType" maxOccurs="unbounded"/>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

const itemXSD = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="itemType">
    <xs:sequence>
      <xs:element name="TITLE" type="xs:string"/>
      <xs:element name="PRICE" type="xs:decimal"/>
    </xs:sequence>
    <xs:attribute name="CAT" type="xs:string" use="required"/>
  </xs:complexType>
</xs:schema>`

func compileBooksSchema(t *testing.T, p *Processor) (*Schema, *staticResolver) {
	t.Helper()
	r := &staticResolver{content: map[string]string{
		"books.xsd": booksXSD,
		"item.xsd":  itemXSD,
	}}
	m := p.NewSchemaManager()
	m.SetResolver(r)
	s, err := m.Compile(context.Background(), "file:///virtual/books.xsd")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return s, r
}

func TestSchemaThroughResolver(t *testing.T) {
	p := newTestProcessor(t)
	s, r := compileBooksSchema(t, p)
	if s.URI() != "file:///virtual/books.xsd" {
		t.Errorf("URI() = %q", s.URI())
	}
	if len(r.natures) < 2 {
		t.Fatalf("resolver saw %d requests, want the schema and its include", len(r.natures))
	}
	for _, n := range r.natures {
		if n != resolve.NatureSchemaDocument {
			t.Errorf("nature = %q, want schema document", n)
		}
	}
}

func TestSchemaValidInstance(t *testing.T) {
	p := newTestProcessor(t)
	s, _ := compileBooksSchema(t, p)

	var diags sink.DiagnosticList
	v := s.NewValidator()
	v.SetInvalidityListener(&diags)
	if err := v.Validate(strings.NewReader(booksXML), "books.xml"); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := v.ValidateDocument(buildBooks(t, p)); err != nil {
		t.Errorf("ValidateDocument() error = %v", err)
	}
	if diags.Len() != 0 {
		t.Errorf("reported %d invalidities for a valid instance", diags.Len())
	}
}

func TestSchemaInvalidInstance(t *testing.T) {
	p := newTestProcessor(t)
	s, _ := compileBooksSchema(t, p)

	invalid := `<BOOKLIST>
  <BOOKS>
    <ITEM>
      <TITLE>Missing a category</TITLE>
      <PRICE>cheap</PRICE>
    </ITEM>
  </BOOKS>
</BOOKLIST>`

	var diags sink.DiagnosticList
	v := s.NewValidator()
	v.SetInvalidityListener(&diags)
	err := v.Validate(strings.NewReader(invalid), "books-invalid.xml")

	var e *Error
	if !errors.As(err, &e) || e.Code != CodeValidation {
		t.Fatalf("Validate() error = %v, want %s", err, CodeValidation)
	}
	if diags.Len() == 0 {
		t.Fatal("no invalidity was reported")
	}
	for _, d := range diags.Records() {
		if d.SystemID != "books-invalid.xml" || d.Severity != sink.SeverityError {
			t.Errorf("diagnostic = %+v", d)
		}
	}
}

func TestSchemaCompileErrors(t *testing.T) {
	p := newTestProcessor(t)

	tests := []struct {
		name    string
		content map[string]string
	}{
		{"missing", map[string]string{}},
		{"missing include", map[string]string{"books.xsd": booksXSD}},
		{"not a schema", map[string]string{"books.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="x" type="nosuch"/></xs:schema>`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var diags sink.DiagnosticList
			m := p.NewSchemaManager()
			m.SetResolver(resolve.Chain(&staticResolver{content: tt.content}, resolve.ResolverFunc(func(context.Context, resolve.Request) (*resolve.Resource, error) {
				return nil, errors.New("not found")
			})))
			m.SetErrorReporter(&diags)
			_, err := m.Compile(context.Background(), "file:///virtual/books.xsd")
			var e *Error
			if !errors.As(err, &e) || e.Code != CodeSchema {
				t.Errorf("Compile() error = %v, want %s", err, CodeSchema)
			}
			if diags.Len() == 0 {
				t.Error("no diagnostic was reported")
			}
		})
	}
}
