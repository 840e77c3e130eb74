package scenario

import (
	"io"

	"github.com/beevik/etree"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/resolve"
)

// emptyTemplate is served for any request ending in empty.tpl.
const emptyTemplate = `<t:transform xmlns:t="` + engine.TemplateNamespace + `"/>`

// SampleResolver synthesises resources: every .txt URI becomes a small XML
// document naming itself, and empty.tpl becomes a template module with nothing
// in it. Everything else is declined.
func SampleResolver() resolve.Resolver {
	return &resolve.SuffixResolver{Rules: []resolve.SuffixRule{
		{Suffix: ".txt", Produce: func(uri string) *resolve.Resource {
			data, err := uriDocument(uri)
			if err != nil {
				return nil
			}
			return &resolve.Resource{URI: uri, ContentType: "application/xml", Content: data}
		}},
		{Suffix: "empty.tpl", Produce: func(uri string) *resolve.Resource {
			return &resolve.Resource{URI: uri, ContentType: "application/xml", Content: []byte(emptyTemplate)}
		}},
	}}
}

// uriDocument is <uri>URI</uri> with the URI escaped as element text.
func uriDocument(uri string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateElement("uri").SetText(uri)
	return doc.WriteToBytes()
}

// tracedPhases wraps SampleResolver in one tracing resolver per phase, so the
// output shows which phase asked for what.
func tracedPhases(out io.Writer) resolve.Phases {
	sample := SampleResolver()
	return resolve.Phases{
		Build:   &resolve.Tracing{Label: "build-time resolver", Out: out, Next: sample},
		Compile: &resolve.Tracing{Label: "compile-time resolver", Out: out, Next: sample},
		Run:     &resolve.Tracing{Label: "run-time resolver", Out: out, Next: sample},
	}
}
