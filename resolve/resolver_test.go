package resolve

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func constant(content string) Resolver {
	return ResolverFunc(func(_ context.Context, req Request) (*Resource, error) {
		return &Resource{URI: req.URI, Content: []byte(content)}, nil
	})
}

var decline = ResolverFunc(func(context.Context, Request) (*Resource, error) { return nil, nil })

func TestChain(t *testing.T) {
	ctx := context.Background()
	req := Request{URI: "a.xml", Nature: NatureDocument}

	res, err := Chain(decline, nil, constant("second"), constant("third")).Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Text() != "second" {
		t.Errorf("Resolve() = %q, want second", res.Text())
	}

	res, err = Chain(decline, decline).Resolve(ctx, req)
	if err != nil || res != nil {
		t.Errorf("Resolve() on all-declining chain = %v, %v, want nil, nil", res, err)
	}

	boom := errors.New("boom")
	failing := ResolverFunc(func(context.Context, Request) (*Resource, error) { return nil, boom })
	if _, err := Chain(failing, constant("unused")).Resolve(ctx, req); !errors.Is(err, boom) {
		t.Errorf("Resolve() error = %v, want boom", err)
	}
}

func TestWithFallback(t *testing.T) {
	res, err := WithFallback(decline, constant("fallback")).Resolve(context.Background(), Request{URI: "x"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res == nil || res.Text() != "fallback" {
		t.Errorf("Resolve() = %v, want the fallback resource", res)
	}
}

func TestSuffixResolver(t *testing.T) {
	r := &SuffixResolver{Rules: []SuffixRule{
		{Suffix: ".txt", Produce: func(uri string) *Resource {
			return &Resource{URI: uri, ContentType: "application/xml", Content: []byte("<uri>" + uri + "</uri>")}
		}},
	}}
	ctx := context.Background()

	res, err := r.Resolve(ctx, Request{URI: "flamingo.txt", BaseURI: "file:///samples/", Nature: NatureExternalEntity})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := "<uri>file:///samples/flamingo.txt</uri>"; res.Text() != want {
		t.Errorf("Resolve(.txt) = %q, want %q", res.Text(), want)
	}

	res, err = r.Resolve(ctx, Request{URI: "books.xml", BaseURI: "file:///samples/"})
	if err != nil || res != nil {
		t.Errorf("Resolve(.xml) = %v, %v, want decline", res, err)
	}
}

func TestTracing(t *testing.T) {
	var out bytes.Buffer
	r := &Tracing{Label: "run-time resolver", Out: &out}
	res, err := r.Resolve(context.Background(), Request{URI: "heron.txt", Nature: NatureDocument})
	if err != nil || res != nil {
		t.Errorf("Resolve() = %v, %v, want decline", res, err)
	}
	if want := "** Calling run-time resolver: heron.txt (nature=document)"; !strings.Contains(out.String(), want) {
		t.Errorf("trace = %q, want it to contain %q", out.String(), want)
	}

	r.Next = constant("next")
	res, err = r.Resolve(context.Background(), Request{URI: "heron.txt"})
	if err != nil || res.Text() != "next" {
		t.Errorf("Resolve() with Next = %v, %v", res, err)
	}
}

func TestAbsolute(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"file:///samples/data/", "books.xml", "file:///samples/data/books.xml"},
		{"file:///samples/data/books.xml", "../styles/a.tpl", "file:///samples/styles/a.tpl"},
		{"file:///samples/", "http://example.com/x.xml", "http://example.com/x.xml"},
		{"http://example.com/a/b.xml", "c.xml", "http://example.com/a/c.xml"},
		{"", "/abs/path.xml", "file:///abs/path.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := Absolute(tt.base, tt.ref)
			if err != nil {
				t.Fatalf("Absolute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Absolute(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"file:///a/books.xml":      "application/xml",
		"file:///a/page.html":      "text/html",
		"file:///a/heron.txt":      "text/plain",
		"http://x/b.xsd?version=2": "application/xml",
		"file:///a/noext":          "application/octet-stream",
	}
	for uri, want := range tests {
		if got := ContentTypeFor(uri); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", uri, got, want)
		}
	}
}
