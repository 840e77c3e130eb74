package resolve

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// SuffixRule produces a resource for URIs ending in Suffix.
type SuffixRule struct {
	Suffix  string
	Produce func(uri string) *Resource
}

// SuffixResolver applies the first rule whose suffix matches the absolute URI and
// declines everything else.
type SuffixResolver struct {
	Rules []SuffixRule
}

// Resolve implements Resolver.
func (s *SuffixResolver) Resolve(_ context.Context, req Request) (*Resource, error) {
	abs, err := req.Absolute()
	if err != nil {
		return nil, nil
	}
	for _, rule := range s.Rules {
		if strings.HasSuffix(abs, rule.Suffix) {
			return rule.Produce(abs), nil
		}
	}
	return nil, nil
}

// Tracing prints every request before passing it on to Next. With a nil Next it
// declines everything, which makes it a pure observer.
type Tracing struct {
	Label string
	Out   io.Writer
	Next  Resolver
}

// Resolve implements Resolver.
func (t *Tracing) Resolve(ctx context.Context, req Request) (*Resource, error) {
	if t.Out != nil {
		fmt.Fprintf(t.Out, "** Calling %s: %s (nature=%s)\n", t.Label, req.URI, req.Nature)
	}
	if t.Next == nil {
		return nil, nil
	}
	return t.Next.Resolve(ctx, req)
}
