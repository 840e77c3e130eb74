// Package resolve provides the resource resolution and collection lookup hooks that
// host code installs into the engine: resolvers that map (URI, nature) requests to
// content and finders that map collection URIs to documents.
//
// A resolver declines a request by returning (nil, nil). Declining is not an error;
// the caller falls through to the next resolver or to standard resolution.
package resolve

import "context"

// Nature says what kind of resource a request is for.
type Nature string

const (
	NatureDocument           Nature = "document"
	NatureExternalEntity     Nature = "external entity"
	NatureText               Nature = "text"
	NatureStylesheetModule   Nature = "stylesheet module"
	NatureSchemaDocument     Nature = "schema document"
	NatureCollectionDocument Nature = "collection document"
)

// Request is one resolution request.
type Request struct {
	// URI is the reference as written, possibly relative.
	URI string
	// BaseURI is the URI the reference is relative to, or "".
	BaseURI string
	// Nature is the kind of resource wanted.
	Nature Nature
}

// Absolute returns the request's URI resolved against its base.
func (r Request) Absolute() (string, error) {
	return Absolute(r.BaseURI, r.URI)
}

// Resource is resolved content.
type Resource struct {
	// URI is the absolute URI the content was found at. It becomes the system id
	// of documents built from the resource.
	URI         string
	ContentType string
	// Content holds the bytes. Collection finders may leave it nil to have the
	// engine fetch the URI through its own document resolution.
	Content []byte
}

// Text returns the content as a string.
func (r *Resource) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}

// Resolver maps requests to resources.
type Resolver interface {
	// Resolve returns the resource for req, or (nil, nil) to decline.
	// An error means the resolver owns the URI but could not produce it.
	Resolve(ctx context.Context, req Request) (*Resource, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, req Request) (*Resource, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, req Request) (*Resource, error) {
	return f(ctx, req)
}

type chain []Resolver

// Chain returns a resolver that asks each resolver in turn and returns the first
// resource produced. Nil entries are skipped.
func Chain(resolvers ...Resolver) Resolver {
	var c chain
	for _, r := range resolvers {
		if r != nil {
			c = append(c, r)
		}
	}
	return c
}

func (c chain) Resolve(ctx context.Context, req Request) (*Resource, error) {
	for _, r := range c {
		res, err := r.Resolve(ctx, req)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// WithFallback returns a resolver that sends every request r declines to fallback.
func WithFallback(r, fallback Resolver) Resolver {
	return Chain(r, fallback)
}

// Phases groups the resolvers installed for each processing phase.
type Phases struct {
	// Build resolves resources needed while building source documents.
	Build Resolver
	// Compile resolves modules and schema documents while compiling.
	Compile Resolver
	// Run resolves documents requested by running expressions and templates.
	Run Resolver
}
