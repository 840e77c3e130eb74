// Package ext provides the extension-function framework consumed by the engine adapter.
// It supports multiple extension sources (native Go, Lua, WASM) through a registry of
// call factories keyed by qualified name and a registry-based loader system.
package ext

import (
	"context"
	"time"
)

// Call is one invocable instance of an extension function.
//
// The engine creates one Call per call site through the registered factory, so a
// Call may keep state derived from its static context (see StaticContextAware).
// Call must not keep state derived from any single evaluation.
type Call interface {
	// Call runs the function against the evaluation's dynamic context.
	// The args slice holds values already converted to the declared argument types:
	// a single item for exactly-one and optional types, []any for sequence types.
	// Returning Empty (or nil) yields the empty sequence.
	Call(ctx DynamicContext, args []any) (any, error)
}

// CallFunc adapts an ordinary function to the Call interface.
type CallFunc func(ctx DynamicContext, args []any) (any, error)

// Call invokes f.
func (f CallFunc) Call(ctx DynamicContext, args []any) (any, error) {
	return f(ctx, args)
}

// Func is the lambda form of an extension: no context, converted arguments in, value out.
type Func func(args []any) (any, error)

// Factory creates a fresh Call for a call site.
type Factory func() Call

// Definition is the full-API form of an extension function: a descriptor and a call factory.
type Definition interface {
	// Descriptor returns the function's name, arity range, argument and result types.
	Descriptor() Descriptor

	// MakeCall returns a new Call instance. It is called once for each call site.
	MakeCall() Call
}

// StaticContext exposes the compile-time context of a call site.
type StaticContext interface {
	// NamespaceForPrefix returns the namespace bound to prefix at the call site.
	NamespaceForPrefix(prefix string) (string, bool)

	// DefaultElementNamespace returns the default namespace for element names, or "".
	DefaultElementNamespace() string

	// BaseURI returns the static base URI of the expression or template.
	BaseURI() string

	// HostLanguage names the language hosting the expression ("expression" or "template").
	HostLanguage() string
}

// StaticContextAware is implemented by calls that need their call site's static context.
//
// The engine calls SupplyStaticContext exactly once, at compile time, before the call
// is ever invoked.
type StaticContextAware interface {
	SupplyStaticContext(sc StaticContext)
}

// DynamicContext exposes the evaluation-time context to a Call.
type DynamicContext interface {
	// Context returns the context.Context of the running evaluation.
	Context() context.Context

	// ContextItem returns the item being processed, or nil when there is none.
	ContextItem() any

	// CurrentTime is fixed for the duration of one evaluation.
	CurrentTime() time.Time

	// UnparsedText reads a resource through the evaluation's run-time resolver.
	UnparsedText(uri string) (string, error)
}

// Node is the view of a document node that extension functions may rely on.
type Node interface {
	Name() string
	Text() string
}
