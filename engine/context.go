package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joncooperworks/xmlharness/ext"
	"github.com/joncooperworks/xmlharness/resolve"
)

// runState is shared by every evaluation inside one Evaluate or transformation:
// the clock reading, run-time resolver, finder and the documents already loaded,
// so doc() returns the same tree for the same URI throughout.
type runState struct {
	ctx      context.Context
	proc     *Processor
	resolver resolve.Resolver
	finder   resolve.Finder
	now      time.Time
	builder  *DocumentBuilder

	mu   sync.Mutex
	docs map[string]*Document
}

func (p *Processor) newRunState(ctx context.Context, r resolve.Resolver) *runState {
	return &runState{
		ctx:      ctx,
		proc:     p,
		resolver: r,
		finder:   p.CollectionFinder(),
		now:      p.now(),
		builder:  p.NewDocumentBuilder(),
		docs:     make(map[string]*Document),
	}
}

// evalContext is the dynamic context of one evaluation. It is handed to
// expressions as a hidden variable and to extension calls as ext.DynamicContext.
type evalContext struct {
	run     *runState
	item    any
	baseURI string
}

var _ ext.DynamicContext = (*evalContext)(nil)

func (c *evalContext) Context() context.Context { return c.run.ctx }

func (c *evalContext) ContextItem() any { return c.item }

func (c *evalContext) CurrentTime() time.Time { return c.run.now }

func (c *evalContext) UnparsedText(uri string) (string, error) {
	res, err := c.run.proc.fetch(c.run.ctx, c.run.resolver, resolve.Request{URI: uri, BaseURI: c.baseURI, Nature: resolve.NatureText})
	if err != nil {
		return "", &Error{Code: CodeText, Message: err.Error(), Err: err}
	}
	return res.Text(), nil
}

func (c *evalContext) document(uri string, nature resolve.Nature) (*Node, error) {
	abs, err := resolve.Absolute(c.baseURI, uri)
	if err != nil {
		return nil, &Error{Code: CodeDocument, Message: err.Error(), Err: err}
	}
	c.run.mu.Lock()
	d, ok := c.run.docs[abs]
	c.run.mu.Unlock()
	if ok {
		return d.Node(), nil
	}

	res, err := c.run.proc.fetch(c.run.ctx, c.run.resolver, resolve.Request{URI: uri, BaseURI: c.baseURI, Nature: nature})
	if err != nil {
		return nil, &Error{Code: CodeDocument, Message: err.Error(), Err: err}
	}
	d, err = c.run.builder.buildResource(c.run.ctx, res)
	if err != nil {
		return nil, err
	}
	c.run.mu.Lock()
	c.run.docs[abs] = d
	c.run.mu.Unlock()
	return d.Node(), nil
}

func (c *evalContext) collection(uri string) ([]any, error) {
	abs, err := resolve.Absolute(c.baseURI, uri)
	if err != nil {
		return nil, &Error{Code: CodeCollection, Message: err.Error(), Err: err}
	}
	resources, err := c.run.finder.Find(c.run.ctx, abs)
	if err != nil {
		return nil, &Error{Code: CodeCollection, Message: err.Error(), Err: err}
	}
	out := make([]any, 0, len(resources))
	for _, res := range resources {
		if res.Content == nil {
			n, err := c.document(res.URI, resolve.NatureCollectionDocument)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
			continue
		}
		d, err := c.run.builder.buildResource(c.run.ctx, &res)
		if err != nil {
			return nil, err
		}
		out = append(out, d.Node())
	}
	c.run.proc.logger.Debug("loaded collection", "uri", abs, "documents", len(out))
	return out, nil
}

// foldContext is the context pure calls see when they are evaluated while
// compiling. Such calls must not read it; it exists so Invoke has something to pass.
type foldContext struct {
	now time.Time
}

func (foldContext) Context() context.Context { return context.Background() }

func (foldContext) ContextItem() any { return nil }

func (f foldContext) CurrentTime() time.Time { return f.now }

func (foldContext) UnparsedText(string) (string, error) {
	return "", errors.New("no resources are available at compile time")
}

// builtinFunctions are the engine functions every expression can call. Each
// receives the evaluation context as its first argument.
var builtinFunctions = map[string]func(c *evalContext, args []any) (any, error){
	"doc": func(c *evalContext, args []any) (any, error) {
		uri, err := uriArgument("doc", args)
		if err != nil || uri == "" {
			return nil, err
		}
		return c.document(uri, resolve.NatureDocument)
	},
	"docAvailable": func(c *evalContext, args []any) (any, error) {
		uri, err := uriArgument("docAvailable", args)
		if err != nil {
			return nil, err
		}
		_, err = c.document(uri, resolve.NatureDocument)
		return err == nil, nil
	},
	"collection": func(c *evalContext, args []any) (any, error) {
		uri, err := uriArgument("collection", args)
		if err != nil {
			return nil, err
		}
		if uri == "" {
			return nil, errorf(CodeCollection, "no default collection is defined")
		}
		return c.collection(uri)
	},
	"currentDateTime": func(c *evalContext, args []any) (any, error) {
		if len(args) != 0 {
			return nil, errorf(CodeUnknownFunction, "currentDateTime() takes no arguments, got %d", len(args))
		}
		return c.run.now, nil
	},
	"unparsedText": func(c *evalContext, args []any) (any, error) {
		uri, err := uriArgument("unparsedText", args)
		if err != nil || uri == "" {
			return nil, err
		}
		return c.UnparsedText(uri)
	},
}

func uriArgument(fn string, args []any) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		if args[0] == nil {
			return "", nil
		}
		if s, ok := args[0].(string); ok {
			return s, nil
		}
		return "", errorf(CodeType, "%s() expects a string URI, got %T", fn, args[0])
	}
	return "", errorf(CodeUnknownFunction, "%s() takes at most one argument, got %d", fn, len(args))
}
