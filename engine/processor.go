// Package engine adapts the expression, tree, HTML and schema libraries into one
// processing context. A Processor owns an extension registry, the installed
// resolvers and the collection finder; compilers and builders created from it
// share that configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/joncooperworks/xmlharness/ext"
	"github.com/joncooperworks/xmlharness/resolve"
)

// HostLanguage is what extension functions see as the host language of the
// expressions that call them.
const HostLanguage = "expr"

// Processor is the per-run processing context.
type Processor struct {
	registry *ext.Registry
	logger   *log.Logger
	standard resolve.Resolver
	now      func() time.Time

	mu             sync.RWMutex
	phases         resolve.Phases
	finder         resolve.Finder
	standardFinder resolve.Finder
	bundles        []ext.Bundle
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithStandardResolver replaces the fallback resolution used when installed
// resolvers decline.
func WithStandardResolver(r resolve.Resolver) Option {
	return func(p *Processor) { p.standard = r }
}

// WithClock sets the source of the current time seen by evaluations.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor returns a processor with an empty registry and standard resolution.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		registry: ext.NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine", Level: log.WarnLevel})
	}
	if p.standard == nil {
		p.standard = resolve.NewStandard()
	}
	p.standardFinder = &resolve.StandardFinder{Logger: p.logger}
	return p
}

// Registry returns the processor's extension registry.
func (p *Processor) Registry() *ext.Registry { return p.registry }

// Logger returns the processor's logger.
func (p *Processor) Logger() *log.Logger { return p.logger }

// RegisterExtension adds a full extension definition.
func (p *Processor) RegisterExtension(def ext.Definition) error {
	if err := p.registry.RegisterDefinition(def); err != nil {
		return err
	}
	p.logger.Debug("registered extension function", "name", def.Descriptor().Name)
	return nil
}

// RegisterFunction adds a plain function with a fixed signature.
func (p *Processor) RegisterFunction(name ext.QName, signature string, fn ext.Func) error {
	if err := p.registry.RegisterFunc(name, signature, fn); err != nil {
		return err
	}
	p.logger.Debug("registered extension function", "name", name, "signature", signature)
	return nil
}

// LoadExtensionModule loads a scripted or compiled module through the loader
// registered for kind and registers every function it defines. The module stays
// open until Close.
func (p *Processor) LoadExtensionModule(ctx context.Context, kind string, m ext.Module) error {
	bundle, err := ext.LoadModule(ctx, kind, m)
	if err != nil {
		return err
	}
	defs := bundle.Definitions()
	if err := p.registry.RegisterAll(defs); err != nil {
		bundle.Close()
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	p.mu.Lock()
	p.bundles = append(p.bundles, bundle)
	p.mu.Unlock()
	p.logger.Debug("loaded extension module", "kind", kind, "module", m.Name, "functions", len(defs))
	return nil
}

// InstallResolvers sets the resolvers used in each phase. Nil entries mean
// standard resolution only.
func (p *Processor) InstallResolvers(phases resolve.Phases) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phases = phases
}

func (p *Processor) resolvers() resolve.Phases {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phases
}

// SetCollectionFinder installs the finder used by collection(). Nil restores
// the standard finder.
func (p *Processor) SetCollectionFinder(f resolve.Finder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finder = f
}

// CollectionFinder returns the installed finder.
func (p *Processor) CollectionFinder() resolve.Finder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.finder == nil {
		return p.standardFinder
	}
	return p.finder
}

// StandardCollectionFinder returns the built-in directory finder, for host
// finders that delegate URIs they do not own.
func (p *Processor) StandardCollectionFinder() resolve.Finder {
	return p.standardFinder
}

// NewDocumentBuilder returns a builder using the build-phase resolver.
func (p *Processor) NewDocumentBuilder() *DocumentBuilder {
	return &DocumentBuilder{proc: p, resolver: p.resolvers().Build}
}

// NewExpressionCompiler returns a compiler with no namespaces or variables declared.
func (p *Processor) NewExpressionCompiler() *ExpressionCompiler {
	return &ExpressionCompiler{
		proc:       p,
		namespaces: make(map[string]string),
		variables:  make(map[string]bool),
		resolver:   p.resolvers().Run,
	}
}

// NewTemplateCompiler returns a compiler using the compile-phase resolver.
func (p *Processor) NewTemplateCompiler() *TemplateCompiler {
	ph := p.resolvers()
	return &TemplateCompiler{proc: p, resolver: ph.Compile, runResolver: ph.Run}
}

// NewSchemaManager returns a schema manager using the compile-phase resolver.
func (p *Processor) NewSchemaManager() *SchemaManager {
	return &SchemaManager{proc: p, resolver: p.resolvers().Compile}
}

// ProductVersion names the engine libraries and their versions.
func (p *Processor) ProductVersion() string {
	versions := map[string]string{
		"github.com/expr-lang/expr": "",
		"github.com/beevik/etree":   "",
		"github.com/jacoelho/xsd":   "",
	}
	main := "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" {
			main = info.Main.Version
		}
		for _, dep := range info.Deps {
			if _, ok := versions[dep.Path]; ok {
				versions[dep.Path] = dep.Version
			}
		}
	}
	var parts []string
	for _, path := range []string{"github.com/expr-lang/expr", "github.com/beevik/etree", "github.com/jacoelho/xsd"} {
		v := versions[path]
		if v == "" {
			v = "unknown"
		}
		parts = append(parts, path[strings.LastIndex(path, "/")+1:]+" "+v)
	}
	return fmt.Sprintf("xmlharness %s (%s)", main, strings.Join(parts, ", "))
}

// Close releases loaded extension modules.
func (p *Processor) Close() error {
	p.mu.Lock()
	bundles := p.bundles
	p.bundles = nil
	p.mu.Unlock()

	var errs []error
	for _, b := range bundles {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fetch resolves req through r, falling back to standard resolution. A request
// nothing can satisfy is an error.
func (p *Processor) fetch(ctx context.Context, r resolve.Resolver, req resolve.Request) (*resolve.Resource, error) {
	res, err := resolve.WithFallback(r, p.standard).Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("no resolver could supply %s %q", req.Nature, req.URI)
	}
	if res.URI == "" {
		if abs, err := req.Absolute(); err == nil {
			res.URI = abs
		}
	}
	p.logger.Debug("resolved resource", "uri", res.URI, "nature", req.Nature, "bytes", len(res.Content))
	return res, nil
}
