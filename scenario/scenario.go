// Package scenario holds the catalogue of runnable examples. Each scenario
// exercises one engine capability against the sample data directory and writes
// a human-readable account of what happened.
package scenario

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/resolve"
)

const (
	booksPath        = "data/books.xml"
	booksSchemaPath  = "data/books.xsd"
	invalidBooksPath = "data/books-invalid.xml"
	othelloPath      = "data/othello.xml"
	pagePath         = "data/page.html"
	manifestPath     = "collections.yaml"
	luaModulePath    = "ext/strings.lua"
	wasmModuleDir    = "ext"
)

// Env is what a scenario runs against.
type Env struct {
	// SamplesDir is the samples directory as a file URI ending in a slash.
	SamplesDir string
	// Out receives the scenario's output.
	Out io.Writer
	// Logger is handed to every processor the scenario creates.
	Logger *log.Logger
	// Standard, when set, replaces the processors' default file and http
	// resolution, for example to add credentials for remote hosts.
	Standard resolve.Resolver
}

// Sample returns the absolute URI of a file under the samples directory.
func (e *Env) Sample(rel string) string {
	return strings.TrimSuffix(e.SamplesDir, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// SamplePath returns the local path of a file under the samples directory.
func (e *Env) SamplePath(rel string) (string, error) {
	p, ok := resolve.LocalPath(e.Sample(rel))
	if !ok {
		return "", fmt.Errorf("samples directory %s is not a local directory", e.SamplesDir)
	}
	return p, nil
}

// NewProcessor returns a fresh processing context. Scenarios never share one,
// so registrations made by one scenario are invisible to the next.
func (e *Env) NewProcessor() *engine.Processor {
	logger := e.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	opts := []engine.Option{engine.WithLogger(logger)}
	if e.Standard != nil {
		opts = append(opts, engine.WithStandardResolver(e.Standard))
	}
	return engine.NewProcessor(opts...)
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}

// Scenario is one named entry of the catalogue.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

var catalogue = []Scenario{
	{"DocumentNavigation", "Build books.xml and walk its tree directly", documentNavigation},
	{"ExpressionSimple", "Compile expressions once and evaluate them per item", expressionSimple},
	{"ExpressionBoolean", "Evaluate an expression as a condition", expressionBoolean},
	{"ExpressionVariables", "Bind declared variables before evaluation", expressionVariables},
	{"ExpressionUndeclaredVariables", "Discover and bind undeclared variables", expressionUndeclaredVariables},
	{"ExpressionStaticError", "Fail to compile a call to an unknown function", expressionStaticError},
	{"ExpressionDynamicError", "Fail at run time comparing a number with a string", expressionDynamicError},
	{"ExpressionUsingParameter", "Square an external parameter", expressionUsingParameter},
	{"ExpressionReuseExecutable", "Evaluate one compiled expression from several goroutines", expressionReuseExecutable},
	{"TransformSimple", "Apply a template file to books.xml", transformSimple},
	{"TransformStripSpace", "Build with whitespace stripping and copy a subtree", transformStripSpace},
	{"TransformUsingSourceResolver", "Trace build, compile and run time resolution", transformUsingSourceResolver},
	{"TransformDisplayingErrors", "Print template compilation errors as they are found", transformDisplayingErrors},
	{"TransformCapturingErrors", "Collect template compilation errors into a list", transformCapturingErrors},
	{"TransformCapturingMessages", "Capture messages emitted by a template", transformCapturingMessages},
	{"TransformUsingResultHandler", "Route secondary result documents to memory", transformUsingResultHandler},
	{"TransformUsingCollectionFinder", "Resolve a named collection from a manifest", transformUsingCollectionFinder},
	{"TransformUsingDirectoryCollection", "Scan the samples directory as a collection", transformUsingDirectoryCollection},
	{"IntegratedExtension", "Register extension functions with full descriptors", integratedExtension},
	{"SimpleExtension", "Register an extension function from a plain Go func", simpleExtension},
	{"ExpressionExtensibility", "Call several host functions from one expression", expressionExtensibility},
	{"ScriptedExtension", "Load extension functions from a Lua script", scriptedExtension},
	{"WasmExtension", "Load extension functions from WASM modules", wasmExtension},
	{"HTMLDocument", "Build an HTML page and query it", htmlDocument},
	{"Validate", "Validate an invalid instance and list every invalidity", validate},
	{"SchemaAwareExpression", "Validate books.xml before relying on its types", schemaAwareExpression},
}

// Catalogue returns every scenario in its fixed order.
func Catalogue() []Scenario {
	return append([]Scenario(nil), catalogue...)
}

// Lookup finds a scenario by exact name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}
