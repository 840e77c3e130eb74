// Package wasm loads extension functions from WebAssembly modules through Extism.
//
// A module exports a "signatures" function whose output is a JSON object mapping each
// function name to either its signature string or an object
// {"signature": "...", "context": true}. Every listed name is also an export. It
// receives a JSON envelope {"args": [...], "context": {"item": ..., "now": ...}} as
// input and writes {"result": ...} or {"error": "..."} as output.
//
// Modules may import env.xh_unparsed_text to read a resource through the run-time
// resolver of the evaluation that is calling them.
package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	extism "github.com/extism/go-sdk"
	"github.com/tidwall/gjson"

	"github.com/joncooperworks/xmlharness/ext"
)

// Kind is the module kind this package registers.
const Kind = "wasm"

func init() {
	ext.RegisterLoader(Kind, func() (ext.Loader, error) {
		return NewLoader(), nil
	})
}

// Loader instantiates WASM modules and reads their exported signatures.
type Loader struct{}

// NewLoader creates a new WASM loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load compiles and instantiates the module, then asks it for its signatures.
func (l *Loader) Load(ctx context.Context, m ext.Module) (ext.Bundle, error) {
	if m.Namespace == "" {
		return nil, fmt.Errorf("wasm module %s: namespace is required", m.Name)
	}
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: m.Data, Name: m.Name},
		},
	}
	config := extism.PluginConfig{
		EnableWasi: true,
	}

	plugin, err := extism.NewPlugin(ctx, manifest, config, []extism.HostFunction{newUnparsedTextFunction()})
	if err != nil {
		return nil, fmt.Errorf("failed to create Extism plugin: %w", err)
	}

	mod := &module{plugin: plugin, ctx: ctx}
	exitCode, out, err := plugin.CallWithContext(ctx, "signatures", nil)
	if err != nil {
		_ = mod.Close()
		return nil, fmt.Errorf("failed to call signatures: %w", err)
	}
	if exitCode != 0 {
		_ = mod.Close()
		return nil, fmt.Errorf("signatures returned non-zero exit code: %d", exitCode)
	}

	specs, err := parseSignatures(out)
	if err != nil {
		_ = mod.Close()
		return nil, fmt.Errorf("wasm module %s: %w", m.Name, err)
	}
	for _, spec := range specs {
		if !plugin.FunctionExists(spec.name) {
			_ = mod.Close()
			return nil, fmt.Errorf("wasm module %s: signature listed for %q but no such export", m.Name, spec.name)
		}
		desc, err := ext.NewDescriptor(ext.NewQName(m.Namespace, spec.name), spec.signature)
		if err != nil {
			_ = mod.Close()
			return nil, fmt.Errorf("wasm module %s: %s: %w", m.Name, spec.name, err)
		}
		desc.DependsOnContext = spec.context
		export := spec.name
		mod.defs = append(mod.defs, ext.StaticDefinition{
			Desc: desc,
			Factory: func() ext.Call {
				return &call{module: mod, export: export}
			},
		})
	}
	return mod, nil
}

type signatureSpec struct {
	name      string
	signature string
	context   bool
}

// parseSignatures reads the output of the signatures export.
func parseSignatures(data []byte) ([]signatureSpec, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("signatures output is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("signatures output must be a JSON object")
	}

	var specs []signatureSpec
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		spec := signatureSpec{name: key.String()}
		switch {
		case value.Type == gjson.String:
			spec.signature = value.String()
		case value.IsObject():
			spec.signature = value.Get("signature").String()
			spec.context = value.Get("context").Bool()
		default:
			parseErr = fmt.Errorf("%s: expected a signature string or object", spec.name)
			return false
		}
		if spec.signature == "" {
			parseErr = fmt.Errorf("%s: missing signature", spec.name)
			return false
		}
		specs = append(specs, spec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].name < specs[j].name })
	return specs, nil
}

// module is the loaded plugin. Extism plugins are not safe for concurrent calls.
type module struct {
	mu     sync.Mutex
	plugin *extism.Plugin
	ctx    context.Context
	defs   []ext.Definition
}

func (m *module) Definitions() []ext.Definition { return m.defs }

// Close shuts down the plugin instance and releases resources.
func (m *module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plugin == nil {
		return nil
	}
	err := m.plugin.Close(m.ctx)
	m.plugin = nil
	return err
}

type call struct {
	module *module
	export string
}

func (c *call) Call(dc ext.DynamicContext, args []any) (any, error) {
	input, err := encodeArgs(dc, args)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if dc != nil {
		ctx = withDynamicContext(dc.Context(), dc)
	}

	c.module.mu.Lock()
	defer c.module.mu.Unlock()
	if c.module.plugin == nil {
		return nil, fmt.Errorf("wasm module is closed")
	}
	exitCode, out, err := c.module.plugin.CallWithContext(ctx, c.export, input)
	if err != nil {
		return nil, fmt.Errorf("failed to execute WASM function %s: %w", c.export, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%s returned non-zero exit code: %d", c.export, exitCode)
	}
	return decodeResult(out)
}
