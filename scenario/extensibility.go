package scenario

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/ext"
	"github.com/joncooperworks/xmlharness/ext/lua"
	"github.com/joncooperworks/xmlharness/ext/wasm"
)

const integratedTemplate = `<t:transform xmlns:t="urn:xmlharness:template"
    xmlns:math="` + MathNamespace + `"
    xmlns:env="` + EnvNamespace + `">
  <t:output indent="yes"/>
  <t:template name="main">
    <out sqrt2="{math:sqrt(2.0)}" defaultNamespace="{env:defaultNamespace()}" sqrtEmpty="{math:sqrt(nil)}">
      <defaultNS t:default-namespace="http://default.namespace.com/" value="{env:defaultNamespace()}"/>
    </out>
  </t:template>
</t:transform>`

func integratedExtension(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	env.printf("Running %s\n", p.ProductVersion())
	if err := p.RegisterExtension(Sqrt{}); err != nil {
		return err
	}
	if err := p.RegisterExtension(DefaultNamespace{}); err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, integratedTemplate, env.Sample("styles/integrated.tpl"))
	if err != nil {
		return err
	}
	if err := tpl.Load().CallTemplate(ctx, engine.DefaultInitialTemplate, env.Out); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

const simpleTemplate = `<t:transform xmlns:t="urn:xmlharness:template" xmlns:math="` + MathNamespace + `">
  <t:template name="main">
    <out sqrt2="{math:sqrtSimple(2.0)}" sqrtEmpty="{math:sqrtSimple(nil)}"/>
  </t:template>
</t:transform>`

func simpleExtension(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	err := p.RegisterFunction(ext.NewQName(MathNamespace, "sqrtSimple"), "function(xs:double?) as xs:double?", func(args []any) (any, error) {
		return math.Sqrt(args[0].(float64)), nil
	})
	if err != nil {
		return err
	}
	tpl, err := p.NewTemplateCompiler().CompileString(ctx, simpleTemplate, env.Sample("styles/simple.tpl"))
	if err != nil {
		return err
	}
	if err := tpl.Load().CallTemplate(ctx, engine.DefaultInitialTemplate, env.Out); err != nil {
		return err
	}
	env.printf("\n")
	return nil
}

func expressionExtensibility(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	for _, def := range hostFunctions() {
		if err := p.RegisterExtension(def); err != nil {
			return err
		}
	}
	c := p.NewExpressionCompiler()
	c.DeclareNamespace("host", HostNamespace)
	exe, err := c.Compile(`{"addition": host:add(2, 2), "average": host:average([1, 2, 3, 4, 5, 6]), "language": host:hostLanguage()}`)
	if err != nil {
		return err
	}
	v, err := exe.Load().Evaluate(ctx)
	if err != nil {
		return err
	}
	results, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("expected a map of results, got %T", v)
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env.printf("%s: %s\n", k, engine.StringValue(results[k]))
	}
	return nil
}

func scriptedExtension(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	path, err := env.SamplePath(luaModulePath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read lua module: %w", err)
	}
	if err := p.LoadExtensionModule(ctx, lua.Kind, ext.Module{Name: filepath.Base(path), Namespace: ScriptNamespace, Data: data}); err != nil {
		return err
	}
	for _, name := range p.Registry().Names() {
		env.printf("Registered %s\n", name)
	}

	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	c := p.NewExpressionCompiler()
	c.DeclareNamespace("str", ScriptNamespace)
	exe, err := c.Compile(`map(node.Find("//ITEM"), str:shout(#.First("TITLE").Text()) + " by " + str:initials(#.First("AUTHOR").Text()))`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	ev.SetContextItem(doc.Node())
	v, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	list, _ := v.([]any)
	for _, line := range list {
		env.printf("%s\n", engine.StringValue(line))
	}
	return nil
}

func wasmExtension(ctx context.Context, env *Env) error {
	dir, err := env.SamplePath(wasmModuleDir)
	if err != nil {
		return err
	}
	modules, err := filepath.Glob(filepath.Join(dir, "*.wasm"))
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		env.printf("No WASM extension modules in %s\n", dir)
		return nil
	}

	p := env.NewProcessor()
	defer p.Close()
	for _, path := range modules {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read wasm module: %w", err)
		}
		if err := p.LoadExtensionModule(ctx, wasm.Kind, ext.Module{Name: filepath.Base(path), Namespace: WasmNamespace, Data: data}); err != nil {
			return err
		}
		env.printf("Loaded %s\n", filepath.Base(path))
	}
	for _, name := range p.Registry().Names() {
		env.printf("Registered %s\n", name)
	}
	if !p.Registry().Has(ext.NewQName(WasmNamespace, "answer")) {
		return nil
	}

	c := p.NewExpressionCompiler()
	c.DeclareNamespace("wasm", WasmNamespace)
	exe, err := c.Compile("wasm:answer()")
	if err != nil {
		return err
	}
	v, err := exe.Load().Evaluate(ctx)
	if err != nil {
		return err
	}
	env.printf("wasm:answer() = %s\n", engine.StringValue(v))
	return nil
}
