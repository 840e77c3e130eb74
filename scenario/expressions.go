package scenario

import (
	"context"
	"fmt"
	"sync"

	"github.com/joncooperworks/xmlharness/engine"
)

func buildBooks(ctx context.Context, env *Env, p *engine.Processor) (*engine.Document, error) {
	return p.NewDocumentBuilder().Build(ctx, env.Sample(booksPath))
}

func expressionSimple(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	c := p.NewExpressionCompiler()
	findItems, err := c.Compile(`node.Find("//ITEM")`)
	if err != nil {
		return err
	}
	title, err := c.Compile(`node.First("TITLE").Text()`)
	if err != nil {
		return err
	}
	price, err := c.Compile(`node.First("PRICE").Number()`)
	if err != nil {
		return err
	}

	ev := findItems.Load()
	ev.SetContextItem(doc.Node())
	items, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	list, _ := items.([]any)
	titleEv, priceEv := title.Load(), price.Load()
	for _, item := range list {
		titleEv.SetContextItem(item)
		t, err := titleEv.EvaluateSingle(ctx)
		if err != nil {
			return err
		}
		priceEv.SetContextItem(item)
		pr, err := priceEv.EvaluateSingle(ctx)
		if err != nil {
			return err
		}
		env.printf("%s costs %s\n", engine.StringValue(t), engine.StringValue(pr))
	}
	return nil
}

func expressionBoolean(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	for _, src := range []string{
		`node.Find("//ITEM[@CAT='MMP']")`,
		`node.Find("//ITEM[@CAT='X']")`,
		`all(node.Find("//PRICE"), #.Number() < 20)`,
	} {
		exe, err := p.NewExpressionCompiler().Compile(src)
		if err != nil {
			return err
		}
		ev := exe.Load()
		ev.SetContextItem(doc.Node())
		b, err := ev.EffectiveBooleanValue(ctx)
		if err != nil {
			return err
		}
		env.printf("%s: %t\n", src, b)
	}
	return nil
}

func expressionVariables(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewExpressionCompiler()
	c.DeclareVariable("a")
	c.DeclareVariable("b")
	exe, err := c.Compile(`a + b`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	if err := ev.SetVariable("a", 2); err != nil {
		return err
	}
	if err := ev.SetVariable("b", 3); err != nil {
		return err
	}
	v, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	env.printf("a + b = %s\n", engine.StringValue(v))
	return nil
}

func expressionUndeclaredVariables(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewExpressionCompiler()
	c.SetAllowUndeclaredVariables(true)
	exe, err := c.Compile(`a + b`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	for _, name := range exe.ExternalVariables() {
		env.printf("Setting %s to 10\n", name)
		if err := ev.SetVariable(name, 10); err != nil {
			return err
		}
	}
	v, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	env.printf("a + b = %s\n", engine.StringValue(v))
	return nil
}

// expressionStaticError fails on purpose: the harness reports the error code.
func expressionStaticError(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewExpressionCompiler()
	c.SetAllowUndeclaredVariables(true)
	if _, err := c.Compile(`1 + unknown()`); err != nil {
		return err
	}
	return fmt.Errorf("compiling a call to an unknown function succeeded")
}

// expressionDynamicError fails on purpose at evaluation time.
func expressionDynamicError(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewExpressionCompiler()
	c.DeclareVariable("a")
	c.DeclareVariable("b")
	exe, err := c.Compile(`a > b`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	ev.SetVariable("a", 10)
	ev.SetVariable("b", "Paris")
	v, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	return fmt.Errorf("comparing a number with a string gave %v", v)
}

func expressionUsingParameter(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	c := p.NewExpressionCompiler()
	c.DeclareVariable("input")
	exe, err := c.Compile(`input * input`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	if err := ev.SetVariable("input", 12); err != nil {
		return err
	}
	v, err := ev.EvaluateSingle(ctx)
	if err != nil {
		return err
	}
	env.printf("Result type: %T\n", v)
	env.printf("Result value: %s\n", engine.StringValue(v))
	return nil
}

func expressionReuseExecutable(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	c := p.NewExpressionCompiler()
	c.DeclareVariable("cat")
	exe, err := c.Compile(`node.Count("//ITEM[@CAT='" + cat + "']")`)
	if err != nil {
		return err
	}

	cats := []string{"P", "MMP", "H"}
	counts := make([]any, len(cats))
	errs := make([]error, len(cats))
	var wg sync.WaitGroup
	for i, cat := range cats {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := exe.Load()
			ev.SetContextItem(doc.Node())
			if err := ev.SetVariable("cat", cat); err != nil {
				errs[i] = err
				return
			}
			counts[i], errs[i] = ev.Evaluate(ctx)
		}()
	}
	wg.Wait()

	for i, cat := range cats {
		if errs[i] != nil {
			return errs[i]
		}
		env.printf("Books in category %s: %s\n", cat, engine.StringValue(counts[i]))
	}
	return nil
}
