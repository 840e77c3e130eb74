package scenario

import (
	"context"
	"errors"

	"github.com/joncooperworks/xmlharness/engine"
	"github.com/joncooperworks/xmlharness/sink"
)

func validate(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	var schemaErrors sink.DiagnosticList
	m := p.NewSchemaManager()
	m.SetErrorReporter(&schemaErrors)
	schema, err := m.Compile(ctx, env.Sample(booksSchemaPath))
	if err != nil {
		env.printf("Schema compilation failed with %d errors\n", schemaErrors.Len())
		for _, d := range schemaErrors.Records() {
			env.printf("At line %d: %s\n", d.Line, d.Message)
		}
		return err
	}

	var invalidities sink.DiagnosticList
	v := schema.NewValidator()
	v.SetInvalidityListener(&invalidities)
	err = v.ValidateURI(ctx, env.Sample(invalidBooksPath))
	var e *engine.Error
	switch {
	case err == nil:
		env.printf("Instance validation succeeded\n")
	case errors.As(err, &e) && e.Code == engine.CodeValidation:
		env.printf("Instance validation failed with %d errors\n", invalidities.Len())
		for _, d := range invalidities.Records() {
			env.printf("At line %d: %s\n", d.Line, d.Message)
		}
	default:
		return err
	}
	return nil
}

func schemaAwareExpression(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	schema, err := p.NewSchemaManager().Compile(ctx, env.Sample(booksSchemaPath))
	if err != nil {
		return err
	}
	doc, err := buildBooks(ctx, env, p)
	if err != nil {
		return err
	}
	if err := schema.NewValidator().ValidateDocument(doc); err != nil {
		return err
	}
	env.printf("%s is valid against %s\n", doc.URI(), schema.URI())

	c := p.NewExpressionCompiler()
	exe, err := c.Compile(`all(node.Find("//ITEM/QUANTITY"), int(#.Text()) >= 0)`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	ev.SetContextItem(doc.Node())
	ok, err := ev.EffectiveBooleanValue(ctx)
	if err != nil {
		return err
	}
	env.printf("Every quantity is a non-negative integer: %t\n", ok)

	total, err := c.Compile(`sum(map(node.Find("//ITEM/QUANTITY"), int(#.Text())))`)
	if err != nil {
		return err
	}
	ev = total.Load()
	ev.SetContextItem(doc.Node())
	v, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	env.printf("Copies in stock: %s\n", engine.StringValue(v))
	return nil
}
