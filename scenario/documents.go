package scenario

import (
	"context"
	"fmt"

	"github.com/joncooperworks/xmlharness/engine"
)

func documentNavigation(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := p.NewDocumentBuilder().Build(ctx, env.Sample(booksPath))
	if err != nil {
		return err
	}
	root := doc.Root()
	if root.Name() != "BOOKLIST" {
		return fmt.Errorf("expected BOOKLIST as the document element, found %s", root.Name())
	}

	categories, err := root.Find("CATEGORIES/CATEGORY")
	if err != nil {
		return err
	}
	env.printf("Categories:\n")
	for _, c := range categories {
		n := c.(*engine.Node)
		env.printf("  %s = %s\n", n.Attr("CODE"), n.Attr("DESC"))
	}

	items, err := root.Find("BOOKS/ITEM")
	if err != nil {
		return err
	}
	var total, hardy float64
	var hardyBooks int
	for _, it := range items {
		item := it.(*engine.Node)
		price, err := childNumber(item, "PRICE")
		if err != nil {
			return err
		}
		total += price
		author, err := childText(item, "AUTHOR")
		if err != nil {
			return err
		}
		if author == "Thomas Hardy" {
			hardy += price
			hardyBooks++
		}
	}
	env.printf("Number of books: %d\n", len(items))
	if len(items) > 0 {
		env.printf("Average price: %.2f\n", total/float64(len(items)))
	}
	if hardyBooks > 0 {
		env.printf("Average price of books by Thomas Hardy: %.2f\n", hardy/float64(hardyBooks))
	}
	return nil
}

func childText(n *engine.Node, path string) (string, error) {
	c, err := n.First(path)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("%s has no %s", n.Path(), path)
	}
	return c.(*engine.Node).Text(), nil
}

func childNumber(n *engine.Node, path string) (float64, error) {
	c, err := n.First(path)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, fmt.Errorf("%s has no %s", n.Path(), path)
	}
	return c.(*engine.Node).Number()
}

func htmlDocument(ctx context.Context, env *Env) error {
	p := env.NewProcessor()
	defer p.Close()

	doc, err := p.NewDocumentBuilder().Build(ctx, env.Sample(pagePath))
	if err != nil {
		return err
	}
	exe, err := p.NewExpressionCompiler().Compile(`node.First("//title").Text()`)
	if err != nil {
		return err
	}
	ev := exe.Load()
	ev.SetContextItem(doc.Node())
	title, err := ev.Evaluate(ctx)
	if err != nil {
		return err
	}
	env.printf("Title: %s\n", engine.StringValue(title))

	links, err := doc.Node().Find("//a[@href]")
	if err != nil {
		return err
	}
	env.printf("Links:\n")
	for _, l := range links {
		a := l.(*engine.Node)
		env.printf("  %s -> %s\n", a.Text(), a.Attr("href"))
	}
	return nil
}
