package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

// ErrCollectionNotFound is returned when no finder recognises a collection URI.
var ErrCollectionNotFound = errors.New("collection not found")

// Finder maps a collection URI to its documents, in order.
type Finder interface {
	Find(ctx context.Context, uri string) ([]Resource, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, uri string) ([]Resource, error)

// Find calls f.
func (f FinderFunc) Find(ctx context.Context, uri string) ([]Resource, error) {
	return f(ctx, uri)
}

// StandardFinder is the engine's own collection resolution. It recognises
// directory URIs, optionally with parameters:
//
//	file:///data/?select=*.xml;recurse=yes
//
// select is a doublestar glob (default *): a pattern containing a slash is
// matched against the path relative to the directory, any other against the
// file name. recurse is yes or no (default no). Resources carry only URIs; content is fetched when a document
// is built from them.
type StandardFinder struct {
	Logger *log.Logger
}

// Find implements Finder.
func (f *StandardFinder) Find(_ context.Context, uri string) ([]Resource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCollectionNotFound, uri, err)
	}
	if u.Scheme != "file" && u.Scheme != "" {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, uri)
	}
	params, err := parseCollectionParams(u.RawQuery)
	if err != nil {
		return nil, err
	}

	dir := filepath.FromSlash(u.Path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, uri)
	}
	if f.Logger != nil {
		f.Logger.Debug("scanning collection directory", "dir", dir, "select", params.selectGlob, "recurse", params.recurse)
	}

	var resources []Resource
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if f.Logger != nil {
				f.Logger.Warn("skipping unreadable collection entry", "path", p, "err", err)
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && !params.recurse {
				return filepath.SkipDir
			}
			return nil
		}
		if !params.matches(dir, p) {
			return nil
		}
		fileURI, err := FileURI(p)
		if err != nil {
			return err
		}
		resources = append(resources, Resource{URI: fileURI, ContentType: ContentTypeFor(fileURI)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection %s: %w", uri, err)
	}
	return resources, nil
}

type collectionParams struct {
	selectGlob string
	recurse    bool
}

// matches applies the select glob. A pattern with a slash is matched against
// the path relative to the collection directory, so **/*.xml reaches into
// subdirectories; any other pattern is matched against the file name.
func (c collectionParams) matches(dir, p string) bool {
	target := filepath.Base(p)
	if strings.Contains(c.selectGlob, "/") {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return false
		}
		target = filepath.ToSlash(rel)
	}
	ok, err := doublestar.Match(c.selectGlob, target)
	return err == nil && ok
}

func parseCollectionParams(query string) (collectionParams, error) {
	params := collectionParams{selectGlob: "*"}
	if query == "" {
		return params, nil
	}
	for _, part := range strings.FieldsFunc(query, func(r rune) bool { return r == ';' || r == '&' }) {
		key, value, _ := strings.Cut(part, "=")
		value, err := url.QueryUnescape(value)
		if err != nil {
			return params, fmt.Errorf("invalid collection parameter %q: %w", part, err)
		}
		switch key {
		case "select":
			if _, err := doublestar.Match(value, ""); err != nil {
				return params, fmt.Errorf("invalid select pattern %q: %w", value, err)
			}
			params.selectGlob = value
		case "recurse":
			params.recurse = value == "yes" || value == "true"
		default:
			return params, fmt.Errorf("unknown collection parameter %q", key)
		}
	}
	return params, nil
}
