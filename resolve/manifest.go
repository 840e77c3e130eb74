package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFinder serves named collections from a fixed table and hands every other
// URI to Standard, so installing it never removes a collection that standard
// resolution would find.
type ManifestFinder struct {
	// Collections maps a collection URI to document URIs.
	Collections map[string][]string
	// Base resolves relative document URIs.
	Base string
	// Standard receives unrecognised URIs.
	Standard Finder
}

// Find implements Finder.
func (f *ManifestFinder) Find(ctx context.Context, uri string) ([]Resource, error) {
	docs, ok := f.Collections[uri]
	if !ok {
		if f.Standard == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, uri)
		}
		return f.Standard.Find(ctx, uri)
	}
	resources := make([]Resource, 0, len(docs))
	for _, d := range docs {
		abs, err := Absolute(f.Base, d)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", uri, err)
		}
		resources = append(resources, Resource{URI: abs, ContentType: ContentTypeFor(abs)})
	}
	return resources, nil
}

// Manifest is the YAML form of a collection table:
//
//	collections:
//	  - uri: http://example.com/my-collection
//	    documents: [books.xml, othello.xml]
type Manifest struct {
	Collections []ManifestEntry `yaml:"collections"`

	// dir is the directory the manifest was read from.
	dir string
}

// ManifestEntry is one collection in a Manifest.
type ManifestEntry struct {
	URI       string   `yaml:"uri"`
	Documents []string `yaml:"documents"`
}

// LoadManifest reads a collection manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	for i, e := range m.Collections {
		if e.URI == "" {
			return nil, fmt.Errorf("manifest %s: collection %d has no uri", path, i+1)
		}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// Finder builds a ManifestFinder whose relative documents resolve against the
// manifest's own directory.
func (m *Manifest) Finder(standard Finder) (*ManifestFinder, error) {
	base, err := DirURI(m.dir)
	if err != nil {
		return nil, err
	}
	collections := make(map[string][]string, len(m.Collections))
	for _, e := range m.Collections {
		collections[e.URI] = append([]string(nil), e.Documents...)
	}
	return &ManifestFinder{Collections: collections, Base: base, Standard: standard}, nil
}
