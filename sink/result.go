// Package sink holds the receivers the engine reports to: secondary result
// documents, compile and validation diagnostics, and run-time messages.
package sink

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/joncooperworks/xmlharness/resolve"
)

// Destination receives one serialized result document. The engine closes it when
// the document is complete.
type Destination interface {
	io.WriteCloser
}

// ResultHandler is asked for a destination each time a template produces a
// secondary result document. The engine makes no promise about how many documents
// are requested or in which order.
type ResultHandler interface {
	ResultRequested(href, baseURI string) (Destination, error)
}

// ResultHandlerFunc adapts a function to the ResultHandler interface.
type ResultHandlerFunc func(href, baseURI string) (Destination, error)

// ResultRequested calls f.
func (f ResultHandlerFunc) ResultRequested(href, baseURI string) (Destination, error) {
	return f(href, baseURI)
}

// ErrDestinationClosed is returned when writing to a closed BufferDestination.
var ErrDestinationClosed = errors.New("destination closed")

// BufferDestination holds a result document in memory.
type BufferDestination struct {
	URI string

	buf    bytes.Buffer
	closed bool
}

// Write appends to the document.
func (d *BufferDestination) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrDestinationClosed
	}
	return d.buf.Write(p)
}

// Close marks the document complete.
func (d *BufferDestination) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether the engine has finished writing.
func (d *BufferDestination) Closed() bool { return d.closed }

// String returns the document as written so far.
func (d *BufferDestination) String() string { return d.buf.String() }

// ResultRegistry is a ResultHandler that keeps every result document in memory,
// keyed by its absolute URI. A second document for the same URI replaces the first.
type ResultRegistry struct {
	mu      sync.Mutex
	results map[string]*BufferDestination
}

// NewResultRegistry returns an empty registry.
func NewResultRegistry() *ResultRegistry {
	return &ResultRegistry{results: make(map[string]*BufferDestination)}
}

// ResultRequested returns a fresh in-memory destination for href.
func (r *ResultRegistry) ResultRequested(href, baseURI string) (Destination, error) {
	uri, err := resolve.Absolute(baseURI, href)
	if err != nil {
		return nil, err
	}
	d := &BufferDestination{URI: uri}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[uri] = d
	return d, nil
}

// Get returns the document stored under uri.
func (r *ResultRegistry) Get(uri string) (*BufferDestination, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.results[uri]
	return d, ok
}

// URIs returns the stored URIs in sorted order.
func (r *ResultRegistry) URIs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	uris := make([]string, 0, len(r.results))
	for uri := range r.results {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Len returns the number of stored documents.
func (r *ResultRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}
