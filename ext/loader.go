package ext

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Module is an extension module handed to a Loader: script source or compiled code
// whose functions are published under Namespace.
type Module struct {
	// Name identifies the module in errors and logs, typically its file name.
	Name string
	// Namespace is the namespace URI the module's functions are registered in.
	Namespace string
	// Data is the raw module content.
	Data []byte
}

// Bundle is a loaded module: the definitions it exports and the resources behind them.
type Bundle interface {
	Definitions() []Definition
	Close() error
}

// Loader turns a Module of one kind into extension definitions.
type Loader interface {
	Load(ctx context.Context, m Module) (Bundle, error)
}

// LoaderFactory is a function that creates a new Loader instance.
//
// Factory functions are registered with RegisterLoader and are called when
// a module of that kind needs to be loaded.
type LoaderFactory func() (Loader, error)

var (
	// loaderRegistry stores loader factories by module kind
	loaderRegistry = make(map[string]LoaderFactory)
	// loaderRegistryMu protects concurrent access to the registry
	loaderRegistryMu sync.RWMutex
)

// RegisterLoader registers a loader factory for a module kind.
//
// This should be called from init() functions in loader implementations.
// The kind is a string like "lua" or "wasm".
//
// Example:
//
//	func init() {
//	    ext.RegisterLoader("lua", func() (ext.Loader, error) {
//	        return NewLoader(), nil
//	    })
//	}
func RegisterLoader(kind string, factory LoaderFactory) {
	loaderRegistryMu.Lock()
	defer loaderRegistryMu.Unlock()
	loaderRegistry[kind] = factory
}

// GetLoaderFactory retrieves the loader factory for kind.
//
// Returns an error if no factory is registered for the kind.
func GetLoaderFactory(kind string) (LoaderFactory, error) {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	factory, ok := loaderRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("no loader factory registered for module kind: %s", kind)
	}
	return factory, nil
}

// ListRegisteredLoaderKinds returns all registered module kinds, sorted.
func ListRegisteredLoaderKinds() []string {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	kinds := make([]string, 0, len(loaderRegistry))
	for kind := range loaderRegistry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// LoadModule loads m with the loader registered for kind.
func LoadModule(ctx context.Context, kind string, m Module) (Bundle, error) {
	factory, err := GetLoaderFactory(kind)
	if err != nil {
		return nil, err
	}
	loader, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s loader: %w", kind, err)
	}
	bundle, err := loader.Load(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s module %s: %w", kind, m.Name, err)
	}
	return bundle, nil
}

// StaticDefinition is a Definition built from a descriptor and factory.
type StaticDefinition struct {
	Desc    Descriptor
	Factory Factory
}

// Descriptor returns the definition's descriptor.
func (d StaticDefinition) Descriptor() Descriptor { return d.Desc }

// MakeCall returns a new call from the factory.
func (d StaticDefinition) MakeCall() Call { return d.Factory() }
