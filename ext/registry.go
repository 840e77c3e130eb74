package ext

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnresolvedFunction is returned by Resolve when no registered function matches
// both the name and the argument count.
var ErrUnresolvedFunction = errors.New("unresolved extension function")

type registration struct {
	desc    Descriptor
	factory Factory
}

// Registry maps qualified names to extension descriptors and call factories.
//
// A Registry belongs to one processing context. Registering a name that is already
// present replaces the earlier registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[QName]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[QName]registration)}
}

// Register adds or replaces the function described by desc.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%w: %s: nil factory", ErrInvalidDescriptor, desc.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[desc.Name] = registration{desc: desc.clone(), factory: factory}
	return nil
}

// RegisterAll registers every definition, or none of them when any is
// invalid.
func (r *Registry) RegisterAll(defs []Definition) error {
	regs := make([]registration, len(defs))
	for i, def := range defs {
		if def == nil {
			return fmt.Errorf("%w: nil definition", ErrInvalidDescriptor)
		}
		desc := def.Descriptor()
		if err := desc.Validate(); err != nil {
			return err
		}
		regs[i] = registration{desc: desc.clone(), factory: def.MakeCall}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range regs {
		r.entries[reg.desc.Name] = reg
	}
	return nil
}

// RegisterDefinition registers the full-API form of an extension.
func (r *Registry) RegisterDefinition(def Definition) error {
	return r.Register(def.Descriptor(), def.MakeCall)
}

// RegisterFunc registers a context-free function under name with the given
// signature, for example "function(xs:double?) as xs:double?".
func (r *Registry) RegisterFunc(name QName, signature string, fn Func) error {
	desc, err := NewDescriptor(name, signature)
	if err != nil {
		return err
	}
	return r.Register(desc, func() Call {
		return CallFunc(func(_ DynamicContext, args []any) (any, error) {
			return fn(args)
		})
	})
}

// Binding is the result of a successful lookup.
type Binding struct {
	desc    Descriptor
	factory Factory
}

// Descriptor returns a copy of the bound function's descriptor.
func (b Binding) Descriptor() Descriptor {
	return b.desc.clone()
}

// MakeCall creates a fresh Call for one call site.
func (b Binding) MakeCall() Call {
	return b.factory()
}

// Resolve looks up name and checks argCount against the declared arity range.
func (r *Registry) Resolve(name QName, argCount int) (Binding, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s#%d", ErrUnresolvedFunction, name, argCount)
	}
	if !reg.desc.AcceptsArity(argCount) {
		return Binding{}, fmt.Errorf("%w: %s#%d (accepts %d to %d arguments)",
			ErrUnresolvedFunction, name, argCount, reg.desc.MinArity, reg.desc.MaxArity)
	}
	return Binding{desc: reg.desc, factory: reg.factory}, nil
}

// Has reports whether any function is registered under name.
func (r *Registry) Has(name QName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names in Clark-notation order.
func (r *Registry) Names() []QName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]QName, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
