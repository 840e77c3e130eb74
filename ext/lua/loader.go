// Package lua loads extension functions written in Lua.
//
// A module is a chunk that returns a table of function specifications:
//
//	return {
//	    shout = {
//	        signature = "function(xs:string?) as xs:string?",
//	        fn = function(s) return string.upper(s) .. "!" end,
//	    },
//	}
//
// A specification with context = true marks the function as context dependent;
// its fn then receives a context table as its first argument with the fields
// item (the context item's string value, or nil) and now (RFC 3339 timestamp).
package lua

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/joncooperworks/xmlharness/ext"
)

// Kind is the module kind this package registers.
const Kind = "lua"

func init() {
	ext.RegisterLoader(Kind, func() (ext.Loader, error) {
		return NewLoader(), nil
	})
}

// Loader compiles Lua modules into extension definitions.
type Loader struct{}

// NewLoader creates a new Lua loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load runs the module chunk and reads the specification table it returns.
func (l *Loader) Load(ctx context.Context, m ext.Module) (ext.Bundle, error) {
	if m.Namespace == "" {
		return nil, fmt.Errorf("lua module %s: namespace is required", m.Name)
	}
	st := newState()
	st.L.SetContext(ctx)
	defer st.L.RemoveContext()

	if err := st.L.DoString(string(m.Data)); err != nil {
		st.L.Close()
		return nil, fmt.Errorf("failed to run lua chunk: %w", err)
	}
	ret := st.L.Get(-1)
	st.L.Pop(1)
	specs, ok := ret.(*lua.LTable)
	if !ok {
		st.L.Close()
		return nil, fmt.Errorf("lua module %s must return a table, got %s", m.Name, ret.Type())
	}

	var defs []ext.Definition
	var specErr error
	specs.ForEach(func(k, v lua.LValue) {
		if specErr != nil {
			return
		}
		def, err := st.definition(m.Namespace, k, v)
		if err != nil {
			specErr = fmt.Errorf("lua module %s: %w", m.Name, err)
			return
		}
		defs = append(defs, def)
	})
	if specErr != nil {
		st.L.Close()
		return nil, specErr
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Descriptor().Name.Local < defs[j].Descriptor().Name.Local
	})
	return &bundle{state: st, defs: defs}, nil
}

// state owns one LState. LState is not goroutine-safe, so every call takes mu.
type state struct {
	L  *lua.LState
	mu sync.Mutex
}

func newState() *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return &state{L: L}
}

func (s *state) definition(namespace string, k, v lua.LValue) (ext.Definition, error) {
	name, ok := k.(lua.LString)
	if !ok {
		return nil, fmt.Errorf("function names must be strings, got %s", k.Type())
	}
	spec, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: specification must be a table", name)
	}
	sig, ok := spec.RawGetString("signature").(lua.LString)
	if !ok {
		return nil, fmt.Errorf("%s: missing signature", name)
	}
	fn, ok := spec.RawGetString("fn").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s: missing fn", name)
	}

	desc, err := ext.NewDescriptor(ext.NewQName(namespace, string(name)), string(sig))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	desc.DependsOnContext = lua.LVAsBool(spec.RawGetString("context"))

	withContext := desc.DependsOnContext
	return ext.StaticDefinition{
		Desc: desc,
		Factory: func() ext.Call {
			return &call{state: s, fn: fn, withContext: withContext}
		},
	}, nil
}

type call struct {
	state       *state
	fn          *lua.LFunction
	withContext bool
}

func (c *call) Call(dc ext.DynamicContext, args []any) (any, error) {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if dc != nil {
		s.L.SetContext(dc.Context())
		defer s.L.RemoveContext()
	}

	largs := make([]lua.LValue, 0, len(args)+1)
	if c.withContext {
		largs = append(largs, contextTable(s.L, dc))
	}
	for _, a := range args {
		largs = append(largs, toLua(s.L, a))
	}

	if err := s.L.CallByParam(lua.P{Fn: c.fn, NRet: 1, Protect: true}, largs...); err != nil {
		return nil, fmt.Errorf("lua call failed: %w", err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return fromLua(ret), nil
}

func contextTable(L *lua.LState, dc ext.DynamicContext) *lua.LTable {
	t := L.NewTable()
	if dc == nil {
		return t
	}
	if item := dc.ContextItem(); item != nil {
		if n, ok := item.(ext.Node); ok {
			t.RawSetString("item", lua.LString(n.Text()))
		} else {
			t.RawSetString("item", toLua(L, item))
		}
	}
	t.RawSetString("now", lua.LString(dc.CurrentTime().Format(time.RFC3339)))
	return t
}

type bundle struct {
	state *state
	defs  []ext.Definition
}

func (b *bundle) Definitions() []ext.Definition { return b.defs }

// Close releases the Lua state. Calls made afterwards fail.
func (b *bundle) Close() error {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	b.state.L.Close()
	return nil
}
