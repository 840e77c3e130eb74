package scenario

import (
	"math"

	"github.com/joncooperworks/xmlharness/ext"
)

// Namespaces the sample extension functions live in.
const (
	MathNamespace   = "http://example.math.co.uk/demo"
	EnvNamespace    = "http://example.env.co.uk/demo"
	HostNamespace   = "http://example.com/host"
	ScriptNamespace = "urn:xmlharness:lua"
	WasmNamespace   = "urn:xmlharness:wasm"
)

// Sqrt is math:sqrt written against the full extension API. An empty argument
// gives an empty result, and the result type is trusted without checking.
type Sqrt struct{}

// Descriptor implements ext.Definition.
func (Sqrt) Descriptor() ext.Descriptor {
	return ext.Descriptor{
		Name:            ext.NewQName(MathNamespace, "sqrt"),
		MinArity:        1,
		MaxArity:        1,
		ArgTypes:        []ext.SequenceType{ext.MustParseSequenceType("xs:double?")},
		ResultType:      ext.MustParseSequenceType("xs:double?"),
		TrustResultType: true,
	}
}

// MakeCall implements ext.Definition.
func (Sqrt) MakeCall() ext.Call {
	return ext.CallFunc(func(_ ext.DynamicContext, args []any) (any, error) {
		return math.Sqrt(args[0].(float64)), nil
	})
}

// DefaultNamespace is env:defaultNamespace(). It returns the default element
// namespace in force where it is called, or the empty sequence when there is
// none.
type DefaultNamespace struct{}

// Descriptor implements ext.Definition.
func (DefaultNamespace) Descriptor() ext.Descriptor {
	return ext.Descriptor{
		Name:             ext.NewQName(EnvNamespace, "defaultNamespace"),
		ResultType:       ext.MustParseSequenceType("xs:string?"),
		DependsOnContext: true,
	}
}

// MakeCall implements ext.Definition.
func (DefaultNamespace) MakeCall() ext.Call { return &defaultNamespaceCall{} }

type defaultNamespaceCall struct {
	ns string
}

func (c *defaultNamespaceCall) SupplyStaticContext(sc ext.StaticContext) {
	c.ns = sc.DefaultElementNamespace()
}

func (c *defaultNamespaceCall) Call(ext.DynamicContext, []any) (any, error) {
	if c.ns == "" {
		return ext.Empty, nil
	}
	return c.ns, nil
}

// hostFunctions are the host:add, host:average and host:hostLanguage functions.
func hostFunctions() []ext.Definition {
	add, _ := ext.NewDescriptor(ext.NewQName(HostNamespace, "add"), "function(xs:integer, xs:integer) as xs:integer")
	average, _ := ext.NewDescriptor(ext.NewQName(HostNamespace, "average"), "function(xs:integer*) as xs:double?")
	return []ext.Definition{
		ext.StaticDefinition{Desc: add, Factory: func() ext.Call {
			return ext.CallFunc(func(_ ext.DynamicContext, args []any) (any, error) {
				return args[0].(int) + args[1].(int), nil
			})
		}},
		ext.StaticDefinition{Desc: average, Factory: func() ext.Call {
			return ext.CallFunc(func(_ ext.DynamicContext, args []any) (any, error) {
				values := args[0].([]any)
				if len(values) == 0 {
					return ext.Empty, nil
				}
				sum := 0
				for _, v := range values {
					sum += v.(int)
				}
				return float64(sum) / float64(len(values)), nil
			})
		}},
		ext.StaticDefinition{
			Desc: ext.Descriptor{
				Name:             ext.NewQName(HostNamespace, "hostLanguage"),
				ResultType:       ext.MustParseSequenceType("xs:string"),
				DependsOnContext: true,
			},
			Factory: func() ext.Call { return &hostLanguageCall{} },
		},
	}
}

type hostLanguageCall struct {
	language string
}

func (c *hostLanguageCall) SupplyStaticContext(sc ext.StaticContext) {
	c.language = sc.HostLanguage()
}

func (c *hostLanguageCall) Call(ext.DynamicContext, []any) (any, error) {
	return c.language, nil
}
