package ext

import (
	"errors"
	"fmt"
)

// ErrInvalidDescriptor is returned when a descriptor fails validation.
var ErrInvalidDescriptor = errors.New("invalid extension descriptor")

// Descriptor declares an extension function's name, arity range and types.
type Descriptor struct {
	// Name is the qualified name the function is called by.
	Name QName

	// MinArity and MaxArity bound the number of arguments a call may pass.
	MinArity int
	MaxArity int

	// ArgTypes declares one type per argument position up to MaxArity.
	ArgTypes []SequenceType

	// ResultType declares the result. It is checked after every call unless
	// TrustResultType is set.
	ResultType      SequenceType
	TrustResultType bool

	// DependsOnContext marks functions whose result depends on the position they are
	// evaluated from (static or dynamic context). The engine never evaluates such a
	// call early or outside that position.
	DependsOnContext bool
}

// Validate checks the arity range and the argument type table.
func (d Descriptor) Validate() error {
	if d.Name.Local == "" {
		return fmt.Errorf("%w: missing local name", ErrInvalidDescriptor)
	}
	if d.MinArity < 0 || d.MinArity > d.MaxArity {
		return fmt.Errorf("%w: %s: arity range [%d, %d]", ErrInvalidDescriptor, d.Name, d.MinArity, d.MaxArity)
	}
	if len(d.ArgTypes) < d.MaxArity {
		return fmt.Errorf("%w: %s: %d argument types declared for max arity %d",
			ErrInvalidDescriptor, d.Name, len(d.ArgTypes), d.MaxArity)
	}
	return nil
}

// AcceptsArity reports whether n arguments fall inside the declared range.
func (d Descriptor) AcceptsArity(n int) bool {
	return n >= d.MinArity && n <= d.MaxArity
}

func (d Descriptor) clone() Descriptor {
	c := d
	c.ArgTypes = append([]SequenceType(nil), d.ArgTypes...)
	return c
}

// NewDescriptor builds a fixed-arity descriptor from a signature string, as in
// NewDescriptor(name, "function(xs:double?) as xs:double?").
func NewDescriptor(name QName, signature string) (Descriptor, error) {
	args, result, err := ParseSignature(signature)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Name:       name,
		MinArity:   len(args),
		MaxArity:   len(args),
		ArgTypes:   args,
		ResultType: result,
	}, nil
}
