package ext

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrArgumentType is returned when an argument cannot be converted to its declared type.
	ErrArgumentType = errors.New("extension argument type mismatch")
	// ErrResultType is returned when a call's result does not match the declared result type.
	ErrResultType = errors.New("extension result type mismatch")
)

// Invoke runs call with arguments checked and converted against desc.
//
// When an argument declared as optional (?) is empty, Invoke returns Empty without
// running the call. Sequence-typed arguments are passed as []any. The result is
// checked against desc.ResultType unless desc.TrustResultType is set.
func Invoke(ctx DynamicContext, desc Descriptor, call Call, args []any) (any, error) {
	if !desc.AcceptsArity(len(args)) {
		return nil, fmt.Errorf("%w: %s#%d", ErrUnresolvedFunction, desc.Name, len(args))
	}
	converted := make([]any, len(args))
	for i, arg := range args {
		t := desc.ArgTypes[i]
		if t.Occurrence == ZeroOrOne && IsEmpty(arg) {
			return Empty, nil
		}
		v, err := Convert(arg, t)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d of %s: %v", ErrArgumentType, i+1, desc.Name, err)
		}
		converted[i] = v
	}

	result, err := call.Call(ctx, converted)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}
	if desc.TrustResultType {
		if IsEmpty(result) {
			return Empty, nil
		}
		return result, nil
	}
	v, err := Convert(result, desc.ResultType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResultType, desc.Name, err)
	}
	return v, nil
}

// Convert coerces v to t. Single-valued types yield one item or Empty; sequence
// types yield []any.
func Convert(v any, t SequenceType) (any, error) {
	items := toItems(v)
	switch {
	case len(items) == 0 && !t.Occurrence.AllowsEmpty():
		return nil, fmt.Errorf("empty sequence is not allowed for %s", t)
	case len(items) > 1 && !t.Occurrence.AllowsMany():
		return nil, fmt.Errorf("a sequence of %d items is not allowed for %s", len(items), t)
	}

	out := make([]any, len(items))
	for i, item := range items {
		c, err := convertItem(item, t.Item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	if t.Occurrence.AllowsMany() {
		return out, nil
	}
	if len(out) == 0 {
		return Empty, nil
	}
	return out[0], nil
}

func toItems(v any) []any {
	switch x := v.(type) {
	case nil, emptySequence:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	}
	return []any{v}
}

func convertItem(v any, t ItemType) (any, error) {
	switch t {
	case AnyItem:
		return v, nil
	case NodeItem:
		if _, ok := v.(Node); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%T is not a node", v)
	case AnyAtomic:
		if n, ok := v.(Node); ok {
			return n.Text(), nil
		}
		return v, nil
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case Node:
			return x.Text(), nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return nil, fmt.Errorf("%T is not a string", v)
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%T is not a boolean", v)
	case Integer:
		return toInteger(v)
	case Decimal, Double:
		return toDouble(v)
	}
	return nil, fmt.Errorf("unsupported item type %s", t)
}

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint32:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int(x), nil
		}
		return nil, fmt.Errorf("%v is not an integer", x)
	case Node:
		n, err := strconv.Atoi(strings.TrimSpace(x.Text()))
		if err != nil {
			return nil, fmt.Errorf("node value %q is not an integer", x.Text())
		}
		return n, nil
	}
	return nil, fmt.Errorf("%T is not an integer", v)
}

func toDouble(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case Node:
		f, err := strconv.ParseFloat(strings.TrimSpace(x.Text()), 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	}
	return nil, fmt.Errorf("%T is not numeric", v)
}
