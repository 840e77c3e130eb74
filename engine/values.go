package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joncooperworks/xmlharness/ext"
)

// StringValue renders a value the way templates write it into text: nodes by
// their string value, sequences space-separated, whole doubles without a
// fractional part.
func StringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatDouble(x)
	case *Node:
		return x.Text()
	case *Document:
		return x.Node().Text()
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = StringValue(item)
		}
		return strings.Join(parts, " ")
	case ext.Node:
		return x.Text()
	case fmt.Stringer:
		if ext.IsEmpty(v) {
			return ""
		}
		return x.String()
	}
	return fmt.Sprint(v)
}

func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// items flattens a value into a sequence.
func items(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case *Document:
		return []any{x.Node()}
	}
	if ext.IsEmpty(v) {
		return nil
	}
	return []any{v}
}
