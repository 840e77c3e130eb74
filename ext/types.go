package ext

import (
	"fmt"
	"strings"
)

// ItemType is the item part of a sequence type.
type ItemType int

const (
	AnyItem ItemType = iota
	AnyAtomic
	String
	Boolean
	Integer
	Decimal
	Double
	NodeItem
)

var itemTypeNames = map[ItemType]string{
	AnyItem:   "item()",
	AnyAtomic: "xs:anyAtomicType",
	String:    "xs:string",
	Boolean:   "xs:boolean",
	Integer:   "xs:integer",
	Decimal:   "xs:decimal",
	Double:    "xs:double",
	NodeItem:  "node()",
}

var itemTypeAliases = map[string]ItemType{
	"item()":           AnyItem,
	"xs:anyAtomicType": AnyAtomic,
	"xs:untypedAtomic": AnyAtomic,
	"xs:string":        String,
	"xs:anyURI":        String,
	"xs:boolean":       Boolean,
	"xs:integer":       Integer,
	"xs:int":           Integer,
	"xs:long":          Integer,
	"xs:decimal":       Decimal,
	"xs:double":        Double,
	"xs:float":         Double,
	"node()":           NodeItem,
	"element()":        NodeItem,
	"document-node()":  NodeItem,
}

func (t ItemType) String() string {
	if name, ok := itemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ItemType(%d)", int(t))
}

// Occurrence is the cardinality part of a sequence type.
type Occurrence int

const (
	ExactlyOne Occurrence = iota
	ZeroOrOne
	ZeroOrMore
	OneOrMore
)

func (o Occurrence) String() string {
	switch o {
	case ZeroOrOne:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	default:
		return ""
	}
}

// AllowsEmpty reports whether the empty sequence satisfies the occurrence.
func (o Occurrence) AllowsEmpty() bool {
	return o == ZeroOrOne || o == ZeroOrMore
}

// AllowsMany reports whether more than one item satisfies the occurrence.
func (o Occurrence) AllowsMany() bool {
	return o == ZeroOrMore || o == OneOrMore
}

// SequenceType is a declared argument or result type such as xs:double?.
type SequenceType struct {
	Item       ItemType
	Occurrence Occurrence
}

func (s SequenceType) String() string {
	return s.Item.String() + s.Occurrence.String()
}

// ParseSequenceType parses a type such as "xs:integer", "xs:double?" or "item()*".
func ParseSequenceType(s string) (SequenceType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SequenceType{}, fmt.Errorf("empty sequence type")
	}
	occ := ExactlyOne
	switch s[len(s)-1] {
	case '?':
		occ = ZeroOrOne
	case '*':
		occ = ZeroOrMore
	case '+':
		occ = OneOrMore
	}
	if occ != ExactlyOne {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	item, ok := itemTypeAliases[s]
	if !ok {
		return SequenceType{}, fmt.Errorf("unknown item type %q", s)
	}
	return SequenceType{Item: item, Occurrence: occ}, nil
}

// MustParseSequenceType is like ParseSequenceType but panics on error.
// It is meant for package-level descriptor tables.
func MustParseSequenceType(s string) SequenceType {
	t, err := ParseSequenceType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseSignature parses a function type such as
// "function(xs:integer, xs:integer) as xs:integer".
func ParseSignature(sig string) ([]SequenceType, SequenceType, error) {
	s := strings.TrimSpace(sig)
	if !strings.HasPrefix(s, "function(") {
		return nil, SequenceType{}, fmt.Errorf("signature %q must start with function(", sig)
	}
	s = s[len("function("):]

	// item() and friends contain parentheses, so find the closing one by depth.
	depth, end := 0, -1
	for i, r := range s {
		if r == '(' {
			depth++
		} else if r == ')' {
			if depth == 0 {
				end = i
				break
			}
			depth--
		}
	}
	if end < 0 {
		return nil, SequenceType{}, fmt.Errorf("signature %q has no closing parenthesis", sig)
	}
	params, rest := strings.TrimSpace(s[:end]), strings.TrimSpace(s[end+1:])

	var args []SequenceType
	if params != "" {
		for _, p := range strings.Split(params, ",") {
			t, err := ParseSequenceType(p)
			if err != nil {
				return nil, SequenceType{}, fmt.Errorf("signature %q: %w", sig, err)
			}
			args = append(args, t)
		}
	}

	result := SequenceType{Item: AnyItem, Occurrence: ZeroOrMore}
	if rest != "" {
		if !strings.HasPrefix(rest, "as ") {
			return nil, SequenceType{}, fmt.Errorf("signature %q: expected \"as\" before result type", sig)
		}
		t, err := ParseSequenceType(rest[len("as "):])
		if err != nil {
			return nil, SequenceType{}, fmt.Errorf("signature %q: %w", sig, err)
		}
		result = t
	}
	return args, result, nil
}

type emptySequence struct{}

func (emptySequence) String() string { return "()" }

// Empty is the empty-sequence result. It is distinct from zero, NaN and "".
var Empty any = emptySequence{}

// IsEmpty reports whether v denotes the empty sequence: nil, Empty, or a
// slice with no items.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil, emptySequence:
		return true
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case []int:
		return len(x) == 0
	case []float64:
		return len(x) == 0
	}
	return false
}
