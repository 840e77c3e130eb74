package engine

import (
	"fmt"
	"strings"

	"github.com/joncooperworks/xmlharness/ext"
)

// qualified is the result of rewriting prefixed calls: the rewritten source and the
// qualified name behind each identifier introduced.
type qualified struct {
	source string
	names  map[string]ext.QName
}

// prefixError is an unknown prefix at a byte offset of the original source.
type prefixError struct {
	prefix string
	offset int
}

// qualifyCalls rewrites every call written prefix:local(...) into an identifier
// call the expression parser accepts, looking prefixes up with lookup. String
// literals are left alone. A prefixed name not followed by "(" is not a call and
// is copied unchanged, so ternaries and map literals written with spaces around
// ":" are unaffected.
func qualifyCalls(src string, lookup func(prefix string) (string, bool)) (qualified, []prefixError) {
	q := qualified{names: make(map[string]ext.QName)}
	byName := make(map[ext.QName]string)
	var errs []prefixError
	var b strings.Builder

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
			continue
		case isIdentStart(c) && (i == 0 || (!isIdentPart(src[i-1]) && src[i-1] != '.')):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			prefix := src[start:i]
			if i+1 < len(src) && src[i] == ':' && isIdentStart(src[i+1]) {
				j := i + 1
				for j < len(src) && (isIdentPart(src[j]) || src[j] == '-') {
					j++
				}
				local := src[i+1 : j]
				k := j
				for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
					k++
				}
				if k < len(src) && src[k] == '(' {
					uri, ok := lookup(prefix)
					if !ok {
						errs = append(errs, prefixError{prefix: prefix, offset: start})
					}
					qn := ext.NewQName(uri, local)
					name, seen := byName[qn]
					if !seen {
						name = mangle(prefix, local, q.names)
						byName[qn] = name
						q.names[name] = qn
					}
					b.WriteString(name)
					i = j
					continue
				}
			}
			b.WriteString(prefix)
			continue
		}
		b.WriteByte(c)
		i++
	}
	q.source = b.String()
	return q, errs
}

func mangle(prefix, local string, taken map[string]ext.QName) string {
	base := prefix + "__" + strings.NewReplacer("-", "_", ".", "_").Replace(local)
	name := base
	for n := 2; ; n++ {
		if _, ok := taken[name]; !ok {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
}

func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if quote != '`' {
				j++
			}
		case quote:
			return j + 1
		}
	}
	return len(src)
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// lineColumn converts a byte offset into a 1-based line and column.
func lineColumn(src string, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
