package ext

import (
	"fmt"
	"strings"
)

// QName is a namespace-qualified function name. Two names are equal when both the
// namespace and the local part are equal; prefixes play no part in identity.
type QName struct {
	Space string
	Local string
}

// NewQName returns the name {space}local.
func NewQName(space, local string) QName {
	return QName{Space: space, Local: local}
}

// String renders the name in Clark notation.
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// ParseClark parses "{namespace}local" or a bare "local".
func ParseClark(s string) (QName, error) {
	if !strings.HasPrefix(s, "{") {
		if s == "" {
			return QName{}, fmt.Errorf("empty qualified name")
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return QName{}, fmt.Errorf("unterminated namespace in %q", s)
	}
	local := s[end+1:]
	if local == "" {
		return QName{}, fmt.Errorf("missing local name in %q", s)
	}
	return QName{Space: s[1:end], Local: local}, nil
}
