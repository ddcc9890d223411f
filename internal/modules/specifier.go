package modules

import "strings"

// SpecifierKind is the shape of a raw import specifier.
type SpecifierKind int

const (
	Malformed SpecifierKind = iota
	RelativePath
	AbsoluteScheme
)

// String returns the string representation of the kind
func (k SpecifierKind) String() string {
	switch k {
	case RelativePath:
		return "relative"
	case AbsoluteScheme:
		return "absolute-scheme"
	default:
		return "malformed"
	}
}

// Specifier is a classified import string.
type Specifier struct {
	Raw    string
	Kind   SpecifierKind
	Scheme string // lower-cased, set for AbsoluteScheme
}

// Classify tags a raw import string. It never touches the filesystem and
// never fails.
func Classify(raw string) Specifier {
	spec := Specifier{Raw: raw}
	if raw == "" || strings.ContainsRune(raw, 0) {
		return spec
	}
	if scheme, ok := parseScheme(raw); ok {
		spec.Kind = AbsoluteScheme
		spec.Scheme = scheme
		return spec
	}
	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		spec.Kind = RelativePath
	}
	return spec
}

// parseScheme matches RFC 3986 scheme syntax: ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ) ":"
func parseScheme(raw string) (string, bool) {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case isAlpha(c):
		case i > 0 && (isDigit(c) || c == '+' || c == '-' || c == '.'):
		case i > 0 && c == ':':
			return strings.ToLower(raw[:i]), true
		default:
			return "", false
		}
	}
	return "", false
}

func isAlpha(c byte) bool { return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
