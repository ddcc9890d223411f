package modules

import (
	"errors"
	"fmt"
)

// Stable message fragments. Callers and scripts match on these.
const (
	EscapeMessage = "Cannot import files outside of module root directory"
	RemoteMessage = "Sandbox supports importing from relative paths only"
)

// ErrorKind classifies a failed import.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota + 1
	KindRemote
	KindEscape
	KindRead
	KindEvaluation
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindRemote:
		return "remote"
	case KindEscape:
		return "escape"
	case KindRead:
		return "read"
	case KindEvaluation:
		return "evaluation"
	default:
		return "unknown"
	}
}

var (
	ErrMalformedSpecifier = errors.New("malformed module specifier")
	ErrRemoteImport       = errors.New("remote module import")
	ErrEscape             = errors.New("module path escapes root")
	ErrRead               = errors.New("module read failed")
	ErrEvaluation         = errors.New("module evaluation failed")

	// ErrUnsupportedModule is wrapped by read errors for files outside the
	// include patterns or with non-text content.
	ErrUnsupportedModule = errors.New("unsupported module file")
)

var kindSentinels = map[ErrorKind]error{
	KindMalformed:  ErrMalformedSpecifier,
	KindRemote:     ErrRemoteImport,
	KindEscape:     ErrEscape,
	KindRead:       ErrRead,
	KindEvaluation: ErrEvaluation,
}

// LoadError describes a failed import attempt.
type LoadError struct {
	Kind      ErrorKind
	Specifier string // raw specifier, empty for the entry module
	Importer  string // resolved path of the importing module
	Path      string // resolved candidate path, when one was computed
	Err       error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	switch e.Kind {
	case KindEscape:
		return fmt.Sprintf("%s: %q resolves to %s (imported from %s)",
			EscapeMessage, e.Specifier, e.Path, e.Importer)
	case KindRemote:
		return fmt.Sprintf("%s, cannot import %q from %s",
			RemoteMessage, e.Specifier, e.Importer)
	case KindMalformed:
		return fmt.Sprintf("invalid module specifier %q imported from %s: "+
			"specifiers must start with \"./\" or \"../\"", e.Specifier, e.Importer)
	case KindRead:
		return fmt.Sprintf("cannot load module %s: %s", e.Path, e.unwrapMessage())
	case KindEvaluation:
		return fmt.Sprintf("error evaluating module %s: %s", e.Path, e.unwrapMessage())
	}
	return e.unwrapMessage()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *LoadError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *LoadError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// KindOf returns the kind of the first LoadError in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// IsSecurityError reports whether err is a remote-import or escape rejection.
func IsSecurityError(err error) bool {
	k := KindOf(err)
	return k == KindRemote || k == KindEscape
}
