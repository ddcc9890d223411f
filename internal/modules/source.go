package modules

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultInclude lists the module files a loader accepts by default.
var DefaultInclude = []string{"**/*.js", "**/*.mjs", "**/*.json"}

// Reader reads module files.
type Reader interface {
	ReadFile(path string) ([]byte, error)
}

// OSReader reads directly from the host filesystem.
type OSReader struct{}

// ReadFile implements Reader.
func (OSReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// RootReader reads through an os.Root, so the lookup itself refuses to leave
// the directory even if links are swapped after the guard has run.
type RootReader struct {
	dir  string
	root *os.Root
}

// OpenRootReader opens dir for reading.
func OpenRootReader(dir string) (*RootReader, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &RootReader{dir: dir, root: root}, nil
}

// ReadFile implements Reader. path must lie under the reader's directory.
func (r *RootReader) ReadFile(path string) ([]byte, error) {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return nil, err
	}
	f, err := r.root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Close releases the root handle.
func (r *RootReader) Close() error {
	return r.root.Close()
}

// matchInclude reports whether the root-relative path matches any pattern.
func matchInclude(patterns []string, rel string) (bool, error) {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// validatePatterns rejects malformed include patterns up front.
func validatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern %q", pattern)
		}
	}
	return nil
}

// checkText rejects binary module content.
func checkText(src []byte) error {
	if len(src) == 0 {
		return nil
	}
	mtype := mimetype.Detect(src)
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %s is not text", ErrUnsupportedModule, mtype.String())
}
