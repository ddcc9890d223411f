package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LinkPolicy decides how symbolic links inside the module root are treated.
type LinkPolicy string

const (
	// LinksContain resolves symbolic links before the containment check, so
	// a link inside the root that points outside of it is an escape.
	LinksContain LinkPolicy = "contain"
	// LinksFollow checks only the lexical path and lets the filesystem
	// follow links wherever they point.
	LinksFollow LinkPolicy = "follow"
)

// GuardOptions configures a Guard.
type GuardOptions struct {
	Links           LinkPolicy
	CaseInsensitive bool // compare components with case folding
}

// Guard checks that resolved paths stay inside the module root.
type Guard struct {
	opts GuardOptions

	root      string
	rootParts []string

	// canonical root, equal to root under LinksFollow
	realRoot  string
	realParts []string
}

// NewGuard creates a guard for the absolute directory root.
func NewGuard(root string, opts GuardOptions) (*Guard, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("module root %q is not absolute", root)
	}
	if opts.Links == "" {
		opts.Links = LinksContain
	}

	g := &Guard{opts: opts, root: filepath.Clean(root)}
	g.rootParts = splitPath(g.root[len(filepath.VolumeName(g.root)):])

	switch opts.Links {
	case LinksContain:
		real, err := filepath.EvalSymlinks(g.root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve module root: %w", err)
		}
		g.realRoot = real
	case LinksFollow:
		g.realRoot = g.root
	default:
		return nil, fmt.Errorf("unknown link policy %q", opts.Links)
	}
	g.realParts = splitPath(g.realRoot[len(filepath.VolumeName(g.realRoot)):])

	return g, nil
}

// Root returns the canonical module root.
func (g *Guard) Root() string {
	return g.realRoot
}

// Policy returns the guard's link policy.
func (g *Guard) Policy() LinkPolicy {
	return g.opts.Links
}

// Contains reports whether the normalised absolute path lies at or below the
// root, comparing component by component.
func (g *Guard) Contains(path string) bool {
	return g.within(g.root, g.rootParts, path) || g.within(g.realRoot, g.realParts, path)
}

// Check validates candidate and returns the canonical path to load. Under
// LinksContain the canonical path has every symbolic link resolved.
func (g *Guard) Check(candidate string) (string, error) {
	if !g.within(g.root, g.rootParts, candidate) && !g.within(g.realRoot, g.realParts, candidate) {
		return "", &LoadError{Kind: KindEscape, Path: candidate}
	}
	if g.opts.Links == LinksFollow {
		return candidate, nil
	}

	real, err := realPath(candidate)
	if err != nil {
		return "", &LoadError{Kind: KindRead, Path: candidate, Err: err}
	}
	if !g.within(g.realRoot, g.realParts, real) {
		return "", &LoadError{Kind: KindEscape, Path: real}
	}
	return real, nil
}

func (g *Guard) within(root string, rootParts []string, path string) bool {
	vol := filepath.VolumeName(path)
	if !g.equal(vol, filepath.VolumeName(root)) {
		return false
	}
	parts := splitPath(path[len(vol):])
	if len(parts) < len(rootParts) {
		return false
	}
	for i, p := range parts {
		if p == parentSegment {
			return false
		}
		if i < len(rootParts) && !g.equal(p, rootParts[i]) {
			return false
		}
	}
	return true
}

func (g *Guard) equal(a, b string) bool {
	if g.opts.CaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// realPath resolves every symbolic link in p. When p does not exist yet the
// deepest existing ancestor is resolved and the remainder appended. A
// dangling link is reported as not found rather than skipped.
func realPath(p string) (string, error) {
	var rest []string
	cur := p
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
