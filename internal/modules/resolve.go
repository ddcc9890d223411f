package modules

import (
	"fmt"
	"path/filepath"
	"strings"
)

const parentSegment = ".."

// ResolvePath joins a relative specifier onto the directory of importer and
// normalises the result. A ".." that cannot pop a segment is kept so the
// guard sees the escape; the result is never passed through filepath.Clean.
//
// importer must be an absolute, clean path. Anything else is a programming
// error in the caller and panics.
func ResolvePath(spec Specifier, importer string) string {
	if spec.Kind != RelativePath {
		panic(fmt.Sprintf("modules: cannot resolve %s specifier %q", spec.Kind, spec.Raw))
	}
	if !isCanonical(importer) {
		panic(fmt.Sprintf("modules: importer %q is not a canonical path", importer))
	}

	vol := filepath.VolumeName(importer)
	dir := splitPath(importer[len(vol):])
	if len(dir) > 0 {
		dir = dir[:len(dir)-1]
	}
	return joinPath(vol, normalize(dir, strings.Split(spec.Raw, "/")))
}

// normalize applies segs on top of base.
func normalize(base, segs []string) []string {
	out := append(make([]string, 0, len(base)+len(segs)), base...)
	for _, s := range segs {
		switch s {
		case "", ".":
		case parentSegment:
			if n := len(out); n > 0 && out[n-1] != parentSegment {
				out = out[:n-1]
			} else {
				out = append(out, parentSegment)
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

func isCanonical(p string) bool {
	return filepath.IsAbs(p) && filepath.Clean(p) == p
}

// splitPath breaks the volume-less part of an absolute path into components.
func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(filepath.ToSlash(p), "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func joinPath(vol string, parts []string) string {
	sep := string(filepath.Separator)
	return vol + sep + strings.Join(parts, sep)
}
