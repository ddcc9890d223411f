package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		specifier string
		importer  string
		want      string
	}{
		{"sibling", "./a.js", "/srv/root/main.js", "/srv/root/a.js"},
		{"nested", "./lib/a.js", "/srv/root/main.js", "/srv/root/lib/a.js"},
		{"parent", "../a.js", "/srv/root/lib/main.js", "/srv/root/a.js"},
		{"dot segments", "./lib/./x/../a.js", "/srv/root/main.js", "/srv/root/lib/a.js"},
		{"empty segments", "./lib//a.js", "/srv/root/main.js", "/srv/root/lib/a.js"},
		{"directory", "./", "/srv/root/main.js", "/srv/root"},
		{"escape kept", "../../../../x.js", "/srv/root/main.js", "/../../x.js"},
		{"escape then return", "../../srv/root/a.js", "/srv/root/main.js", "/srv/root/a.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePath(Classify(tt.specifier), tt.importer)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePathDoesNotTouchFilesystem(t *testing.T) {
	got := ResolvePath(Classify("./missing/deeper/x.js"), "/does/not/exist/main.js")
	assert.Equal(t, "/does/not/exist/missing/deeper/x.js", got)
}

func TestResolvePathPanicsOnMisuse(t *testing.T) {
	assert.Panics(t, func() {
		ResolvePath(Classify("lodash"), "/srv/root/main.js")
	})
	assert.Panics(t, func() {
		ResolvePath(Classify("https://example.com/a.js"), "/srv/root/main.js")
	})
	assert.Panics(t, func() {
		ResolvePath(Classify("./a.js"), "relative/main.js")
	})
	assert.Panics(t, func() {
		ResolvePath(Classify("./a.js"), "/srv/root/../main.js")
	})
}
