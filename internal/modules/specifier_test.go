package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw    string
		kind   SpecifierKind
		scheme string
	}{
		{raw: "./a.js", kind: RelativePath},
		{raw: "../a.js", kind: RelativePath},
		{raw: "./", kind: RelativePath},
		{raw: ".//a.js", kind: RelativePath},
		{raw: "./a:b.js", kind: RelativePath},
		{raw: "https://example.com/mod.ts", kind: AbsoluteScheme, scheme: "https"},
		{raw: "HTTP://example.com/mod.js", kind: AbsoluteScheme, scheme: "http"},
		{raw: "file:///etc/passwd", kind: AbsoluteScheme, scheme: "file"},
		{raw: "data:text/javascript,export default 1", kind: AbsoluteScheme, scheme: "data"},
		{raw: "node:fs", kind: AbsoluteScheme, scheme: "node"},
		{raw: "git+ssh://host/repo", kind: AbsoluteScheme, scheme: "git+ssh"},
		{raw: "", kind: Malformed},
		{raw: "lodash", kind: Malformed},
		{raw: "/abs/a.js", kind: Malformed},
		{raw: ".a.js", kind: Malformed},
		{raw: "...", kind: Malformed},
		{raw: "1http://example.com", kind: Malformed},
		{raw: ":no-scheme", kind: Malformed},
		{raw: "./a\x00.js", kind: Malformed},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			spec := Classify(tt.raw)
			assert.Equal(t, tt.raw, spec.Raw)
			assert.Equal(t, tt.kind, spec.Kind, "kind of %q", tt.raw)
			assert.Equal(t, tt.scheme, spec.Scheme)
		})
	}
}

func TestSpecifierKindString(t *testing.T) {
	assert.Equal(t, "relative", RelativePath.String())
	assert.Equal(t, "absolute-scheme", AbsoluteScheme.String())
	assert.Equal(t, "malformed", Malformed.String())
}
