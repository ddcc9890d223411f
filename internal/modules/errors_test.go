package modules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadErrorMessages(t *testing.T) {
	escape := &LoadError{Kind: KindEscape, Specifier: "../../x.js", Importer: "/srv/root/main.js", Path: "/x.js"}
	assert.Contains(t, escape.Error(), EscapeMessage)
	assert.Contains(t, escape.Error(), `"../../x.js"`)

	remote := &LoadError{Kind: KindRemote, Specifier: "https://example.com/mod.ts", Importer: "/srv/root/main.js"}
	assert.Contains(t, remote.Error(), RemoteMessage)

	read := &LoadError{Kind: KindRead, Path: "/srv/root/a.js", Err: errors.New("permission denied")}
	assert.Equal(t, "cannot load module /srv/root/a.js: permission denied", read.Error())

	eval := &LoadError{Kind: KindEvaluation, Path: "/srv/root/a.js"}
	assert.Equal(t, "error evaluating module /srv/root/a.js: evaluation", eval.Error())
}

func TestLoadErrorMatching(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("run failed: %w", &LoadError{Kind: KindRead, Path: "/a.js", Err: cause})

	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrEscape)
	assert.Equal(t, KindRead, KindOf(err))
	assert.False(t, IsSecurityError(err))

	assert.Equal(t, ErrorKind(0), KindOf(cause))
	assert.True(t, IsSecurityError(&LoadError{Kind: KindEscape}))
	assert.True(t, IsSecurityError(&LoadError{Kind: KindRemote}))
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "escape", KindEscape.String())
	assert.Equal(t, "remote", KindRemote.String())
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
