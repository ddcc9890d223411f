package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempRoot returns a canonical temporary directory with a "root" module
// directory and an "outside" sibling.
func tempRoot(t *testing.T) (root, outside string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	root = filepath.Join(base, "root")
	outside = filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	return root, outside
}

func symlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestGuardContains(t *testing.T) {
	g, err := NewGuard("/srv/root", GuardOptions{Links: LinksFollow})
	require.NoError(t, err)

	assert.True(t, g.Contains("/srv/root"))
	assert.True(t, g.Contains("/srv/root/a.js"))
	assert.True(t, g.Contains("/srv/root/lib/deep/a.js"))

	assert.False(t, g.Contains("/srv/rootkit/a.js"))
	assert.False(t, g.Contains("/srv/a.js"))
	assert.False(t, g.Contains("/srv"))
	assert.False(t, g.Contains("/srv/root/../a.js"))
	assert.False(t, g.Contains("/../../srv/root/a.js"))
	assert.False(t, g.Contains("/SRV/root/a.js"))
}

func TestGuardCaseInsensitive(t *testing.T) {
	g, err := NewGuard("/srv/Root", GuardOptions{Links: LinksFollow, CaseInsensitive: true})
	require.NoError(t, err)

	assert.True(t, g.Contains("/SRV/root/a.js"))
	assert.False(t, g.Contains("/srv/rootkit/a.js"))

	path, err := g.Check("/srv/ROOT/Lib/A.js")
	require.NoError(t, err)
	assert.Equal(t, "/srv/ROOT/Lib/A.js", path)
}

func TestGuardCheckEscape(t *testing.T) {
	g, err := NewGuard("/srv/root", GuardOptions{Links: LinksFollow})
	require.NoError(t, err)

	_, err = g.Check("/srv/other/a.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEscape)
	assert.Contains(t, err.Error(), EscapeMessage)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/srv/other/a.js", le.Path)
}

func TestNewGuardValidation(t *testing.T) {
	_, err := NewGuard("relative/root", GuardOptions{})
	assert.Error(t, err)

	_, err = NewGuard("/srv/root", GuardOptions{Links: "sometimes"})
	assert.Error(t, err)

	_, err = NewGuard(filepath.Join(t.TempDir(), "missing"), GuardOptions{Links: LinksContain})
	assert.Error(t, err)

	g, err := NewGuard(t.TempDir(), GuardOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinksContain, g.Policy())
}

func TestGuardSymlinks(t *testing.T) {
	root, outside := tempRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.js"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "real.js"), nil, 0o644))

	symlink(t, filepath.Join(outside, "secret.js"), filepath.Join(root, "leak.js"))
	symlink(t, outside, filepath.Join(root, "leakdir"))
	symlink(t, filepath.Join(root, "lib", "real.js"), filepath.Join(root, "alias.js"))
	symlink(t, filepath.Join(root, "gone.js"), filepath.Join(root, "dangling.js"))

	t.Run("contain", func(t *testing.T) {
		g, err := NewGuard(root, GuardOptions{Links: LinksContain})
		require.NoError(t, err)

		_, err = g.Check(filepath.Join(root, "leak.js"))
		assert.ErrorIs(t, err, ErrEscape)

		_, err = g.Check(filepath.Join(root, "leakdir", "secret.js"))
		assert.ErrorIs(t, err, ErrEscape)

		_, err = g.Check(filepath.Join(root, "leakdir", "not-there.js"))
		assert.ErrorIs(t, err, ErrEscape)

		path, err := g.Check(filepath.Join(root, "alias.js"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "lib", "real.js"), path)

		path, err = g.Check(filepath.Join(root, "lib", "missing.js"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "lib", "missing.js"), path)

		_, err = g.Check(filepath.Join(root, "dangling.js"))
		assert.ErrorIs(t, err, ErrRead)
	})

	t.Run("follow", func(t *testing.T) {
		g, err := NewGuard(root, GuardOptions{Links: LinksFollow})
		require.NoError(t, err)

		path, err := g.Check(filepath.Join(root, "leak.js"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "leak.js"), path)

		path, err = g.Check(filepath.Join(root, "alias.js"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "alias.js"), path)
	})
}

func TestGuardSymlinkedRoot(t *testing.T) {
	root, outside := tempRoot(t)
	link := filepath.Join(outside, "root-link")
	symlink(t, root, link)

	g, err := NewGuard(link, GuardOptions{Links: LinksContain})
	require.NoError(t, err)
	assert.Equal(t, root, g.Root())

	path, err := g.Check(filepath.Join(link, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.js"), path)
}
