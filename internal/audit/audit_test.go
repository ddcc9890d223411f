package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
)

func setup(t *testing.T, files map[string]string) (*modules.Loader, string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(base, "root")
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	l, err := NewLoader(modules.Options{Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, root
}

func TestAuditCleanTree(t *testing.T) {
	l, root := setup(t, map[string]string{
		"main.js":   "import { a } from \"./lib/a.js\";\nimport(\"./lazy.js\");\n",
		"lib/a.js":  "import data from \"../data.json\";\nexport const a = data;\n",
		"lazy.js":   "export default 1;",
		"data.json": `{"ok": true}`,
		"README.md": `import "../../nowhere.js"`,
	})

	report, err := Run(context.Background(), l)
	require.NoError(t, err)

	assert.True(t, report.OK(), "findings: %+v", report.Findings)
	assert.Equal(t, root, report.Root)
	assert.Equal(t, 4, report.Files)
	assert.Equal(t, 3, report.Imports)
}

func TestAuditFindings(t *testing.T) {
	l, _ := setup(t, map[string]string{
		"main.js": `import "./ok.js";
import "../escape.js";
import "https://example.com/mod.ts";
import "lodash";
import "./missing.txt";
const lazy = import('../../outside.js');
`,
		"ok.js":     ``,
		"broken.js": `export const a = ;`,
		"quiet.js": `// import "../commented.js";
/*
import "../block.js";
*/
const s = "import('../string.js')";
const tpl = `+"`"+`
export default 1
import "../template.js"
`+"`"+`;
export { s, tpl };
`,
	})

	report, err := Run(context.Background(), l)
	require.NoError(t, err)
	require.False(t, report.OK())

	type summary struct {
		File      string
		Specifier string
		Dynamic   bool
		Kind      modules.ErrorKind
	}
	var got []summary
	for _, f := range report.Findings {
		got = append(got, summary{f.File, f.Specifier, f.Dynamic, f.Kind})
		assert.NotEmpty(t, f.Message)
	}

	assert.Equal(t, []summary{
		{"broken.js", "", false, modules.KindEvaluation},
		{"main.js", "../../outside.js", true, modules.KindEscape},
		{"main.js", "../escape.js", false, modules.KindEscape},
		{"main.js", "./missing.txt", false, modules.KindRead},
		{"main.js", "https://example.com/mod.ts", false, modules.KindRemote},
		{"main.js", "lodash", false, modules.KindMalformed},
	}, got)
	assert.Len(t, report.Security(), 3)
}

func TestAuditSymlinkedModule(t *testing.T) {
	l, root := setup(t, map[string]string{"main.js": ``})
	outside := filepath.Join(filepath.Dir(root), "secret.js")
	require.NoError(t, os.WriteFile(outside, []byte(`export const s = 1;`), 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "leak.js")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	report, err := Run(context.Background(), l)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "leak.js", report.Findings[0].File)
	assert.Equal(t, modules.KindEscape, report.Findings[0].Kind)
}

func TestAuditCancelled(t *testing.T) {
	l, _ := setup(t, map[string]string{"main.js": ``})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, l)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditLoaderDoesNotLoad(t *testing.T) {
	l, _ := setup(t, map[string]string{"main.js": ``})

	_, err := l.LoadEntry(context.Background(), "main.js")
	assert.ErrorIs(t, err, modules.ErrEvaluation)
	assert.Equal(t, 0, l.Cache().Len())
}
