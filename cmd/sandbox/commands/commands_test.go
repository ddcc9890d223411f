package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsExports(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js": `import { greet } from "./lib/greet.js";
export const message = greet("sandbox");
export function helper() {}
console.log("ran");
`,
		"lib/greet.js": `export const greet = (name) => "hello " + name;`,
	})

	stdout, stderr, err := execute(t, "run", "--root", root, "main.js")
	require.NoError(t, err)

	var exports map[string]interface{}
	require.NoError(t, sonic.UnmarshalString(stdout, &exports))
	assert.Equal(t, "hello sandbox", exports["message"])
	assert.Equal(t, "[function]", exports["helper"])
	assert.Contains(t, stderr, "[log] ran")
}

func TestRunReportsEscape(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js": `import "../outside.js";`,
	})

	_, _, err := execute(t, "run", "--root", root, "main.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, modules.ErrEscape)
}

func TestRunTimeoutFlag(t *testing.T) {
	root := writeTree(t, map[string]string{"main.js": `for (;;) {}`})

	_, _, err := execute(t, "run", "--root", root, "--timeout", "50ms", "main.js")
	assert.Error(t, err)

	_, _, err = execute(t, "run", "--root", root, "--timeout", "soon", "main.js")
	assert.ErrorContains(t, err, "invalid --timeout")
}

func TestCheckCleanTree(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js": `import "./a.js";`,
		"a.js":    ``,
	})

	stdout, _, err := execute(t, "check", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 modules, 1 imports, no problems found")
}

func TestCheckReportsFindings(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js": `import "https://example.com/mod.ts";
import "./ok.js";
`,
		"ok.js": ``,
	})

	stdout, _, err := execute(t, "check", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 imports rejected (1 security)")
	assert.Contains(t, stdout, "https://example.com/mod.ts")
	assert.Contains(t, stdout, "remote")
}

func TestMetricsFlag(t *testing.T) {
	root := writeTree(t, map[string]string{"main.js": `export const x = 1;`})

	_, stderr, err := execute(t, "run", "--root", root, "--metrics", "main.js")
	require.NoError(t, err)
	assert.Contains(t, stderr, "sandbox_runs_total")
}

func TestInvalidLinkPolicy(t *testing.T) {
	root := writeTree(t, map[string]string{"main.js": ``})

	_, _, err := execute(t, "run", "--root", root, "--links", "sometimes", "main.js")
	assert.ErrorContains(t, err, "invalid config")
}
