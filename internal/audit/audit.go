package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/esm"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
)

// Finding is one import that would fail at run time.
type Finding struct {
	File      string // root-relative module path
	Specifier string // empty when the module itself is rejected
	Dynamic   bool
	Kind      modules.ErrorKind
	Message   string
}

// Report summarises an audit of one module root.
type Report struct {
	Root     string
	Files    int
	Imports  int
	Findings []Finding
}

// OK reports whether the audit found nothing.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Security returns the findings that are escapes or remote imports.
func (r *Report) Security() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Kind == modules.KindEscape || f.Kind == modules.KindRemote {
			out = append(out, f)
		}
	}
	return out
}

// Run walks the loader's module root and resolves every import it finds
// without evaluating anything.
func Run(ctx context.Context, l *modules.Loader) (*Report, error) {
	root := l.Root()
	report := &Report{Root: root}
	var mu sync.Mutex

	add := func(files, imports int, findings ...Finding) {
		mu.Lock()
		report.Files += files
		report.Imports += imports
		report.Findings = append(report.Findings, findings...)
		mu.Unlock()
	}

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if !included(l.Include(), rel) {
			return nil
		}

		imports, findings := check(l, p, rel)
		add(1, imports, findings...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Specifier < b.Specifier
	})
	return report, nil
}

// check audits one module file.
func check(l *modules.Loader, path, rel string) (int, []Finding) {
	canonical, err := l.Check(path)
	if err != nil {
		return 0, []Finding{finding(rel, "", false, err)}
	}
	if strings.EqualFold(filepath.Ext(canonical), ".json") {
		return 0, nil
	}

	src, err := os.ReadFile(canonical)
	if err != nil {
		return 0, []Finding{finding(rel, "", false, &modules.LoadError{Kind: modules.KindRead, Path: canonical, Err: err})}
	}
	mod, err := esm.Lower(string(src))
	if err != nil {
		return 0, []Finding{finding(rel, "", false, &modules.LoadError{Kind: modules.KindEvaluation, Path: canonical, Err: err})}
	}

	var findings []Finding
	imports := 0
	resolve := func(specifier string, dynamic bool) {
		imports++
		if _, err := l.Resolve(specifier, canonical); err != nil {
			findings = append(findings, finding(rel, specifier, dynamic, err))
		}
	}
	for _, specifier := range mod.Imports {
		resolve(specifier, false)
	}
	for _, specifier := range mod.Dynamic {
		resolve(specifier, true)
	}
	return imports, findings
}

func finding(rel, specifier string, dynamic bool, err error) Finding {
	return Finding{
		File:      filepath.ToSlash(rel),
		Specifier: specifier,
		Dynamic:   dynamic,
		Kind:      modules.KindOf(err),
		Message:   err.Error(),
	}
}

func included(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// resolveOnly satisfies modules.Engine for loaders that never load.
type resolveOnly struct{}

func (resolveOnly) Compile(rec *modules.Record) ([]string, error) {
	return nil, fmt.Errorf("audit loader cannot compile %s", rec.Path)
}

func (resolveOnly) Evaluate(_ context.Context, rec *modules.Record, _ []*modules.Record) error {
	return fmt.Errorf("audit loader cannot evaluate %s", rec.Path)
}

// NewLoader creates a loader for auditing only. Its Resolve and Check work
// as usual; loading through it fails.
func NewLoader(opts modules.Options, options ...modules.Option) (*modules.Loader, error) {
	return modules.New(opts, resolveOnly{}, options...)
}
