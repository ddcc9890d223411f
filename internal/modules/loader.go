package modules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/monitoring"
)

// Engine compiles and evaluates module bodies. It owns Record.Module.
type Engine interface {
	// Compile prepares rec.Source and returns its static import specifiers
	// in source order. No module code runs.
	Compile(rec *Record) ([]string, error)

	// Evaluate runs the module body. deps holds the records of rec.Imports
	// in the same order; a dep may still be evaluating when the graph has a
	// cycle.
	Evaluate(ctx context.Context, rec *Record, deps []*Record) error
}

// Options configures a Loader.
type Options struct {
	Root            string     // absolute module root directory
	Links           LinkPolicy // defaults to LinksContain
	CaseInsensitive bool
	Include         []string // doublestar patterns, defaults to DefaultInclude
}

// Option customises a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMetrics makes the loader report to m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithReader replaces the reader used for module files.
func WithReader(r Reader) Option {
	return func(l *Loader) {
		l.reader = r
	}
}

// Loader resolves and loads modules for one runtime instance. Every loader
// owns its own cache.
type Loader struct {
	guard   *Guard
	cache   *Cache
	engine  Engine
	reader  Reader
	include []string
	logger  *zap.Logger
	metrics *monitoring.Metrics

	closeReader func() error
}

// New creates a loader rooted at opts.Root.
func New(opts Options, engine Engine, options ...Option) (*Loader, error) {
	if engine == nil {
		return nil, errors.New("module loader requires an engine")
	}

	guard, err := NewGuard(opts.Root, GuardOptions{
		Links:           opts.Links,
		CaseInsensitive: opts.CaseInsensitive,
	})
	if err != nil {
		return nil, err
	}

	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	if err := validatePatterns(include); err != nil {
		return nil, err
	}

	l := &Loader{
		guard:   guard,
		engine:  engine,
		include: include,
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(l)
	}
	l.cache = NewObservedCache(l.metrics.CacheEvent)

	if l.reader == nil {
		if guard.Policy() == LinksContain {
			rr, err := OpenRootReader(guard.Root())
			if err != nil {
				return nil, fmt.Errorf("failed to open module root: %w", err)
			}
			l.reader = rr
			l.closeReader = rr.Close
		} else {
			l.reader = OSReader{}
		}
	}

	return l, nil
}

// Root returns the canonical module root.
func (l *Loader) Root() string {
	return l.guard.Root()
}

// Cache returns the loader's module cache.
func (l *Loader) Cache() *Cache {
	return l.cache
}

// Include returns the include patterns in effect.
func (l *Loader) Include() []string {
	return l.include
}

// Close releases the loader's root handle.
func (l *Loader) Close() error {
	if l.closeReader != nil {
		return l.closeReader()
	}
	return nil
}

// Resolve runs the resolution pipeline for specifier without reading or
// evaluating anything: classify, resolve against importer, check
// containment, check the include patterns. It returns the canonical path.
func (l *Loader) Resolve(specifier, importer string) (string, error) {
	spec := Classify(specifier)
	switch spec.Kind {
	case AbsoluteScheme:
		return "", &LoadError{Kind: KindRemote, Specifier: specifier, Importer: importer}
	case Malformed:
		return "", &LoadError{Kind: KindMalformed, Specifier: specifier, Importer: importer}
	}

	path, err := l.Check(ResolvePath(spec, importer))
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Specifier, le.Importer = specifier, importer
		}
		return "", err
	}
	return path, nil
}

// Check runs the containment and include checks on an absolute, normalised
// path and returns its canonical form.
func (l *Loader) Check(candidate string) (string, error) {
	path, err := l.guard.Check(candidate)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(l.guard.Root(), path)
	if err != nil {
		return "", &LoadError{Kind: KindRead, Path: path, Err: err}
	}
	ok, err := matchInclude(l.include, rel)
	if err != nil {
		return "", &LoadError{Kind: KindRead, Path: path, Err: err}
	}
	if !ok {
		return "", &LoadError{
			Kind: KindRead,
			Path: path,
			Err:  fmt.Errorf("%w: %s does not match the include patterns", ErrUnsupportedModule, rel),
		}
	}
	return path, nil
}

// LoadEntry loads the trusted entry module. entry is absolute or relative
// to the module root. The entry itself is not subject to scheme, escape or
// include checks; every import it triggers is.
func (l *Loader) LoadEntry(ctx context.Context, entry string) (*Record, error) {
	path := entry
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.guard.Root(), path)
	}
	path = filepath.Clean(path)
	if l.guard.Policy() == LinksContain {
		if real, err := filepath.EvalSymlinks(path); err == nil {
			path = real
		}
	}

	l.logger.Debug("Loading entry module", zap.String("path", path), zap.String("root", l.guard.Root()))

	rec, err := l.cache.GetOrLoad(ctx, path, l.load)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadImport loads the module named by specifier, imported from the module
// at importer. It serves static and dynamic imports alike.
func (l *Loader) LoadImport(ctx context.Context, specifier, importer string) (*Record, error) {
	path, err := l.Resolve(specifier, importer)
	if err != nil {
		l.reject(err)
		return nil, err
	}

	rec, err := l.cache.GetOrLoad(ctx, path, l.load)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Loader) reject(err error) {
	kind := KindOf(err)
	l.metrics.RecordRejection(kind.String())

	var le *LoadError
	errors.As(err, &le)
	fields := []zap.Field{
		zap.String("kind", kind.String()),
		zap.String("specifier", le.Specifier),
		zap.String("importer", le.Importer),
		zap.Error(err),
	}
	if IsSecurityError(err) {
		l.logger.Warn("Rejected module import", fields...)
		return
	}
	l.logger.Debug("Rejected module import", fields...)
}

// load is the cache's LoadFunc: read, compile, mark evaluating, load static
// imports depth first, evaluate.
func (l *Loader) load(ctx context.Context, rec *Record) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		l.metrics.RecordLoad(outcome, time.Since(start))
		l.logger.Debug("Loaded module",
			zap.String("path", rec.Path),
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)))
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := l.read(rec.Path)
	if err != nil {
		return err
	}
	rec.Source = src

	imports, err := l.engine.Compile(rec)
	if err != nil {
		return &LoadError{Kind: KindEvaluation, Path: rec.Path, Err: err}
	}
	rec.Imports = imports

	rec.setStatus(StatusEvaluating)

	deps := make([]*Record, 0, len(imports))
	for _, specifier := range imports {
		dep, err := l.LoadImport(ctx, specifier, rec.Path)
		if err != nil {
			return err
		}
		deps = append(deps, dep)
	}

	if err := l.engine.Evaluate(ctx, rec, deps); err != nil {
		if KindOf(err) != 0 {
			return err
		}
		return &LoadError{Kind: KindEvaluation, Path: rec.Path, Err: err}
	}
	return nil
}

func (l *Loader) read(path string) ([]byte, error) {
	reader := l.reader
	if !l.guard.Contains(path) {
		// only the trusted entry can live outside the root
		reader = OSReader{}
	}

	src, err := reader.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: KindRead, Path: path, Err: err}
	}
	if err := checkText(src); err != nil {
		return nil, &LoadError{Kind: KindRead, Path: path, Err: err}
	}
	return src, nil
}
