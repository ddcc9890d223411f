package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/monitoring"
)

// Option customises a Runtime
type Option func(*Runtime)

// WithLogger sets the runtime logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		r.baseLogger = logger
	}
}

// WithMetrics makes the runtime and its loader report to m
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// task is queued work that runs on the runtime's goroutine
type task func(ctx context.Context)

// Runtime wraps goja VM with a module loader and security controls
type Runtime struct {
	id     string
	config Config
	mu     sync.Mutex

	vm      *goja.Runtime
	loader  *modules.Loader
	helpers *goja.Object

	baseLogger *zap.Logger
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex

	// Pending dynamic imports
	tasks []task
}

// New creates a new sandboxed runtime rooted at config.Root
func New(config Config, opts ...Option) (*Runtime, error) {
	if config.Root == "" {
		return nil, errors.New("sandbox requires a module root")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid module root: %w", err)
	}
	config.Root = root

	r := &Runtime{
		id:         uuid.NewString(),
		config:     config,
		baseLogger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.baseLogger.With(zap.String("runtime", r.id))

	if err := r.setup(); err != nil {
		return nil, err
	}
	r.metrics.RuntimeOpened()

	r.logger.Debug("Created sandbox runtime", zap.String("root", r.loader.Root()))
	return r, nil
}

// setup creates a fresh VM and module loader
func (r *Runtime) setup() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.vm = vm

	if err := r.setupGlobals(); err != nil {
		return err
	}

	helpers, err := vm.RunString(helpersSource)
	if err != nil {
		return fmt.Errorf("failed to install module helpers: %w", err)
	}
	r.helpers = helpers.ToObject(vm)

	loader, err := modules.New(modules.Options{
		Root:            r.config.Root,
		Links:           r.config.Links,
		CaseInsensitive: r.config.CaseInsensitive,
		Include:         r.config.Include,
	}, &moduleEngine{r: r},
		modules.WithLogger(r.logger),
		modules.WithMetrics(r.metrics),
	)
	if err != nil {
		return err
	}
	r.loader = loader
	r.tasks = nil
	return nil
}

// ID returns the runtime's unique id
func (r *Runtime) ID() string {
	return r.id
}

// Root returns the canonical module root
func (r *Runtime) Root() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loader == nil {
		return ""
	}
	return r.loader.Root()
}

// Run loads the entry module with its static imports, then drives pending
// dynamic imports until none are left. entry is absolute or relative to the
// module root.
func (r *Runtime) Run(ctx context.Context, entry string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}

	start := time.Now()
	result := &Result{}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	// Setup interrupt handler
	r.vm.ClearInterrupt()
	r.tasks = nil
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.vm.Interrupt("execution timeout exceeded")
			} else {
				r.vm.Interrupt("context cancelled")
			}
		case <-stop:
		}
	}()

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	rec, err := r.loader.LoadEntry(ctx, entry)
	if err == nil {
		err = r.drain(ctx)
	}
	if err == nil {
		result.Exports = r.exports(rec)
	}

	close(stop)
	<-done

	result.Duration = time.Since(start)
	result.Modules = r.modules()
	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	r.consoleMu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
		result.Error = err
		r.logger.Info("Sandbox run failed", zap.String("entry", entry), zap.Error(err))
	}
	r.metrics.RecordRun(status, result.Duration)

	return result, err
}

// drain runs queued tasks in order until the queue is empty
func (r *Runtime) drain(ctx context.Context) error {
	for len(r.tasks) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := r.tasks[0]
		r.tasks[0] = nil
		r.tasks = r.tasks[1:]
		t(ctx)
	}
	return nil
}

// dynamicImport creates the import() function for the module at importer.
// The returned promise settles once the queued load has run.
func (r *Runtime) dynamicImport(importer string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		promise, resolve, reject := r.vm.NewPromise()

		r.tasks = append(r.tasks, func(ctx context.Context) {
			rec, err := r.loader.LoadImport(modules.Detached(ctx), specifier, importer)
			if err != nil {
				reject(r.errorValue(err))
				return
			}
			resolve(namespace(rec))
		})

		return r.vm.ToValue(promise)
	}
}

// importMeta builds import.meta for the module at path
func (r *Runtime) importMeta(path string) *goja.Object {
	meta := r.vm.NewObject()
	meta.Set("url", "file://"+filepath.ToSlash(path))
	return meta
}

// errorValue converts a load failure into the value a rejected import()
// carries. Exceptions thrown by module code are passed through unchanged.
func (r *Runtime) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	return r.vm.NewGoError(err)
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())

	// Setup console if enabled
	if r.config.EnableConsole {
		console := r.vm.NewObject()
		console.Set("log", r.makeConsoleFunc("log"))
		console.Set("warn", r.makeConsoleFunc("warn"))
		console.Set("error", r.makeConsoleFunc("error"))
		console.Set("info", r.makeConsoleFunc("info"))
		r.vm.Set("console", console)
	}

	// Setup timers (no-op for security)
	r.vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	r.vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		r.logger.Debug("console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

// exports reads the entry module's namespace. Bindings that throw when read
// come back as nil.
func (r *Runtime) exports(rec *modules.Record) map[string]interface{} {
	out := map[string]interface{}{}
	ns := namespace(rec)
	if ns == nil {
		return out
	}
	for _, key := range ns.Keys() {
		var val goja.Value
		if ex := r.vm.Try(func() { val = ns.Get(key) }); ex != nil {
			out[key] = nil
			continue
		}
		out[key] = r.exportValue(val)
	}
	return out
}

// modules lists the loader's cached records
func (r *Runtime) modules() []ModuleInfo {
	cache := r.loader.Cache()
	paths := cache.Paths()
	infos := make([]ModuleInfo, 0, len(paths))
	for _, p := range paths {
		if rec, ok := cache.Get(p); ok {
			infos = append(infos, ModuleInfo{Path: p, Status: rec.Status(), Error: rec.Err()})
		}
	}
	return infos
}

// Modules returns the runtime's cached modules
func (r *Runtime) Modules() []ModuleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loader == nil {
		return nil
	}
	return r.modules()
}

// exportValue converts goja value to Go value
func (r *Runtime) exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Reset discards the VM and the module cache
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loader != nil {
		r.loader.Close()
	}
	r.console = []LogEntry{}
	return r.setup()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil
	}

	var err error
	if r.loader != nil {
		err = r.loader.Close()
	}
	r.vm = nil
	r.loader = nil
	r.helpers = nil
	r.tasks = nil
	r.console = nil
	r.metrics.RuntimeClosed()
	return err
}
