package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/esm"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
)

// helpersSource backs the lowered module prologue.
const helpersSource = `(function () {
	"use strict";
	return {
		bind: function (ns, name, get) {
			Object.defineProperty(ns, name, { enumerable: true, get: get });
		},
		star: function (ns, dep) {
			Object.keys(dep).forEach(function (name) {
				if (name === "default" || Object.prototype.hasOwnProperty.call(ns, name)) {
					return;
				}
				Object.defineProperty(ns, name, {
					enumerable: true,
					get: function () { return dep[name]; }
				});
			});
		},
		check: function (dep, name, partial, specifier) {
			if (!partial && !(name in dep)) {
				throw new SyntaxError("The requested module '" + specifier +
					"' does not provide an export named '" + name + "'");
			}
		}
	};
})()`

// jsModule is the engine-owned form of a module record.
type jsModule struct {
	ns   *goja.Object
	fn   goja.Callable // nil for JSON modules
	data interface{}   // parsed JSON module content
	mod  *esm.Module
}

// moduleEngine evaluates module records on the runtime's VM. It is only
// called from the goroutine that drives the runtime.
type moduleEngine struct {
	r *Runtime
}

// Compile implements modules.Engine.
func (e *moduleEngine) Compile(rec *modules.Record) ([]string, error) {
	vm := e.r.vm
	ns := vm.NewObject()
	if err := ns.SetPrototype(nil); err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(rec.Path), ".json") {
		var data interface{}
		if err := sonic.Unmarshal(rec.Source, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON module: %w", err)
		}
		rec.Module = &jsModule{ns: ns, data: data}
		return nil, nil
	}

	mod, err := esm.Lower(string(rec.Source))
	if err != nil {
		return nil, err
	}
	prg, err := goja.Compile(rec.Path, mod.Body, true)
	if err != nil {
		return nil, err
	}
	val, err := vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("lowered module %s is not callable", rec.Path)
	}

	rec.Module = &jsModule{ns: ns, fn: fn, mod: mod}
	return mod.Imports, nil
}

// Evaluate implements modules.Engine.
func (e *moduleEngine) Evaluate(_ context.Context, rec *modules.Record, deps []*modules.Record) error {
	vm := e.r.vm
	m, ok := rec.Module.(*jsModule)
	if !ok {
		return fmt.Errorf("module %s was not compiled by this runtime", rec.Path)
	}

	if m.fn == nil {
		return m.ns.Set("default", vm.ToValue(m.data))
	}

	depNS := make([]interface{}, len(deps))
	partial := make([]interface{}, len(deps))
	for i, dep := range deps {
		dm, ok := dep.Module.(*jsModule)
		if !ok {
			return fmt.Errorf("dependency %s was not compiled by this runtime", dep.Path)
		}
		depNS[i] = dm.ns
		partial[i] = dep.Status() != modules.StatusEvaluated
	}

	_, err := m.fn(goja.Undefined(),
		m.ns,
		vm.NewArray(depNS...),
		vm.NewArray(partial...),
		e.r.helpers,
		vm.ToValue(e.r.dynamicImport(rec.Path)),
		e.r.importMeta(rec.Path),
	)
	return err
}

// namespace returns the module namespace object of rec.
func namespace(rec *modules.Record) *goja.Object {
	if m, ok := rec.Module.(*jsModule); ok {
		return m.ns
	}
	return nil
}
