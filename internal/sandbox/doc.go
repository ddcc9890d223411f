/*
Package sandbox runs JavaScript modules from a single module root inside an
isolated goja runtime.

# Overview

A Runtime owns one VM and one module loader. Running an entry module loads it
together with its static imports, evaluates the graph depth first, then
drives every dynamic import() the modules issued until none are pending.

Imported modules are restricted to relative specifiers that resolve inside
the module root. Remote URLs and paths that escape the root are rejected
before any file is read:

	Sandbox supports importing from relative paths only
	Cannot import files outside of module root directory

# Module Cache

Every module is evaluated at most once per runtime. Importing it again, from
any module or through import(), yields the same namespace. Reset discards the
VM and the cache; the Pool resets a runtime whenever it is released.

# Usage Example

	config := sandbox.DefaultConfig()
	config.Root = "/srv/scripts"

	rt, err := sandbox.New(config, sandbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Run(ctx, "main.js")
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
	}
*/
package sandbox
