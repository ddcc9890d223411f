/*
Sandbox runs JavaScript modules from a single module root.

Usage:

	sandbox run [flags] <entry>
	sandbox check [flags] [root]

run loads the entry module, evaluates its import graph and prints its exports
as JSON. check resolves every import in the tree without running anything and
exits non-zero if any import would be rejected.

Configuration comes from --config (TOML or YAML), then SANDBOX_* environment
variables, then flags.
*/
package main
