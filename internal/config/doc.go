// Package config provides 12-factor configuration for the sandbox.
//
// Values are layered: built-in defaults, then an optional TOML or YAML file,
// then environment variables. The result is validated before use.
//
// Example Usage:
//
//	cfg, err := config.Load("sandbox.toml")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Module root: %s\n", cfg.Sandbox.Root)
//
// Environment Variables:
//   - SANDBOX_MODULE_ROOT, SANDBOX_TIMEOUT, SANDBOX_MAX_CALL_STACK
//   - SANDBOX_LINK_POLICY (contain or follow), SANDBOX_CASE_INSENSITIVE
//   - SANDBOX_INCLUDE (comma separated patterns), SANDBOX_CONSOLE
//   - LOG_LEVEL, LOG_DEV
package config
