package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
)

var ErrClosed = errors.New("sandbox runtime is closed")

// Config defines sandbox configuration
type Config struct {
	Root            string             // Module root directory (absolute)
	Timeout         time.Duration      // Execution timeout, zero for none
	MaxCallStack    int                // Maximum JS call stack depth
	EnableConsole   bool               // Allow console.log/warn/error
	Links           modules.LinkPolicy // Symbolic link policy inside the root
	CaseInsensitive bool               // Root lives on a case-insensitive filesystem
	Include         []string           // Module file patterns, relative to Root
}

// Result holds execution result
type Result struct {
	Exports  map[string]interface{} // Entry module exports
	Console  []LogEntry             // Console output
	Modules  []ModuleInfo           // Module cache after the run
	Duration time.Duration          // Execution time
	Error    error                  // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// ModuleInfo describes one cached module
type ModuleInfo struct {
	Path   string
	Status modules.Status
	Error  error
}

// Sandbox defines the module execution interface
type Sandbox interface {
	Run(ctx context.Context, entry string) (*Result, error)
	Reset() error
	Close() error
}

// Default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
		Links:         modules.LinksContain,
		Include:       modules.DefaultInclude,
	}
}
