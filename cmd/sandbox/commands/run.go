package commands

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/monitoring"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/sandbox"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		timeout     string
		showModules bool
	)

	cmd := &cobra.Command{
		Use:   "run <entry>",
		Short: "Run an entry module and print its exports",
		Long: `Run loads the entry module and everything it imports, waits for pending
dynamic imports, and prints the entry module's exports as JSON.

The entry path is absolute or relative to the module root.`,
		Example: `  # Run main.js from the current directory
  sandbox run main.js

  # Run with a different root and a short timeout
  sandbox run --root ./scripts --timeout 500ms app.mjs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if timeout != "" {
				if err := cfg.Sandbox.Timeout.UnmarshalText([]byte(timeout)); err != nil {
					return fmt.Errorf("invalid --timeout: %w", err)
				}
			}

			logger := newLogger(cfg)
			defer logger.Sync()
			metrics := monitoring.NewMetrics(nil)

			rt, err := sandbox.New(runtimeConfig(cfg), sandbox.WithLogger(logger), sandbox.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer rt.Close()

			logger.Info("Running entry module",
				zap.String("entry", args[0]),
				zap.String("root", rt.Root()),
				zap.String("runtime", rt.ID()))

			result, runErr := rt.Run(cmd.Context(), args[0])
			if result != nil {
				for _, entry := range result.Console {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", entry.Level, entry.Message)
				}
				if showModules {
					for _, m := range result.Modules {
						fmt.Fprintf(cmd.ErrOrStderr(), "%-10s %s\n", m.Status, m.Path)
					}
				}
			}
			if flags.showMetrics {
				if err := dumpMetrics(cmd.ErrOrStderr(), metrics); err != nil {
					logger.Warn("Failed to dump metrics", zap.Error(err))
				}
			}
			if runErr != nil {
				return runErr
			}

			out, err := sonic.ConfigStd.MarshalIndent(printable(result.Exports), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode exports: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&timeout, "timeout", "", "execution timeout, e.g. 2s (overrides config)")
	cmd.Flags().BoolVar(&showModules, "modules", false, "list loaded modules on stderr")

	return cmd
}

// printable replaces values JSON cannot carry, such as exported functions.
func printable(exports map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(exports))
	for k, v := range exports {
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			out[k] = "[function]"
			continue
		}
		out[k] = v
	}
	return out
}
