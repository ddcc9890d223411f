package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/audit"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/monitoring"
)

func newCheckCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Resolve every import in a module tree without running it",
		Long: `Check walks the module root and resolves every static import, and every
dynamic import with a literal specifier, through the same rules the runtime
applies. It reports:
  - imports that escape the module root
  - remote (URL) imports
  - bare or otherwise malformed specifiers
  - imports of files outside the include patterns
  - modules that cannot be parsed`,
		Example: `  # Check the current directory
  sandbox check

  # Check a specific tree, treating symlinks as plain files
  sandbox check --links follow ./scripts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.root = args[0]
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			defer logger.Sync()
			metrics := monitoring.NewMetrics(nil)

			loader, err := audit.NewLoader(loaderOptions(cfg), modules.WithLogger(logger), modules.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer loader.Close()

			report, err := audit.Run(cmd.Context(), loader)
			if err != nil {
				return err
			}
			logger.Debug("Audit finished",
				zap.String("root", report.Root),
				zap.Int("files", report.Files),
				zap.Int("imports", report.Imports),
				zap.Int("findings", len(report.Findings)))

			if flags.showMetrics {
				if err := dumpMetrics(cmd.ErrOrStderr(), metrics); err != nil {
					logger.Warn("Failed to dump metrics", zap.Error(err))
				}
			}

			out := cmd.OutOrStdout()
			if report.OK() {
				fmt.Fprintf(out, "%d modules, %d imports, no problems found\n", report.Files, report.Imports)
				return nil
			}

			fmt.Fprintln(out, findingsTable(report.Findings))

			return fmt.Errorf("%d of %d imports rejected (%d security)",
				len(report.Findings), report.Imports, len(report.Security()))
		},
	}

	return cmd
}

func findingsTable(findings []audit.Finding) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FILE", "IMPORT", "KIND", "MESSAGE")
	for _, f := range findings {
		specifier := f.Specifier
		if f.Dynamic {
			specifier += " (dynamic)"
		}
		t.Row(f.File, specifier, f.Kind.String(), f.Message)
	}
	return t.String()
}
