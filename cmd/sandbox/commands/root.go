package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/sandbox/internal/config"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/logging"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/modules"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/monitoring"
	"github.com/GriffinCanCode/AgentOS/sandbox/internal/sandbox"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	root        string
	links       string
	include     []string
	verbose     bool
	showMetrics bool
}

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run JavaScript modules confined to one directory",
		Long: `Sandbox runs JavaScript modules from a single module root.

Imports must be relative ("./" or "../") and must stay inside the root.
Remote URLs and paths that escape the root are rejected before any file is
read.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path (TOML or YAML)")
	rootCmd.PersistentFlags().StringVarP(&flags.root, "root", "r", "", "module root directory")
	rootCmd.PersistentFlags().StringVar(&flags.links, "links", "", "symbolic link policy: contain or follow")
	rootCmd.PersistentFlags().StringSliceVar(&flags.include, "include", nil, "module file patterns relative to the root")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.showMetrics, "metrics", false, "print metrics to stderr on exit")

	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newCheckCommand(flags))

	return rootCmd
}

// load layers command line flags over the file and environment config.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.root != "" {
		cfg.Sandbox.Root = f.root
	}
	if f.links != "" {
		cfg.Sandbox.Links = f.links
	}
	if len(f.include) > 0 {
		cfg.Sandbox.Include = f.include
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Sandbox.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid module root: %w", err)
	}
	cfg.Sandbox.Root = root
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.Development = cfg.Logging.Development
	return logging.NewOrNop(lc)
}

func runtimeConfig(cfg *config.Config) sandbox.Config {
	sc := sandbox.DefaultConfig()
	sc.Root = cfg.Sandbox.Root
	sc.Timeout = cfg.Sandbox.Timeout.Std()
	sc.MaxCallStack = cfg.Sandbox.MaxCallStack
	sc.EnableConsole = cfg.Sandbox.Console
	sc.Links = modules.LinkPolicy(cfg.Sandbox.Links)
	sc.CaseInsensitive = cfg.Sandbox.CaseInsensitive
	sc.Include = cfg.Sandbox.Include
	return sc
}

func loaderOptions(cfg *config.Config) modules.Options {
	return modules.Options{
		Root:            cfg.Sandbox.Root,
		Links:           modules.LinkPolicy(cfg.Sandbox.Links),
		CaseInsensitive: cfg.Sandbox.CaseInsensitive,
		Include:         cfg.Sandbox.Include,
	}
}

// dumpMetrics writes the registry in the Prometheus text format.
func dumpMetrics(w io.Writer, m *monitoring.Metrics) error {
	families, err := m.Gatherer().Gather()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# sandbox metrics at %s\n", time.Now().Format(time.RFC3339))
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
