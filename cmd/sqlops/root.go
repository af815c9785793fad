package main

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/sqlops/config"
	"github.com/jonwraymond/sqlops/warehouse"
	"github.com/jonwraymond/sqlops/workflow"
)

// Version is set at build time.
var Version = "dev"

// deps are the seams tests replace.
type deps struct {
	dialer    func(warehouse.Config) (warehouse.Dialer, error)
	generator func(config.GeneratorConfig) (workflow.Generator, error)
}

func defaultDeps() deps {
	return deps{
		dialer: warehouse.NewDialer,
		generator: func(cfg config.GeneratorConfig) (workflow.Generator, error) {
			return workflow.NewCommandGenerator(cfg.Command...)
		},
	}
}

type cli struct {
	deps    deps
	cfgFile string
	cfg     *config.Loaded
}

func newRootCmd(d deps) *cobra.Command {
	c := &cli{deps: d}

	root := &cobra.Command{
		Use:   "sqlops",
		Short: "Resilient warehouse access and cached text-to-SQL",
		Long: `sqlops keeps a pooled, retrying connection to a Redshift, Postgres or
DuckDB warehouse and caches generated SQL answers by question.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete":
				return nil
			}
			if cmd.Annotations["config"] == "skip" {
				return nil
			}
			cfg, err := config.Load(cmd.Context(), config.Options{
				Path:  c.cfgFile,
				Flags: cmd.Flags(),
			})
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default: ./sqlops.yaml)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "json", "log format (json|console)")
	pf.String("cache-backend", "memory", "result cache backend (memory|redis|bolt)")
	pf.Bool("no-cache", false, "disable the result cache")

	_ = root.RegisterFlagCompletionFunc("log-level", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("cache-backend", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"memory", "redis", "bolt"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		c.newAskCmd(),
		c.newHealthCmd(),
		c.newServeCmd(),
		newKeyCmd(),
	)
	return root
}
