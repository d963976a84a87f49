package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ptacemic/ai-dial-general-purpose-agent/config"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/app"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "dialagent",
		Short:        "General purpose DIAL agent",
		Long:         "dialagent runs a tool-augmented chat agent against DIAL deployments.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default: "+config.Path()+")")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(chatCmd(flags), toolsCmd(flags), configCmd(flags), versionCmd())
	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func (f *rootFlags) build(ctx context.Context) (*app.App, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, func(o *app.Options) { o.Version = version })
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ── tools command ──

func toolsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, t := range a.Registry.Tools() {
				fmt.Fprintf(out, "%-26s %s\n", t.Name(), firstLine(t.Description()))
			}
			for _, w := range a.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}
}

// ── config command ──

func configCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective config (API keys redacted)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := flags.load()
				if err != nil {
					return err
				}
				return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg.Redact())
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print config file path",
			Run: func(cmd *cobra.Command, _ []string) {
				path := flags.configPath
				if path == "" {
					path = config.Path()
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the effective config",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := flags.load()
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "config OK")
				return nil
			},
		},
	)
	return cmd
}

// ── version command ──

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dialagent %s (commit: %s)\n", version, commit)
		},
	}
}
