package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uxnareal/audit-api/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		path string
		cfg  *config.Config
	)

	root := &cobra.Command{
		Use:           "api",
		Short:         "UX na Real analysis API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// path config.yaml
			if path == "" {
				path = os.Getenv("CONFIG_PATH")
			}
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.InitLogger(loaded.Log); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVarP(&path, "config", "c", "", "config file (default ./config.yaml, or $CONFIG_PATH)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	root.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the analysis tables",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration with secrets masked",
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := cfg.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		},
	)
	// serve is the default
	root.RunE = serveCmd.RunE
	return root
}
