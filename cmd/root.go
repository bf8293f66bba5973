// Package cmd is the user-service command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Skryldev/user-service/config"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// NewRootCommand assembles the CLI. Subcommands read the configuration that
// the root's pre-run loads from --config.
func NewRootCommand() *cobra.Command {
	var (
		configPath string
		app        = &appState{}
	)

	root := &cobra.Command{
		Use:           "user-service",
		Short:         "User management REST service",
		Long:          "Serves the user CRUD API and HTML views, and manages the SQL schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			app.cfg = cfg
			app.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(app.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	root.AddCommand(
		newServeCommand(app),
		newMigrateCommand(app),
		newVersionCommand(),
	)
	return root
}

// appState is filled in by the root pre-run.
type appState struct {
	cfg    config.Config
	logger *slog.Logger
}

// Execute runs the root command. It should be invoked from main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
