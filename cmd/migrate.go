package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/Skryldev/user-service/config"
	"github.com/Skryldev/user-service/migrations"
)

func newMigrateCommand(app *appState) *cobra.Command {
	var (
		backend string
		dsn     string
	)

	// open resolves the target database from config and flags.
	open := func(cmd *cobra.Command) (*migrate.Migrate, error) {
		s := app.cfg.Storage
		if cmd.Flags().Changed("backend") {
			s.Backend = backend
		}
		if cmd.Flags().Changed("dsn") {
			s.DSN = dsn
		}
		if !s.IsSQL() {
			return nil, fmt.Errorf("migrate: backend %q has no SQL schema", s.Backend)
		}
		resolved, err := resolveDSN(s)
		if err != nil {
			return nil, err
		}
		url, err := migrationURL(s.Backend, resolved)
		if err != nil {
			return nil, err
		}
		return migrations.New(url, app.logger)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema",
	}
	cmd.PersistentFlags().StringVar(&backend, "backend", config.BackendSQLite, "SQL backend: sqlite3, postgres or mysql (overrides storage.backend)")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database DSN (overrides storage.dsn)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("up failed: %w", err)
			}
			app.logger.Info("migrations: up completed")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down [N]",
		Short: "Roll back N migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("down: invalid steps argument %q", args[0])
				}
				steps = n
			}
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("down failed: %w", err)
			}
			app.logger.Info("migrations: down completed", "steps", steps)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			v, dirty, err := m.Version()
			if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
				return fmt.Errorf("version failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version: %d  dirty: %v\n", v, dirty)
			return err
		},
	}

	force := &cobra.Command{
		Use:   "force V",
		Short: "Set the schema version without running migrations (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("force: invalid version %q", args[0])
			}
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force failed: %w", err)
			}
			app.logger.Info("migrations: forced", "version", v)
			return nil
		},
	}

	var yes bool
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: drop will destroy all tables. Type 'yes' to confirm:")
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop failed: %w", err)
			}
			app.logger.Info("migrations: all tables dropped")
			return nil
		},
	}
	drop.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")

	cmd.AddCommand(up, down, versionCmd, force, drop)
	return cmd
}
