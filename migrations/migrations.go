// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// New returns a migrator for databaseURL (a golang-migrate URL such as
// "sqlite3:///var/lib/users.db" or "postgres://..."). Close it when done.
func New(databaseURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m.Log = &slogAdapter{logger: logger}
	return m, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(databaseURL string, logger *slog.Logger) error {
	m, err := New(databaseURL, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// slogAdapter satisfies migrate.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Printf(format string, v ...any) {
	l.logger.Info("migrations: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogAdapter) Verbose() bool { return false }
