package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Skryldev/user-service/config"
	"github.com/Skryldev/user-service/db"
	"github.com/Skryldev/user-service/migrations"
	"github.com/Skryldev/user-service/repo"
)

// openStore builds the configured repository. The returned close func is
// always non-nil.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repo.UserRepository, func() error, error) {
	noop := func() error { return nil }

	switch {
	case cfg.Storage.Backend == config.BackendMemory:
		return repo.NewMemoryRepository(), noop, nil

	case cfg.Storage.Backend == config.BackendRedis:
		client, err := repo.DialRedis(ctx, repo.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, noop, err
		}
		return repo.NewRedisRepository(client, cfg.Redis.Key), client.Close, nil

	case cfg.Storage.IsSQL():
		d, err := openSQL(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, noop, err
		}
		return repo.NewSQLRepository(d), d.Close, nil
	}
	return nil, noop, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

// openSQL connects (retrying while the server is unreachable), then applies
// pending migrations when configured.
func openSQL(ctx context.Context, s config.StorageConfig, logger *slog.Logger) (*db.DB, error) {
	dbCfg := db.Config{
		DSN:             s.DSN,
		DriverName:      s.Backend,
		MaxOpenConns:    s.MaxOpenConns,
		MaxIdleConns:    s.MaxIdleConns,
		ConnMaxLifetime: s.ConnMaxLifetime,
		DefaultTimeout:  s.QueryTimeout,
		Hooks: []db.Hook{
			db.NewLogHook(db.LogHookConfig{
				Logger:             logger,
				SlowQueryThreshold: s.SlowQueryThreshold,
			}),
		},
	}

	var d *db.DB
	err := db.WithRetry(ctx, startupRetry(s), func() error {
		var err error
		if s.DSN != "" {
			d, err = db.Open(dbCfg)
		} else {
			d, err = db.OpenWithDriver(s.Backend, driverOptions(s), dbCfg)
		}
		if err != nil {
			logger.Warn("database not reachable", "backend", s.Backend, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	stats := d.Stats()
	logger.Info("database connected",
		"backend", d.DriverName(),
		"max_open", stats.MaxOpenConnections,
		"open", stats.OpenConnections,
	)

	if s.MigrateOnStart {
		dsn, err := resolveDSN(s)
		if err == nil {
			err = migrateUp(s.Backend, dsn, logger)
		}
		if err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

func startupRetry(s config.StorageConfig) db.RetryConfig {
	return db.RetryConfig{
		MaxAttempts: s.ConnectAttempts,
		Delay:       s.ConnectRetryDelay,
		RetryOn:     db.IsConnectionFailed,
	}
}

func driverOptions(s config.StorageConfig) db.DriverOptions {
	return db.DriverOptions{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		Database: s.Database,
		SSLMode:  s.SSLMode,
	}
}

// resolveDSN returns storage.dsn, or builds one from the structured fields
// with the backend's registered driver.
func resolveDSN(s config.StorageConfig) (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	drv, err := db.LookupDriver(s.Backend)
	if err != nil {
		return "", err
	}
	return drv.DSN(driverOptions(s))
}

func migrationURL(backend, dsn string) (string, error) {
	drv, err := db.LookupDriver(backend)
	if err != nil {
		return "", err
	}
	return drv.MigrationURL(dsn)
}

func migrateUp(backend, dsn string, logger *slog.Logger) error {
	url, err := migrationURL(backend, dsn)
	if err != nil {
		return err
	}
	return migrations.Up(url, logger)
}
