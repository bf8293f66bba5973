// Package config loads service settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite3"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRedis    = "redis"
)

// Config is the whole service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	// Seed loads the fixture users into the configured store when it is empty.
	Seed bool `yaml:"seed"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StorageConfig selects the backend behind /users, /api/v2 and /api/v5.
// SQL backends take either DSN or the structured connection fields; DSN wins
// when both are set.
type StorageConfig struct {
	Backend            string        `yaml:"backend"`
	DSN                string        `yaml:"dsn"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Database           string        `yaml:"database"`
	SSLMode            string        `yaml:"sslmode"`
	MaxOpenConns       int           `yaml:"maxOpenConns"`
	MaxIdleConns       int           `yaml:"maxIdleConns"`
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`
	QueryTimeout       time.Duration `yaml:"queryTimeout"`
	SlowQueryThreshold time.Duration `yaml:"slowQueryThreshold"`
	MigrateOnStart     bool          `yaml:"migrateOnStart"`
	// ConnectAttempts bounds startup retries while the database is unreachable.
	ConnectAttempts   int           `yaml:"connectAttempts"`
	ConnectRetryDelay time.Duration `yaml:"connectRetryDelay"`
}

// IsSQL reports whether Backend is served by the SQL repository.
func (s StorageConfig) IsSQL() bool {
	switch s.Backend {
	case BackendSQLite, BackendPostgres, BackendMySQL:
		return true
	}
	return false
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend:            BackendSQLite,
			DSN:                "users.db",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetime:    30 * time.Minute,
			QueryTimeout:       5 * time.Second,
			SlowQueryThreshold: 200 * time.Millisecond,
			MigrateOnStart:     true,
			ConnectAttempts:    5,
			ConnectRetryDelay:  2 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			Key:  "users",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Seed: true,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DATABASE_URL, REDIS_ADDR and LOG_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQLite, BackendPostgres, BackendMySQL:
		if c.Storage.DSN == "" && c.Storage.Database == "" {
			errs = append(errs, fmt.Errorf("storage.dsn or storage.database is required for backend %q", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for backend \"redis\""))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log.level %q", s)
	}
	return l, nil
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
