package db

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// Driver captures what differs between the supported databases: how a DSN is
// built from structured options, which placeholder syntax is expected, and
// how golang-migrate addresses the same database.
type Driver interface {
	// Name is the database/sql driver name, e.g. "postgres".
	Name() string

	// DSN converts structured options into the driver's native DSN.
	DSN(opts DriverOptions) (string, error)

	// Bind reports the placeholder syntax the driver expects.
	Bind() BindStyle

	// MigrationURL converts a DSN accepted by this driver into a
	// golang-migrate database URL.
	MigrationURL(dsn string) (string, error)
}

// DriverOptions carries connection parameters in driver-agnostic form.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string // database name, or file path for sqlite3
	SSLMode  string // postgres only
	// Extra holds driver-specific query parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

// RegisterDriver adds d to the registry, replacing any driver of the same name.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("user-service/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver builds the DSN from structured options and opens the pool.
// cfg.DSN and cfg.DriverName are overwritten.
func OpenWithDriver(driverName string, opts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}
	dsn, err := drv.DSN(opts)
	if err != nil {
		return nil, fmt.Errorf("user-service/db: build DSN: %w", err)
	}
	cfg.DriverName = drv.Name()
	cfg.DSN = dsn
	return Open(cfg)
}

func init() {
	RegisterDriver(SQLiteDriver{})
	RegisterDriver(PostgresDriver{})
	RegisterDriver(MySQLDriver{})
}

// sortedExtra yields Extra keys in a stable order so DSNs are reproducible.
func sortedExtra(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite (mattn/go-sqlite3)
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver targets a file-backed sqlite3 database.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string    { return "sqlite3" }
func (SQLiteDriver) Bind() BindStyle { return BindQuestion }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	if len(o.Extra) == 0 {
		return o.Database, nil
	}
	q := url.Values{}
	for _, k := range sortedExtra(o.Extra) {
		q.Set(k, o.Extra[k])
	}
	return o.Database + "?" + q.Encode(), nil
}

func (SQLiteDriver) MigrationURL(dsn string) (string, error) {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") {
		return "", fmt.Errorf("sqlite3 driver: migrations need a file-backed database, got %q", dsn)
	}
	return "sqlite3://" + strings.TrimPrefix(dsn, "file:"), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver builds URL-form DSNs, which lib/pq and golang-migrate both accept.
type PostgresDriver struct{}

func (PostgresDriver) Name() string    { return "postgres" }
func (PostgresDriver) Bind() BindStyle { return BindDollar }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	q := url.Values{}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	for _, k := range sortedExtra(o.Extra) {
		q.Set(k, o.Extra[k])
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(o.Host, strconv.Itoa(port)),
		Path:     "/" + o.Database,
		RawQuery: q.Encode(),
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	return u.String(), nil
}

func (PostgresDriver) MigrationURL(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dsn, nil
	}
	return "", fmt.Errorf("postgres driver: migrations need a URL-form DSN (postgres://...)")
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL (go-sql-driver/mysql)
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver formats DSNs through mysql.Config.
type MySQLDriver struct{}

func (MySQLDriver) Name() string    { return "mysql" }
func (MySQLDriver) Bind() BindStyle { return BindQuestion }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	cfg.DBName = o.Database
	if len(o.Extra) > 0 {
		cfg.Params = make(map[string]string, len(o.Extra))
		for k, v := range o.Extra {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}

// MigrationURL enables multiStatements: a migration file may hold more than
// one statement.
func (MySQLDriver) MigrationURL(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql driver: %w", err)
	}
	cfg.MultiStatements = true
	return "mysql://" + cfg.FormatDSN(), nil
}
