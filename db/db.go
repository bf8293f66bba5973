// Package db is the SQL layer under the user repositories. It wraps
// database/sql with context-aware helpers, statement hooks, unified error
// mapping and transactions. All SQL stays explicit and lives with the
// repositories; this package never generates queries.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds all options for opening and managing the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "postgres", "mysql" or "sqlite3".
	DriverName string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// DefaultTimeout is applied to statements whose context has no deadline.
	// Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks run around every statement. Nil entries are skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// DB
// ─────────────────────────────────────────────────────────────────────────────

// DB is a concurrency-safe wrapper around *sql.DB.
//
// Queries are written with '?' placeholders and rewritten for the driver by
// Rebind, so the same SQL constant serves sqlite3, mysql and postgres.
type DB struct {
	sqldb  *sql.DB
	cfg    Config
	bind   BindStyle
	hooks  hookChain
	errMap ErrorMapper
}

// Open opens the database described by cfg and verifies connectivity with Ping.
// Callers are responsible for calling Close.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("user-service/db: DSN must not be empty")
	}
	if cfg.DriverName == "" {
		return nil, fmt.Errorf("user-service/db: DriverName must not be empty")
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("user-service/db: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	d := &DB{
		sqldb:  sqldb,
		cfg:    cfg,
		bind:   bindStyleFor(cfg.DriverName),
		hooks:  newHookChain(cfg.Hooks),
		errMap: DefaultErrorMapper(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("user-service/db: ping: %w", d.mapErr(err))
	}

	return d, nil
}

// DriverName reports the database/sql driver the pool was opened with.
func (d *DB) DriverName() string { return d.cfg.DriverName }

// Close closes all pooled connections.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()
	return d.mapErr(d.sqldb.PingContext(ctx))
}

// Stats returns pool statistics.
func (d *DB) Stats() sql.DBStats { return d.sqldb.Stats() }

// Rebind rewrites '?' placeholders into the driver's native form.
func (d *DB) Rebind(query string) string { return rebind(d.bind, query) }

// ─────────────────────────────────────────────────────────────────────────────
// Query execution helpers
// ─────────────────────────────────────────────────────────────────────────────

// Exec executes a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()
	query = d.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	res, err := d.sqldb.ExecContext(ctx, query, args...)
	err = d.mapErr(err)
	d.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query that returns rows. The caller MUST close the
// returned *Rows; closing also releases the statement timeout.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := d.withDefaultTimeout(ctx)
	query = d.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	rows, err := d.sqldb.QueryContext(ctx, query, args...)
	err = d.mapErr(err)
	d.hooks.After(ctx, query, args, time.Since(start), err)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, cancel: cancel, errMap: d.errMap}, nil
}

// QueryRow executes a query expected to return at most one row.
// ErrNotFound is reported by Scan when nothing matched. The After hooks run
// from Scan, once the outcome is known.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := d.withDefaultTimeout(ctx)
	query = d.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	raw := d.sqldb.QueryRowContext(ctx, query, args...)
	return &Row{
		raw: raw, cancel: cancel, errMap: d.errMap,
		ctx: ctx, query: query, args: args, start: start, hooks: d.hooks,
	}
}

// Prepare creates a prepared statement for repeated use.
// The caller is responsible for calling stmt.Close().
func (d *DB) Prepare(ctx context.Context, query string) (*Stmt, error) {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()
	query = d.Rebind(query)
	s, err := d.sqldb.PrepareContext(ctx, query)
	if err != nil {
		return nil, d.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, hooks: d.hooks, errMap: d.errMap}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch helpers
// ─────────────────────────────────────────────────────────────────────────────

// BatchExec runs query once per item inside a single transaction using one
// prepared statement. Either every row is applied or none is.
//
//	err := db.BatchExec(d, ctx, "INSERT INTO users (user_id, name) VALUES (?, ?)", users,
//	    func(u models.User) []any { return []any{u.UserID, u.Name} })
func BatchExec[T any](
	d *DB,
	ctx context.Context,
	query string,
	items []T,
	argsFn func(T) []any,
) error {
	if len(items) == 0 {
		return nil
	}
	return d.ExecTx(ctx, func(tx *Tx) error {
		stmt, err := tx.Prepare(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.Exec(ctx, argsFn(item)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// WithRetry
// ─────────────────────────────────────────────────────────────────────────────

// RetryConfig controls retry behaviour for transient errors.
type RetryConfig struct {
	// MaxAttempts counts the first call; values below 1 mean one attempt.
	MaxAttempts int
	Delay       time.Duration
	// RetryOn decides whether an error is worth another attempt.
	// Nil retries ErrDeadlock, ErrTimeout and ErrConnectionFailed.
	RetryOn func(error) bool
}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts. fn must be idempotent. Request-path writes are never
// wrapped in it; startup work (connect, migrate, seed) is.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = func(err error) bool {
			return IsDeadlock(err) || IsTimeout(err) || IsConnectionFailed(err)
		}
	}
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryOn(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("user-service/db: all %d attempts failed, last error: %w", attempts, lastErr)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (d *DB) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.DefaultTimeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.DefaultTimeout)
}

func (d *DB) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return d.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Placeholder rebinding
// ─────────────────────────────────────────────────────────────────────────────

// BindStyle is the placeholder syntax a driver expects.
type BindStyle int

const (
	// BindQuestion leaves '?' placeholders untouched (sqlite3, mysql).
	BindQuestion BindStyle = iota
	// BindDollar numbers placeholders as $1, $2, ... (postgres).
	BindDollar
)

func bindStyleFor(driverName string) BindStyle {
	if drv, err := LookupDriver(driverName); err == nil {
		return drv.Bind()
	}
	return BindQuestion
}

// rebind does not understand quoted literals; queries in this module never
// put a '?' inside a string literal.
func rebind(style BindStyle, query string) string {
	if style != BindDollar || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Row / Rows
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sql.Row
	cancel context.CancelFunc
	errMap ErrorMapper

	ctx   context.Context
	query string
	args  []any
	start time.Time
	hooks hookChain
}

// Scan copies columns from the matched row into dest values.
// ErrNotFound is returned when no row was found. The statement's After hooks
// see the mapped error.
func (r *Row) Scan(dest ...any) error {
	if r.cancel != nil {
		defer r.cancel()
	}
	err := r.errMap.Map(r.raw.Scan(dest...))
	r.hooks.After(r.ctx, r.query, r.args, time.Since(r.start), err)
	return err
}

// Rows embeds *sql.Rows so Next/Scan/Err behave as usual; Close also
// releases the statement's timeout context.
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
	errMap ErrorMapper
}

// Close closes the result set.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Err reports the iteration error, mapped.
func (r *Rows) Err() error { return r.errMap.Map(r.Rows.Err()) }

// ─────────────────────────────────────────────────────────────────────────────
// Stmt
// ─────────────────────────────────────────────────────────────────────────────

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt   *sql.Stmt
	query  string
	hooks  hookChain
	errMap ErrorMapper
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	res, err := s.stmt.ExecContext(ctx, args...)
	err = s.errMap.Map(err)
	s.hooks.After(ctx, s.query, args, time.Since(start), err)
	return res, err
}

// Close releases the prepared statement.
func (s *Stmt) Close() error { return s.stmt.Close() }
