package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a query matches no rows.
	ErrNotFound = errors.New("user-service/db: record not found")

	// ErrDuplicateKey is returned on unique or primary key violations.
	ErrDuplicateKey = errors.New("user-service/db: duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("user-service/db: foreign key violation")

	// ErrCheckViolation is returned when a CHECK or NOT NULL constraint is violated.
	ErrCheckViolation = errors.New("user-service/db: check constraint violation")

	// ErrDeadlock is returned when the database detects a deadlock or a lock
	// could not be acquired.
	ErrDeadlock = errors.New("user-service/db: deadlock detected")

	// ErrTimeout is returned when a statement exceeds its deadline or is cancelled.
	ErrTimeout = errors.New("user-service/db: query timeout")

	// ErrConnectionFailed is returned when the driver cannot reach the server.
	ErrConnectionFailed = errors.New("user-service/db: connection failed")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool        { return errors.Is(err, ErrDuplicateKey) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }
func IsDeadlock(err error) bool            { return errors.Is(err, ErrDeadlock) }
func IsTimeout(err error) bool             { return errors.Is(err, ErrTimeout) }
func IsConnectionFailed(err error) bool    { return errors.Is(err, ErrConnectionFailed) }

// ─────────────────────────────────────────────────────────────────────────────
// DBError
// ─────────────────────────────────────────────────────────────────────────────

// DBError pairs a sentinel with the driver error that produced it.
// errors.Is matches the sentinel; errors.As/Unwrap reach the driver error.
type DBError struct {
	Sentinel error
	Cause    error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the package sentinels.
// Map must return nil for a nil error and the input unchanged when it does
// not recognise it.
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc adapts a function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper handles database/sql, context, lib/pq, go-sql-driver/mysql
// and mattn/go-sqlite3 errors.
func DefaultErrorMapper() ErrorMapper {
	return ErrorMapperFunc(defaultMap)
}

func defaultMap(err error) error {
	if err == nil {
		return nil
	}

	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	case errors.Is(err, driver.ErrBadConn):
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}

	// dial failures surface as *net.OpError from lib/pq and go-sql-driver/mysql
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}

	for _, m := range []func(error) error{mapPostgres, mapMySQL, mapSQLite} {
		if mapped := m(err); mapped != nil {
			return mapped
		}
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

func mapPostgres(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	if s := sentinelForSQLState(string(pqErr.Code)); s != nil {
		return &DBError{Sentinel: s, Cause: err}
	}
	return nil
}

// SQLSTATE codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
func sentinelForSQLState(code string) error {
	switch code {
	case "23505":
		return ErrDuplicateKey
	case "23503":
		return ErrForeignKeyViolation
	case "23514", "23502":
		return ErrCheckViolation
	case "40P01", "55P03":
		return ErrDeadlock
	case "57014":
		return ErrTimeout
	}
	if len(code) == 5 && code[:2] == "08" {
		return ErrConnectionFailed
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

func mapMySQL(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	var s error
	switch myErr.Number {
	case 1062:
		s = ErrDuplicateKey
	case 1216, 1217, 1451, 1452:
		s = ErrForeignKeyViolation
	case 1048, 3819:
		s = ErrCheckViolation
	case 1205, 1213:
		s = ErrDeadlock
	case 3024:
		s = ErrTimeout
	case 1045, 2002, 2003, 2006, 2013:
		s = ErrConnectionFailed
	default:
		return nil
	}
	return &DBError{Sentinel: s, Cause: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

func mapSQLite(err error) error {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return nil
	}
	var s error
	switch {
	case sqErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		s = ErrDuplicateKey
	case sqErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		s = ErrForeignKeyViolation
	case sqErr.ExtendedCode == sqlite3.ErrConstraintCheck,
		sqErr.ExtendedCode == sqlite3.ErrConstraintNotNull:
		s = ErrCheckViolation
	case sqErr.Code == sqlite3.ErrBusy, sqErr.Code == sqlite3.ErrLocked:
		s = ErrDeadlock
	case sqErr.Code == sqlite3.ErrCantOpen:
		s = ErrConnectionFailed
	default:
		return nil
	}
	return &DBError{Sentinel: s, Cause: err}
}
