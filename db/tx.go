package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Tx
// ─────────────────────────────────────────────────────────────────────────────

// Tx mirrors the DB statement API so repository code can run against either
// through the Querier interface.
type Tx struct {
	sqltx  *sql.Tx
	bind   BindStyle
	hooks  hookChain
	errMap ErrorMapper
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (t *Tx) Rebind(query string) string { return rebind(t.bind, query) }

// Exec executes a statement that does not return rows.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = t.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	res, err := t.sqltx.ExecContext(ctx, query, args...)
	err = t.mapErr(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query returning rows. The caller MUST close *Rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	query = t.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	rows, err := t.sqltx.QueryContext(ctx, query, args...)
	err = t.mapErr(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows, errMap: t.errMap}, nil
}

// QueryRow executes a query expected to return at most one row. After hooks
// run from Scan.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	query = t.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	raw := t.sqltx.QueryRowContext(ctx, query, args...)
	return &Row{
		raw: raw, errMap: t.errMap,
		ctx: ctx, query: query, args: args, start: start, hooks: t.hooks,
	}
}

// Prepare creates a prepared statement bound to the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	query = t.Rebind(query)
	s, err := t.sqltx.PrepareContext(ctx, query)
	if err != nil {
		return nil, t.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, hooks: t.hooks, errMap: t.errMap}, nil
}

func (t *Tx) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return t.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx
// ─────────────────────────────────────────────────────────────────────────────

// ExecTx starts a transaction, runs fn, and commits when fn returns nil.
// Any error or panic from fn rolls the transaction back; panics are
// re-raised after the rollback.
//
//	err := d.ExecTx(ctx, func(tx *db.Tx) error {
//	    if _, err := tx.Exec(ctx, "DELETE FROM users WHERE user_id = ?", id); err != nil {
//	        return err
//	    }
//	    _, err := tx.Exec(ctx, "INSERT INTO users (user_id, name) VALUES (?, ?)", u.UserID, u.Name)
//	    return err
//	})
func (d *DB) ExecTx(ctx context.Context, fn func(*Tx) error) (err error) {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()

	sqltx, err := d.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return d.mapErr(err)
	}

	tx := &Tx{
		sqltx:  sqltx,
		bind:   d.bind,
		hooks:  d.hooks,
		errMap: d.errMap,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqltx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqltx.Rollback(); rbErr != nil {
				err = fmt.Errorf("user-service/db: rollback failed (%v) after: %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return d.mapErr(err)
	}

	if err = sqltx.Commit(); err != nil {
		return d.mapErr(err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the statement surface shared by *DB and *Tx. Repository helpers
// accept a Querier so the same code runs inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Prepare(ctx context.Context, query string) (*Stmt, error)
}

var (
	_ Querier = (*DB)(nil)
	_ Querier = (*Tx)(nil)
)
