package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skryldev/user-service/db"
	"github.com/Skryldev/user-service/models"
)

// SQLRepository is the UserRepository backed by the users table
// (see migrations/). Multi-statement mutations run in one transaction.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository returns a repository using d. The schema must already
// be migrated.
func NewSQLRepository(d *db.DB) *SQLRepository {
	return &SQLRepository{db: d}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants. Placeholders are '?' and rebound per driver by the db package.
// ─────────────────────────────────────────────────────────────────────────────

const (
	userColumns = `user_id, password, name, email, created_at`

	sqlListUsers = `
		SELECT ` + userColumns + `
		FROM   users
		ORDER  BY created_at, user_id`

	sqlGetUserByID = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  user_id = ?`

	sqlGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  email = ?
		ORDER  BY user_id
		LIMIT  1`

	sqlCountByEmail = `SELECT COUNT(*) FROM users WHERE email = ?`

	sqlCountUsers = `SELECT COUNT(*) FROM users`

	sqlInsertUser = `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?)`

	sqlDeleteUser = `DELETE FROM users WHERE user_id = ?`
)

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// List returns all users ordered by created_at, then user_id.
func (r *SQLRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.Query(ctx, sqlListUsers)
	if err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.Password, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo/user: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	return users, nil
}

// GetByID returns a single user by primary key.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, r.db, sqlGetUserByID, id)
}

// GetByEmail returns a single user by email.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return getUser(ctx, r.db, sqlGetUserByEmail, email)
}

// ExistsByEmail reports whether any row has the given email.
func (r *SQLRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := r.db.QueryRow(ctx, sqlCountByEmail, email).Scan(&n); err != nil {
		return false, fmt.Errorf("repo/user: exists by email: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of rows in users.
func (r *SQLRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, sqlCountUsers).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/user: count: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (r *SQLRepository) Ping(ctx context.Context) error { return r.db.Ping(ctx) }

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Insert overwrites any row with the same user_id.
func (r *SQLRepository) Insert(ctx context.Context, u models.User) (*models.User, error) {
	err := r.db.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, sqlDeleteUser, u.UserID); err != nil {
			return err
		}
		return insertUser(ctx, tx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert: %w", err)
	}
	return &u, nil
}

// BatchInsert inserts all users in one transaction.
func (r *SQLRepository) BatchInsert(ctx context.Context, users []models.User) error {
	err := db.BatchExec(r.db, ctx, sqlInsertUser, users, func(u models.User) []any {
		return []any{u.UserID, u.Password, u.Name, u.Email, u.CreatedAt}
	})
	switch {
	case err == nil:
		return nil
	case db.IsDuplicateKey(err):
		return ErrDuplicateID
	default:
		return fmt.Errorf("repo/user: batch insert: %w", err)
	}
}

// Replace deletes the row keyed id and inserts u in the same transaction.
func (r *SQLRepository) Replace(ctx context.Context, id string, u models.User) (*models.User, error) {
	err := r.db.ExecTx(ctx, func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, sqlDeleteUser, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		if u.UserID != id {
			if _, err := tx.Exec(ctx, sqlDeleteUser, u.UserID); err != nil {
				return err
			}
		}
		return insertUser(ctx, tx, u)
	})
	if err != nil {
		return nil, wrapWrite("replace", err)
	}
	return &u, nil
}

// Patch applies the non-nil fields of p. The UPDATE is built from p so the
// untouched columns never appear in the statement.
func (r *SQLRepository) Patch(ctx context.Context, id string, p models.PatchUserParams) (*models.User, error) {
	var patched *models.User
	err := r.db.ExecTx(ctx, func(tx *db.Tx) error {
		setClauses := make([]string, 0, 2)
		args := make([]any, 0, 3)
		if p.Name != nil {
			setClauses = append(setClauses, "name = ?")
			args = append(args, *p.Name)
		}
		if p.Email != nil {
			setClauses = append(setClauses, "email = ?")
			args = append(args, *p.Email)
		}

		if len(setClauses) > 0 {
			query := `UPDATE users SET ` + strings.Join(setClauses, ", ") + ` WHERE user_id = ?`
			if _, err := tx.Exec(ctx, query, append(args, id)...); err != nil {
				return err
			}
		}

		// RowsAffected is not used for existence: mysql reports changed rows,
		// not matched ones.
		u, err := getUser(ctx, tx, sqlGetUserByID, id)
		if err != nil {
			return err
		}
		patched = u
		return nil
	})
	if err != nil {
		return nil, wrapWrite("patch", err)
	}
	return patched, nil
}

// Delete removes the row keyed id and reports whether it existed.
func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.Exec(ctx, sqlDeleteUser, id)
	if err != nil {
		return false, fmt.Errorf("repo/user: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/user: delete: %w", err)
	}
	return n > 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func insertUser(ctx context.Context, q db.Querier, u models.User) error {
	_, err := q.Exec(ctx, sqlInsertUser, u.UserID, u.Password, u.Name, u.Email, u.CreatedAt)
	return err
}

// getUser scans a single user row; db.ErrNotFound becomes ErrNotFound.
func getUser(ctx context.Context, q db.Querier, query string, arg any) (*models.User, error) {
	var u models.User
	err := q.QueryRow(ctx, query, arg).Scan(&u.UserID, &u.Password, &u.Name, &u.Email, &u.CreatedAt)
	switch {
	case err == nil:
		return &u, nil
	case db.IsNotFound(err):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("repo/user: get: %w", err)
	}
}

func wrapWrite(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("repo/user: %s: %w", op, err)
}

var _ UserRepository = (*SQLRepository)(nil)
