// Package repo holds the user persistence backends. Every backend satisfies
// UserRepository with the same observable behaviour, so handlers and the
// service never know which one they talk to.
package repo

import (
	"context"
	"errors"

	"github.com/Skryldev/user-service/models"
)

var (
	// ErrNotFound is returned when no record has the requested identity key.
	ErrNotFound = errors.New("repo/user: not found")

	// ErrDuplicateID is returned by BatchInsert when a record's id is taken.
	ErrDuplicateID = errors.New("repo/user: duplicate user id")
)

// UserRepository is the identity-keyed user collection.
//
// Records are keyed by UserID. Insert never rejects an existing id: the new
// record replaces the stored one. Replace and Patch return ErrNotFound when
// id is absent and leave the collection unchanged in that case. Delete
// reports whether anything was removed instead of failing.
type UserRepository interface {
	List(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Count(ctx context.Context) (int64, error)

	Insert(ctx context.Context, u models.User) (*models.User, error)
	// BatchInsert stores all users or none; any id already present (or
	// repeated within users) fails the batch with ErrDuplicateID.
	BatchInsert(ctx context.Context, users []models.User) error
	// Replace removes the record keyed id and stores u under u.UserID,
	// which may differ from id.
	Replace(ctx context.Context, id string, u models.User) (*models.User, error)
	Patch(ctx context.Context, id string, p models.PatchUserParams) (*models.User, error)
	Delete(ctx context.Context, id string) (bool, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// IsNotFound reports whether err means the identity key had no record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
