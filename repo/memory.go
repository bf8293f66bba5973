package repo

import (
	"context"
	"slices"
	"sync"

	"github.com/Skryldev/user-service/models"
)

// MemoryRepository keeps users in a map keyed by UserID, with a separate
// slice holding ids in insertion order so List is deterministic. It is safe
// for concurrent use. Nothing survives the process.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
	order []string
}

// NewMemoryRepository returns a repository holding a copy of seed.
// Later seed entries win on duplicate ids.
func NewMemoryRepository(seed ...models.User) *MemoryRepository {
	r := &MemoryRepository{users: make(map[string]models.User, len(seed))}
	for _, u := range seed {
		r.put(u)
	}
	return r
}

// List returns copies of all users in insertion order.
func (r *MemoryRepository) List(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out, nil
}

// GetByID returns a copy of the user keyed id.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetByEmail returns the first user, in insertion order, with the given email.
func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if u := r.users[id]; u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// ExistsByEmail reports whether any user has the given email.
func (r *MemoryRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Count returns the number of stored users.
func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

// Insert stores u, replacing any user with the same id in place.
func (r *MemoryRepository) Insert(ctx context.Context, u models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(u)
	return &u, nil
}

// BatchInsert stores users only if none of their ids is taken.
func (r *MemoryRepository) BatchInsert(ctx context.Context, users []models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, taken := r.users[u.UserID]; taken {
			return ErrDuplicateID
		}
		if _, dup := seen[u.UserID]; dup {
			return ErrDuplicateID
		}
		seen[u.UserID] = struct{}{}
	}
	for _, u := range users {
		r.put(u)
	}
	return nil
}

// Replace swaps the user keyed id for u.
func (r *MemoryRepository) Replace(ctx context.Context, id string, u models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return nil, ErrNotFound
	}
	if u.UserID != id {
		r.remove(id)
	}
	r.put(u)
	return &u, nil
}

// Patch applies the non-nil fields of p to the stored user.
func (r *MemoryRepository) Patch(ctx context.Context, id string, p models.PatchUserParams) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Apply(&u)
	r.users[id] = u
	return &u, nil
}

// Delete removes the user keyed id and reports whether it existed.
func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(id), nil
}

// Ping only fails when ctx is done.
func (r *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

// put stores u, keeping the position of an existing id. Caller holds mu.
func (r *MemoryRepository) put(u models.User) {
	if _, exists := r.users[u.UserID]; !exists {
		r.order = append(r.order, u.UserID)
	}
	r.users[u.UserID] = u
}

// remove deletes id and reports whether it was present. Caller holds mu.
func (r *MemoryRepository) remove(id string) bool {
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

var _ UserRepository = (*MemoryRepository)(nil)
