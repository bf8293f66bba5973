package repo

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	redis "github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/Skryldev/user-service/models"
)

// DefaultRedisKey is the hash holding all user records.
const DefaultRedisKey = "users"

// maxTxAttempts bounds how often an optimistic transaction is re-run after
// the watched hash changed underneath it.
const maxTxAttempts = 3

// RedisOptions configures DialRedis.
type RedisOptions struct {
	Addr     string
	Password string // empty means no auth
	DB       int
	TLS      *tls.Config
}

// DialRedis connects to Redis and verifies the connection with PING.
func DialRedis(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      o.Addr,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLS,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repo/redis: ping %s: %w", o.Addr, err)
	}
	return client, nil
}

// RedisRepository stores each user as a JSON value in one hash, field = UserID.
// Mutations that must observe existing state run under WATCH/MULTI.
type RedisRepository struct {
	client *redis.Client
	key    string
}

// NewRedisRepository returns a repository on client using the given hash key
// (DefaultRedisKey when empty).
func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

// List returns all users ordered by UserID; hash iteration order is undefined.
func (r *RedisRepository) List(ctx context.Context) ([]models.User, error) {
	values, err := r.client.HVals(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("repo/redis: hvals: %w", err)
	}
	users := make([]models.User, 0, len(values))
	for _, v := range values {
		u, err := decodeUser(v)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// GetByID returns the user stored under field id.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.client, id)
}

// GetByEmail scans every user for a matching email.
func (r *RedisRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// ExistsByEmail reports whether any user has the given email.
func (r *RedisRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
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

// Count returns the number of fields in the hash.
func (r *RedisRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("repo/redis: hlen: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Insert writes u under its id, overwriting any existing value.
func (r *RedisRepository) Insert(ctx context.Context, u models.User) (*models.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("repo/redis: marshal user: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, u.UserID, data).Err(); err != nil {
		return nil, fmt.Errorf("repo/redis: hset: %w", err)
	}
	return &u, nil
}

// BatchInsert writes all users in one MULTI if none of their ids is taken.
func (r *RedisRepository) BatchInsert(ctx context.Context, users []models.User) error {
	if len(users) == 0 {
		return nil
	}
	fields := make([]any, 0, 2*len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := seen[u.UserID]; dup {
			return ErrDuplicateID
		}
		seen[u.UserID] = struct{}{}
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("repo/redis: marshal user: %w", err)
		}
		fields = append(fields, u.UserID, data)
	}

	return r.watch(ctx, func(tx *redis.Tx) error {
		for id := range seen {
			taken, err := tx.HExists(ctx, r.key, id).Result()
			if err != nil {
				return fmt.Errorf("repo/redis: hexists: %w", err)
			}
			if taken {
				return ErrDuplicateID
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, fields...)
			return nil
		})
		return err
	})
}

// Replace removes field id and writes u, atomically.
func (r *RedisRepository) Replace(ctx context.Context, id string, u models.User) (*models.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("repo/redis: marshal user: %w", err)
	}
	err = r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.key, id).Result()
		if err != nil {
			return fmt.Errorf("repo/redis: hexists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if u.UserID != id {
				pipe.HDel(ctx, r.key, id)
			}
			pipe.HSet(ctx, r.key, u.UserID, data)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Patch applies the non-nil fields of p under WATCH.
func (r *RedisRepository) Patch(ctx context.Context, id string, p models.PatchUserParams) (*models.User, error) {
	var patched *models.User
	err := r.watch(ctx, func(tx *redis.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(u)
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("repo/redis: marshal user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, id, data)
			return nil
		})
		if err != nil {
			return err
		}
		patched = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

// Delete removes field id and reports whether it existed.
func (r *RedisRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.HDel(ctx, r.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("repo/redis: hdel: %w", err)
	}
	return n > 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// hashGetter is satisfied by both *redis.Client and *redis.Tx.
type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// watch runs fn under WATCH on the hash, re-running it when another client
// modified the hash before EXEC.
func (r *RedisRepository) watch(ctx context.Context, fn func(*redis.Tx) error) error {
	var err error
	for range maxTxAttempts {
		err = r.client.Watch(ctx, fn, r.key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("repo/redis: transaction aborted after %d attempts: %w", maxTxAttempts, err)
}

func (r *RedisRepository) get(ctx context.Context, c hashGetter, id string) (*models.User, error) {
	raw, err := c.HGet(ctx, r.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repo/redis: hget: %w", err)
	}
	return decodeUser(raw)
}

func decodeUser(raw string) (*models.User, error) {
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("repo/redis: decode user: %w", err)
	}
	return &u, nil
}

var _ UserRepository = (*RedisRepository)(nil)
