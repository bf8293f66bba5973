package repo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/user-service/db"
	"github.com/Skryldev/user-service/migrations"
	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Backends
// ─────────────────────────────────────────────────────────────────────────────

type backend struct {
	name string
	open func(t *testing.T) repo.UserRepository
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) repo.UserRepository { return repo.NewMemoryRepository() }},
		{"sqlite3", func(t *testing.T) repo.UserRepository { return repo.NewSQLRepository(openMigratedSQLite(t)) }},
		{"redis", func(t *testing.T) repo.UserRepository { return repo.NewRedisRepository(openMiniredis(t), "") }},
	}
}

func openMigratedSQLite(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")
	require.NoError(t, migrations.Up("sqlite3://"+path, nil))

	d, err := db.Open(db.Config{DSN: path, DriverName: "sqlite3"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func openMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := repo.DialRedis(context.Background(), repo.RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seeded(t *testing.T, b backend) repo.UserRepository {
	t.Helper()
	r := b.open(t)
	require.NoError(t, r.BatchInsert(context.Background(), models.SeedUsers()))
	return r
}

func ptr(s string) *string { return &s }

// forEachBackend runs fn as a subtest against every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) { fn(t, b) })
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Contract
// ─────────────────────────────────────────────────────────────────────────────

func TestContract_SeedScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		all, err := r.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		u, err := r.GetByID(ctx, "bzeromo")
		require.NoError(t, err)
		assert.Equal(t, "bzero@bzero.com", u.Email)

		removed, err := r.Delete(ctx, "bzeromo")
		require.NoError(t, err)
		assert.True(t, removed)

		all, err = r.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = r.GetByID(ctx, "bzeromo")
		assert.ErrorIs(t, err, repo.ErrNotFound)

		removed, err = r.Delete(ctx, "bzeromo")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestContract_EmptyList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		all, err := b.open(t).List(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})
}

func TestContract_InsertDistinctIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := b.open(t)
		ctx := context.Background()
		ids := []string{"u1", "u2", "u3", "u4", "u5"}
		for _, id := range ids {
			_, err := r.Insert(ctx, models.User{UserID: id, Password: "pw", Name: id, Email: id + "@x.com", CreatedAt: "2025-05-27"})
			require.NoError(t, err)
		}
		all, err := r.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(ids))

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, len(ids), n)
	})
}

func TestContract_InsertExistingIDReturnsLatest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		_, err := r.Insert(ctx, models.User{UserID: "azeromo", Password: "new", Name: "다시", Email: "again@x.com", CreatedAt: "2025-06-01"})
		require.NoError(t, err)

		u, err := r.GetByID(ctx, "azeromo")
		require.NoError(t, err)
		assert.Equal(t, "다시", u.Name)
		assert.Equal(t, "again@x.com", u.Email)
	})
}

func TestContract_Replace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		repl := models.User{UserID: "azeromo", Password: "p2", Name: "교체", Email: "r@x.com", CreatedAt: "2025-06-01"}
		got, err := r.Replace(ctx, "azeromo", repl)
		require.NoError(t, err)
		assert.Equal(t, repl, *got)

		stored, err := r.GetByID(ctx, "azeromo")
		require.NoError(t, err)
		assert.Equal(t, repl, *stored)

		all, err := r.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestContract_ReplaceWithDifferentID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		repl := models.User{UserID: "dzeromo", Password: "dzero", Name: "도영규", Email: "dzero@bzero.com", CreatedAt: "2025-05-28"}
		_, err := r.Replace(ctx, "czeromo", repl)
		require.NoError(t, err)

		_, err = r.GetByID(ctx, "czeromo")
		assert.ErrorIs(t, err, repo.ErrNotFound)

		got, err := r.GetByID(ctx, "dzeromo")
		require.NoError(t, err)
		assert.Equal(t, "도영규", got.Name)

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})
}

func TestContract_ReplaceMissingLeavesCollection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		before, err := r.List(ctx)
		require.NoError(t, err)

		_, err = r.Replace(ctx, "nobody", models.User{UserID: "nobody", Name: "x"})
		assert.ErrorIs(t, err, repo.ErrNotFound)

		after, err := r.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, before, after)
	})
}

func TestContract_PatchChangesOnlyNameAndEmail(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		before, err := r.GetByID(ctx, "azeromo")
		require.NoError(t, err)

		got, err := r.Patch(ctx, "azeromo", models.PatchUserParams{Name: ptr("신규"), Email: ptr("new@x.com")})
		require.NoError(t, err)
		assert.Equal(t, "azeromo", got.UserID)
		assert.Equal(t, before.Password, got.Password)
		assert.Equal(t, before.CreatedAt, got.CreatedAt)
		assert.Equal(t, "신규", got.Name)
		assert.Equal(t, "new@x.com", got.Email)

		stored, err := r.GetByID(ctx, "azeromo")
		require.NoError(t, err)
		assert.Equal(t, *got, *stored)
	})
}

func TestContract_PatchPartialAndEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		got, err := r.Patch(ctx, "bzeromo", models.PatchUserParams{Email: ptr("only@x.com")})
		require.NoError(t, err)
		assert.Equal(t, "박영규", got.Name)
		assert.Equal(t, "only@x.com", got.Email)

		same, err := r.Patch(ctx, "bzeromo", models.PatchUserParams{})
		require.NoError(t, err)
		assert.Equal(t, *got, *same)
	})
}

func TestContract_PatchMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		_, err := r.Patch(context.Background(), "nobody", models.PatchUserParams{Name: ptr("x")})
		assert.ErrorIs(t, err, repo.ErrNotFound)

		_, err = r.Patch(context.Background(), "nobody", models.PatchUserParams{})
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})
}

func TestContract_Email(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		u, err := r.GetByEmail(ctx, "czero@bzero.com")
		require.NoError(t, err)
		assert.Equal(t, "czeromo", u.UserID)

		_, err = r.GetByEmail(ctx, "missing@x.com")
		assert.ErrorIs(t, err, repo.ErrNotFound)

		ok, err := r.ExistsByEmail(ctx, "azero@bzero.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.ExistsByEmail(ctx, "missing@x.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestContract_BatchInsertRejectsDuplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		r := seeded(t, b)
		ctx := context.Background()

		err := r.BatchInsert(ctx, []models.User{
			{UserID: "new1", Name: "n1"},
			{UserID: "azeromo", Name: "clash"},
		})
		assert.ErrorIs(t, err, repo.ErrDuplicateID)

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n, "failed batch must not store anything")

		assert.NoError(t, r.BatchInsert(ctx, nil))
	})
}

func TestContract_Ping(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		assert.NoError(t, b.open(t).Ping(context.Background()))
	})
}
