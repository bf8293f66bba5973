package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/user-service/config"
	"github.com/Skryldev/user-service/db"
	"github.com/Skryldev/user-service/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "")

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestMigrateCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "users.db")

	out, err := run(t, "", "migrate", "version", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "version: 0  dirty: false\n", out)

	_, err = run(t, "", "migrate", "up", "--dsn", dsn)
	require.NoError(t, err)
	out, err = run(t, "", "migrate", "version", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "version: 1  dirty: false\n", out)

	_, err = run(t, "", "migrate", "up", "--dsn", dsn)
	require.NoError(t, err, "up on a current schema is not an error")

	_, err = run(t, "", "migrate", "down", "--dsn", dsn)
	require.NoError(t, err)
	out, err = run(t, "", "migrate", "version", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "version: 0  dirty: false\n", out)

	_, err = run(t, "", "migrate", "force", "1", "--dsn", dsn)
	require.NoError(t, err)

	out, err = run(t, "no\n", "migrate", "drop", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "aborted\n", out)
}

func TestMigrateCommand_BadInput(t *testing.T) {
	_, err := run(t, "", "migrate", "down", "zero")
	assert.ErrorContains(t, err, `invalid steps argument "zero"`)

	_, err = run(t, "", "migrate", "up", "--backend", "redis")
	assert.ErrorContains(t, err, "has no SQL schema")

	_, err = run(t, "", "migrate", "up", "--dsn", ":memory:")
	assert.ErrorContains(t, err, "file-backed")
}

func TestResolveDSN(t *testing.T) {
	dsn, err := resolveDSN(config.StorageConfig{Backend: config.BackendSQLite, DSN: "explicit.db", Database: "ignored.db"})
	require.NoError(t, err)
	assert.Equal(t, "explicit.db", dsn)

	dsn, err = resolveDSN(config.StorageConfig{
		Backend: config.BackendPostgres, Host: "db", User: "app", Password: "secret", Database: "users",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:secret@db:5432/users?sslmode=disable", dsn)
}

func TestOpenStore_Backends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cases := map[string]config.Config{
		"memory": func() config.Config {
			c := config.Default()
			c.Storage.Backend = config.BackendMemory
			return c
		}(),
		"sqlite3": func() config.Config {
			c := config.Default()
			c.Storage.DSN = filepath.Join(t.TempDir(), "users.db")
			return c
		}(),
		"sqlite3 structured": func() config.Config {
			c := config.Default()
			c.Storage.DSN = ""
			c.Storage.Database = filepath.Join(t.TempDir(), "structured.db")
			return c
		}(),
		"redis": func() config.Config {
			c := config.Default()
			c.Storage.Backend = config.BackendRedis
			c.Redis.Addr = mr.Addr()
			return c
		}(),
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			store, closeStore, err := openStore(ctx, cfg, quiet)
			require.NoError(t, err)
			defer closeStore()

			_, err = store.Insert(ctx, models.User{UserID: "azeromo", Email: "azero@bzero.com"})
			require.NoError(t, err)
			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)
		})
	}
}

func TestOpenStore_GivesUpWhenUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendPostgres
	cfg.Storage.DSN = "postgres://u:p@127.0.0.1:1/users?sslmode=disable&connect_timeout=1"
	cfg.Storage.ConnectAttempts = 2
	cfg.Storage.ConnectRetryDelay = time.Millisecond

	_, closeStore, err := openStore(context.Background(), cfg, quiet)
	require.Error(t, err)
	require.NoError(t, closeStore())
	assert.True(t, db.IsConnectionFailed(err), "got %v", err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestServe_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "users.db")
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := fmt.Sprintf("http://%s", ln.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, cfg, quiet) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(base + "/healthz")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/users")
	require.NoError(t, err)
	var users []models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	resp.Body.Close()
	assert.Len(t, users, 3, "empty sqlite store is seeded")

	resp, err = http.Get(base + "/api/v3/getUsers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
