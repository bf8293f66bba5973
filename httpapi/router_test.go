package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/user-service/httpapi"
	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
	"github.com/Skryldev/user-service/service"
	"github.com/Skryldev/user-service/validation"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRouter(t *testing.T, store repo.UserRepository) http.Handler {
	t.Helper()
	v := validation.New()
	scratch := service.New(repo.NewMemoryRepository(models.SeedUsers()...), v, service.WithLogger(quiet))
	if store == nil {
		store = repo.NewMemoryRepository()
	}
	return httpapi.NewRouter(httpapi.RouterConfig{
		Scratch: scratch,
		Store:   service.New(store, v, service.WithLogger(quiet)),
		Logger:  quiet,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestV1_ListSeeded(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	users := decode[[]models.User](t, rec)
	require.Len(t, users, 3)
	ids := []string{users[0].UserID, users[1].UserID, users[2].UserID}
	assert.ElementsMatch(t, []string{"azeromo", "bzeromo", "czeromo"}, ids)
}

func TestV1_GetByID(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/users/bzeromo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[models.User](t, rec)
	assert.Equal(t, "bzero@bzero.com", u.Email)

	rec = do(t, h, http.MethodGet, "/api/v1/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"user not found"}`, rec.Body.String())
}

func TestV1_CreateThenGet(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/users",
		`{"userId":"dzeromo","password":"dzero","name":"도영규","email":"dzero@bzero.com","createdAt":"2025-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/users/dzeromo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.User{
		UserID: "dzeromo", Password: "dzero", Name: "도영규", Email: "dzero@bzero.com", CreatedAt: "2025-06-01",
	}, decode[models.User](t, rec))

	rec = do(t, h, http.MethodGet, "/api/v1/users", "")
	assert.Len(t, decode[[]models.User](t, rec), 4)
}

func TestV1_Replace(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/users/azeromo",
		`{"userId":"azeromo","password":"new","name":"새이름","email":"new@bzero.com","createdAt":"2025-05-27"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "새이름", decode[models.User](t, rec).Name)

	rec = do(t, h, http.MethodPut, "/api/v1/users/nobody", `{"userId":"nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/users", "")
	assert.Len(t, decode[[]models.User](t, rec), 3, "failed replace must not add a record")
}

func TestV1_Patch(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodPatch, "/api/v1/users/czeromo",
		`{"name":"김철수","password":"ignored","userId":"ignored"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[models.User](t, rec)
	assert.Equal(t, "czeromo", u.UserID)
	assert.Equal(t, "김철수", u.Name)
	assert.Equal(t, "czero", u.Password)
	assert.Equal(t, "czero@bzero.com", u.Email)

	rec = do(t, h, http.MethodPatch, "/api/v1/users/nobody", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestV1_Delete(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodDelete, "/api/v1/users/azeromo", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/v1/users/azeromo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/users/azeromo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	h := newRouter(t, nil)

	for _, body := range []string{`{"userId":`, `not json`, `{"userId":"a"} {"userId":"b"}`} {
		rec := do(t, h, http.MethodPost, "/api/v1/users", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"malformed request body"}`, rec.Body.String())
	}
}

func TestOversizedBody(t *testing.T) {
	h := newRouter(t, nil)

	body := `{"userId":"big","name":"` + strings.Repeat("a", 2<<20) + `"}`
	rec := do(t, h, http.MethodPost, "/api/v1/users", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/users/big", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestV1_Valid(t *testing.T) {
	h := newRouter(t, nil)

	t.Run("missing email", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/users/valid",
			`{"userId":"ezeromo","password":"ezero","name":"이영희"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decode[map[string]string](t, rec)
		assert.Equal(t, map[string]string{"email": "must not be blank"}, fields)
	})

	t.Run("missing email and password", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/users/valid", `{"userId":"ezeromo","name":"이영희"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decode[map[string]string](t, rec)
		assert.Len(t, fields, 2)
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})

	t.Run("valid request is echoed and not stored", func(t *testing.T) {
		body := `{"userId":"ezeromo","password":"ezero","name":"이영희","email":"ezero@bzero.com","phone":"010-1234-5678"}`
		rec := do(t, h, http.MethodPost, "/api/v1/users/valid", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, body, rec.Body.String())

		rec = do(t, h, http.MethodGet, "/api/v1/users/ezeromo", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestV2_SummariesHideCredentials(t *testing.T) {
	h := newRouter(t, repo.NewMemoryRepository(models.SeedUsers()...))

	rec := do(t, h, http.MethodGet, "/api/v2/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.NotContains(t, row, "password")
		assert.NotContains(t, row, "name")
		assert.Contains(t, row, "email")
	}

	rec = do(t, h, http.MethodPost, "/api/v2/users", `{"userId":"x"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStorePrefixesShareBackend(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v5/users", `{"userId":"fzeromo","email":"f@bzero.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/fzeromo", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// the v1 store is separate
	rec = do(t, h, http.MethodGet, "/api/v1/users/fzeromo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenRepo struct {
	repo.UserRepository
}

var errBroken = errors.New("dial tcp 10.0.0.1:5432: connection refused")

func (brokenRepo) List(context.Context) ([]models.User, error) { return nil, errBroken }
func (brokenRepo) Ping(context.Context) error                  { return errBroken }

func TestInternalErrorIsGeneric(t *testing.T) {
	h := newRouter(t, brokenRepo{})

	rec := do(t, h, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestHealthz(t *testing.T) {
	rec := do(t, newRouter(t, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, newRouter(t, brokenRepo{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(httpapi.RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(httpapi.RequestIDHeader, "trace-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get(httpapi.RequestIDHeader))
}
