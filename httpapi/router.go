package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/user-service/service"
)

// RouterConfig wires services to route prefixes.
type RouterConfig struct {
	// Scratch backs /api/v1/users. It is expected to be an in-memory store
	// seeded with the fixture users.
	Scratch *service.UserService
	// Store backs /api/v2/users, /api/v5/users and /users.
	Store *service.UserService
	// Mounts registers extra routes, e.g. the HTML views.
	Mounts []func(*http.ServeMux)
	Logger *slog.Logger
}

// NewRouter builds the complete HTTP handler, wrapped in request logging.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	scratch := NewHandler(cfg.Scratch, logger)
	scratch.MountCRUD(mux, "/api/v1/users")
	scratch.MountValidate(mux, "/api/v1/users")

	store := NewHandler(cfg.Store, logger)
	store.MountSummaries(mux, "/api/v2/users")
	store.MountCRUD(mux, "/api/v5/users")
	store.MountCRUD(mux, "/users")

	mux.HandleFunc("GET /healthz", healthz(cfg.Store, logger))

	for _, mount := range cfg.Mounts {
		mount(mux)
	}
	return RequestLogger(logger)(mux)
}

func healthz(svc *service.UserService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Request logging
// ─────────────────────────────────────────────────────────────────────────────

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one record per request. An incoming X-Request-ID is
// kept, otherwise a random one is assigned; either way it is echoed back.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
