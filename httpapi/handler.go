// Package httpapi is the JSON transport over service.UserService.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
	"github.com/Skryldev/user-service/service"
	"github.com/Skryldev/user-service/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed request body")
	errBodyTooLarge  = errors.New("request body too large")
)

// Handler serves the user routes for one service. The same Handler may be
// mounted under several prefixes.
type Handler struct {
	svc    *service.UserService
	logger *slog.Logger
}

// NewHandler returns a Handler. A nil logger means slog.Default().
func NewHandler(svc *service.UserService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ─────────────────────────────────────────────────────────────────────────────
// Mounting
// ─────────────────────────────────────────────────────────────────────────────

// MountCRUD registers list, get, create, replace, patch and delete under prefix.
func (h *Handler) MountCRUD(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix, h.list)
	mux.HandleFunc("GET "+prefix+"/{id}", h.get)
	mux.HandleFunc("POST "+prefix, h.create)
	mux.HandleFunc("PUT "+prefix+"/{id}", h.replace)
	mux.HandleFunc("PATCH "+prefix+"/{id}", h.patch)
	mux.HandleFunc("DELETE "+prefix+"/{id}", h.delete)
}

// MountSummaries registers the read-only summary listing and get under prefix.
func (h *Handler) MountSummaries(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix, h.listSummaries)
	mux.HandleFunc("GET "+prefix+"/{id}", h.get)
}

// MountValidate registers POST prefix/valid, which validates a creation
// request and echoes it back without storing it.
func (h *Handler) MountValidate(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/valid", h.validate)
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "list users called")
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "list user summaries called")
	users, err := h.svc.ListSummaries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.logger.InfoContext(r.Context(), "get user called", "user_id", id)
	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := decodeBody(w, r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "create user called", "user_id", u.UserID)
	created, err := h.svc.CreateUser(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var u models.User
	if err := decodeBody(w, r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "replace user called", "user_id", id, "new_user_id", u.UserID)
	replaced, err := h.svc.ReplaceUser(r.Context(), id, u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replaced)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var p models.PatchUserParams
	if err := decodeBody(w, r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "patch user called", "user_id", id)
	patched, err := h.svc.PatchUser(r.Context(), id, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patched)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.logger.InfoContext(r.Context(), "delete user called", "user_id", id)
	removed, err := h.svc.DeleteUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !removed {
		h.writeError(w, r, repo.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "validate user called", "user_id", req.UserID)
	if err := h.svc.ValidateCreate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoding
// ─────────────────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err onto the status taxonomy. Internal failures are logged
// and answered with a generic body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := validation.AsErrors(err); ok {
		writeJSON(w, http.StatusBadRequest, ve.Fields)
		return
	}
	switch {
	case repo.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "user not found"})
	case errors.Is(err, errMalformedBody):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errMalformedBody.Error()})
	case errors.Is(err, errBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errBodyTooLarge.Error()})
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errMalformedBody
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errMalformedBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
