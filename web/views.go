// Package web renders the server-side HTML pages: user list, user detail and
// the two creation forms.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
	"github.com/Skryldev/user-service/service"
	"github.com/Skryldev/user-service/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultUserID is shown by the detail page when no id is given.
const DefaultUserID = "azeromo"

// Views serves the HTML pages for one service.
type Views struct {
	svc    *service.UserService
	tmpl   *template.Template
	logger *slog.Logger
}

// New parses the embedded templates. A nil logger means slog.Default().
func New(svc *service.UserService, logger *slog.Logger) (*Views, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Views{svc: svc, tmpl: tmpl, logger: logger}, nil
}

// Register mounts the pages on mux.
func (v *Views) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v3/getUsers", v.users)
	mux.HandleFunc("GET /api/v3/getUser", v.user)
	mux.HandleFunc("GET /api/v3/getUser/{id}", v.user)
	mux.HandleFunc("GET /api/v3/newUser", v.newUserForm)
	mux.HandleFunc("POST /api/v3/newUser", v.newUserSubmit)
	mux.HandleFunc("GET /api/v4/newUser2", v.validatedForm)
	mux.HandleFunc("POST /api/v4/newUser2", v.validatedSubmit)
}

type page struct {
	Title   string
	Users   []models.UserSummary
	User    *models.User
	Message string
	OK      bool
	Action  string
	Fields  []formField
}

type formField struct {
	Name, Label, Type, Value, Error string
}

func (v *Views) users(w http.ResponseWriter, r *http.Request) {
	users, err := v.svc.ListSummaries(r.Context())
	if err != nil {
		v.fail(w, r, err)
		return
	}
	v.render(w, r, http.StatusOK, "users", page{Title: "Users", Users: users})
}

func (v *Views) user(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		id = DefaultUserID
	}
	u, err := v.svc.GetUser(r.Context(), id)
	switch {
	case repo.IsNotFound(err):
		v.render(w, r, http.StatusNotFound, "user", page{Title: "User", Message: "User " + id + " not found"})
	case err != nil:
		v.fail(w, r, err)
	default:
		v.render(w, r, http.StatusOK, "user", page{Title: "User", User: u})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Plain creation form: stores whatever was submitted.
// ─────────────────────────────────────────────────────────────────────────────

func (v *Views) newUserForm(w http.ResponseWriter, r *http.Request) {
	v.render(w, r, http.StatusOK, "new_user", page{
		Title:  "New user",
		Action: "/api/v3/newUser",
		Fields: fields(models.CreateUserRequest{}, nil, false),
	})
}

func (v *Views) newUserSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := parseForm(r)
	if err != nil {
		v.render(w, r, http.StatusBadRequest, "result", page{Title: "New user", Message: "Malformed form"})
		return
	}
	u, err := v.svc.CreateUser(r.Context(), req.ToUser(""))
	if err != nil {
		v.logger.ErrorContext(r.Context(), "create user from form failed", "user_id", req.UserID, "error", err)
		v.render(w, r, http.StatusInternalServerError, "result", page{
			Title: "New user", Message: "Could not create user " + req.UserID,
		})
		return
	}
	v.render(w, r, http.StatusOK, "result", page{
		Title: "New user", OK: true, Message: "User " + u.UserID + " created",
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Validated form: checks constraints, never stores.
// ─────────────────────────────────────────────────────────────────────────────

func (v *Views) validatedForm(w http.ResponseWriter, r *http.Request) {
	v.render(w, r, http.StatusOK, "new_user", page{
		Title:  "New user (validated)",
		Action: "/api/v4/newUser2",
		Fields: fields(models.CreateUserRequest{}, nil, true),
	})
}

func (v *Views) validatedSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := parseForm(r)
	if err != nil {
		v.render(w, r, http.StatusBadRequest, "result", page{Title: "New user (validated)", Message: "Malformed form"})
		return
	}
	if err := v.svc.ValidateCreate(req); err != nil {
		ve, ok := validation.AsErrors(err)
		if !ok {
			v.fail(w, r, err)
			return
		}
		v.render(w, r, http.StatusOK, "new_user", page{
			Title:  "New user (validated)",
			Action: "/api/v4/newUser2",
			Fields: fields(req, ve.Fields, true),
		})
		return
	}
	v.render(w, r, http.StatusOK, "result", page{
		Title: "New user (validated)", OK: true, Message: "User " + req.UserID + " is valid",
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func parseForm(r *http.Request) (models.CreateUserRequest, error) {
	if err := r.ParseForm(); err != nil {
		return models.CreateUserRequest{}, err
	}
	return models.CreateUserRequest{
		UserID:   r.PostForm.Get("userId"),
		Password: r.PostForm.Get("password"),
		Name:     r.PostForm.Get("name"),
		Email:    r.PostForm.Get("email"),
		Phone:    r.PostForm.Get("phone"),
	}, nil
}

// fields lays out the form inputs. The password is never echoed back.
func fields(req models.CreateUserRequest, errs map[string]string, withPhone bool) []formField {
	out := []formField{
		{Name: "userId", Label: "User ID", Type: "text", Value: req.UserID, Error: errs["userId"]},
		{Name: "password", Label: "Password", Type: "password", Error: errs["password"]},
		{Name: "name", Label: "Name", Type: "text", Value: req.Name, Error: errs["name"]},
		{Name: "email", Label: "Email", Type: "email", Value: req.Email, Error: errs["email"]},
	}
	if withPhone {
		out = append(out, formField{Name: "phone", Label: "Phone", Type: "tel", Value: req.Phone, Error: errs["phone"]})
	}
	return out
}

func (v *Views) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := v.tmpl.ExecuteTemplate(w, name, p); err != nil {
		v.logger.ErrorContext(r.Context(), "render template failed", "template", name, "error", err)
	}
}

func (v *Views) fail(w http.ResponseWriter, r *http.Request, err error) {
	v.logger.ErrorContext(r.Context(), "view failed", "path", r.URL.Path, "error", err)
	v.render(w, r, http.StatusInternalServerError, "result", page{Title: "Error", Message: "Something went wrong"})
}
