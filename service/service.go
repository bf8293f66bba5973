// Package service sits between the transports and a repo.UserRepository.
// It delegates nearly everything; what it adds is createdAt stamping, the
// summary projection, validated creation and first-start seeding.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
	"github.com/Skryldev/user-service/validation"
)

// DateLayout is the createdAt format stamped on records created without one.
const DateLayout = "2006-01-02"

// UserService implements the user use cases over one repository.
type UserService struct {
	repo      repo.UserRepository
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises a UserService.
type Option func(*UserService)

// WithLogger sets the logger (slog.Default() otherwise).
func WithLogger(l *slog.Logger) Option { return func(s *UserService) { s.logger = l } }

// WithClock overrides the time source used for createdAt.
func WithClock(now func() time.Time) Option { return func(s *UserService) { s.now = now } }

// New returns a service over r.
func New(r repo.UserRepository, v *validation.Validator, opts ...Option) *UserService {
	s := &UserService{
		repo:      r,
		validator: v,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

// ListSummaries returns every user without password or name.
func (s *UserService) ListSummaries(ctx context.Context) ([]models.UserSummary, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// GetUser returns repo.ErrNotFound when id is unknown.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateUser stores u, stamping today's date when CreatedAt is empty.
// An existing record with the same id is overwritten.
func (s *UserService) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.CreatedAt == "" {
		u.CreatedAt = s.now().Format(DateLayout)
	}
	return s.repo.Insert(ctx, u)
}

// ValidateCreate checks req against its declared constraints without storing
// anything. The result is nil or *validation.Errors.
func (s *UserService) ValidateCreate(req models.CreateUserRequest) error {
	return s.validator.Validate(req)
}

// RegisterUser validates req and stores it.
func (s *UserService) RegisterUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if err := s.ValidateCreate(req); err != nil {
		return nil, err
	}
	return s.repo.Insert(ctx, req.ToUser(s.now().Format(DateLayout)))
}

// ReplaceUser returns repo.ErrNotFound when id is unknown.
func (s *UserService) ReplaceUser(ctx context.Context, id string, u models.User) (*models.User, error) {
	return s.repo.Replace(ctx, id, u)
}

// PatchUser returns repo.ErrNotFound when id is unknown. An empty patch is a
// plain read.
func (s *UserService) PatchUser(ctx context.Context, id string, p models.PatchUserParams) (*models.User, error) {
	if p.IsEmpty() {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.Patch(ctx, id, p)
}

// DeleteUser reports whether a record was removed.
func (s *UserService) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func (s *UserService) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, email)
}

func (s *UserService) Ping(ctx context.Context) error { return s.repo.Ping(ctx) }

// Seed loads users into an empty repository and does nothing otherwise.
func (s *UserService) Seed(ctx context.Context, users []models.User) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("service: seed: %w", err)
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "seed skipped, repository not empty", "count", n)
		return nil
	}
	if err := s.repo.BatchInsert(ctx, users); err != nil {
		if errors.Is(err, repo.ErrDuplicateID) {
			// lost a race with another instance seeding the same store
			s.logger.WarnContext(ctx, "seed skipped, ids already present")
			return nil
		}
		return fmt.Errorf("service: seed: %w", err)
	}
	s.logger.InfoContext(ctx, "seeded users", "count", len(users))
	return nil
}
