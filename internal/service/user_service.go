package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
)

// CreateUserInput is the payload of a user creation. Role defaults to
// "user".
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// UpdateUserInput changes the fields that are set.
type UpdateUserInput struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	RoleID   *string `json:"role_id,omitempty"`
}

// UserService manages the users of the database bound to the request.
type UserService struct {
	users  domain.UserRepository
	roles  domain.RoleRepository
	tokens *auth.TokenManager
	jobs   worker.Dispatcher
	logger *slog.Logger
}

func NewUserService(
	users domain.UserRepository,
	roles domain.RoleRepository,
	tokens *auth.TokenManager,
	jobs worker.Dispatcher,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, roles: roles, tokens: tokens, jobs: jobs, logger: logger}
}

func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx, tenancy.HandleFromContext(ctx))
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, tenancy.HandleFromContext(ctx), id)
}

// Create adds an inactive user and enqueues its activation email.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	h := tenancy.HandleFromContext(ctx)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		return nil, apperr.InvalidOperation("A valid email is required")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.InvalidOperation("%s", err.Error())
	}

	roleName := in.Role
	if roleName == "" {
		roleName = domain.RoleUser
	}
	role, err := s.roles.GetByName(ctx, h, roleName)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("Role '%s' not found", roleName)
		}
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: hash,
		TenantID:     h.TenantID(),
		RoleID:       role.ID,
	}
	if err := s.users.Create(ctx, h, u); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", slog.String("created_user_id", u.ID))

	token, err := s.tokens.GeneratePurposeToken(u, auth.TypeActivation)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mint activation token", slog.String("error", err.Error()))
		return u, nil
	}
	s.enqueue(ctx, worker.LabelEmailSending, worker.Email{
		To:      []string{u.Email},
		Subject: "Activate your account",
		Body:    fmt.Sprintf("Use this token to activate your account:\n\n%s\n", token),
	}, h.TenantID())
	return u, nil
}

// Update applies in to the user id. Changing the role is the caller's
// authorization concern.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*domain.User, error) {
	h := tenancy.HandleFromContext(ctx)
	u, err := s.users.GetByID(ctx, h, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if !strings.Contains(email, "@") {
			return nil, apperr.InvalidOperation("A valid email is required")
		}
		u.Email = email
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.InvalidOperation("%s", err.Error())
		}
		u.PasswordHash = hash
	}
	if in.RoleID != nil {
		if _, err := s.roles.GetByID(ctx, h, *in.RoleID); err != nil {
			return nil, err
		}
		u.RoleID = *in.RoleID
	}
	if err := s.users.Update(ctx, h, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes the user and enqueues the purge of its cached responses.
func (s *UserService) Delete(ctx context.Context, id string) error {
	h := tenancy.HandleFromContext(ctx)
	if err := s.users.Delete(ctx, h, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user deleted", slog.String("deleted_user_id", id))
	s.enqueue(ctx, worker.LabelPostDeleteCleanup, worker.PostDeleteCleanup{UserID: id}, h.TenantID())
	return nil
}

// EnsureHostAdmin creates the host admin role and an active operator account
// in the main database. Existing accounts are returned unchanged.
func (s *UserService) EnsureHostAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	h := domain.MainHandle()
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, apperr.InvalidOperation("A valid email is required")
	}
	if u, err := s.users.GetByEmail(ctx, h, email); err == nil {
		return u, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	role, err := s.roles.GetByName(ctx, h, domain.RoleHostAdmin)
	if apperr.Is(err, apperr.KindNotFound) {
		role = domain.HostAdminRole()
		err = s.roles.Create(ctx, h, role)
	}
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.InvalidOperation("%s", err.Error())
	}
	now := time.Now().UTC()
	u := &domain.User{
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
		ActivatedAt:  &now,
	}
	if err := s.users.Create(ctx, h, u); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "host admin created", slog.String("created_user_id", u.ID))
	return u, nil
}

func (s *UserService) enqueue(ctx context.Context, label string, payload any, tenantID string) {
	if err := s.jobs.Enqueue(ctx, label, payload, tenantID); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue job",
			slog.String("job", label),
			slog.String("error", err.Error()),
		)
	}
}

// RoleService exposes the roles of the database bound to the request.
type RoleService struct {
	roles domain.RoleRepository
}

func NewRoleService(roles domain.RoleRepository) *RoleService {
	return &RoleService{roles: roles}
}

func (s *RoleService) List(ctx context.Context) ([]*domain.Role, error) {
	return s.roles.List(ctx, tenancy.HandleFromContext(ctx))
}
