package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
)

func seedRoles(t *testing.T, f *fixture) map[string]string {
	t.Helper()
	ctx := tenantCtx()
	h := tenancy.HandleFromContext(ctx)
	ids := map[string]string{}
	for _, r := range domain.DefaultRoles(tenantID) {
		require.NoError(t, f.roles.Create(ctx, h, r))
		ids[r.Name] = r.ID
	}
	return ids
}

func TestCreateUserSendsActivationEmail(t *testing.T) {
	f := newFixture(t)
	roles := seedRoles(t, f)
	jobs := &recordingDispatcher{}
	s := NewUserService(f.users, f.roles, f.tokens, jobs, nil)
	ctx := tenantCtx()

	u, err := s.Create(ctx, CreateUserInput{Email: " Carol@Example.com", Password: "Password123"})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", u.Email)
	assert.Equal(t, roles[domain.RoleUser], u.RoleID)
	assert.Equal(t, tenantID, u.TenantID)
	assert.False(t, u.IsActive)

	require.Equal(t, []string{worker.LabelEmailSending}, jobs.labels())
	mail := jobs.jobs[0].payload.(worker.Email)
	assert.Equal(t, []string{"carol@example.com"}, mail.To)
	assert.Equal(t, tenantID, jobs.jobs[0].tenantID)

	// The mailed token activates the account.
	lines := strings.Split(strings.TrimSpace(mail.Body), "\n")
	token := lines[len(lines)-1]
	activated, err := NewAuthService(f.users, f.tokens, nil, nil).Activate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, activated.ID)
	assert.True(t, activated.IsActive)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	seedRoles(t, f)
	s := NewUserService(f.users, f.roles, f.tokens, &recordingDispatcher{}, nil)
	ctx := tenantCtx()

	_, err := s.Create(ctx, CreateUserInput{Email: "nope", Password: "Password123"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))

	_, err = s.Create(ctx, CreateUserInput{Email: "a@b.test", Password: "short"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))

	_, err = s.Create(ctx, CreateUserInput{Email: "a@b.test", Password: "Password123", Role: "pilot"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = s.Create(ctx, CreateUserInput{Email: "a@b.test", Password: "Password123"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateUserInput{Email: "A@B.test", Password: "Password123"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	roles := seedRoles(t, f)
	s := NewUserService(f.users, f.roles, f.tokens, &recordingDispatcher{}, nil)
	ctx := tenantCtx()
	u := f.addUser(t, ctx, "dave@example.com", "Password123")

	email := "David@Example.com"
	password := "Password456"
	admin := roles[domain.RoleAdmin]
	updated, err := s.Update(ctx, u.ID, UpdateUserInput{Email: &email, Password: &password, RoleID: &admin})
	require.NoError(t, err)
	assert.Equal(t, "david@example.com", updated.Email)
	assert.Equal(t, admin, updated.RoleID)

	stored, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "Password456"))

	missing := "ffffffffffffffffffffffff"
	_, err = s.Update(ctx, u.ID, UpdateUserInput{RoleID: &missing})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteUserEnqueuesCleanup(t *testing.T) {
	f := newFixture(t)
	jobs := &recordingDispatcher{}
	s := NewUserService(f.users, f.roles, f.tokens, jobs, nil)
	ctx := tenantCtx()
	u := f.addUser(t, ctx, "erin@example.com", "Password123")

	require.NoError(t, s.Delete(ctx, u.ID))
	_, err := s.Get(ctx, u.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.Equal(t, []string{worker.LabelPostDeleteCleanup}, jobs.labels())
	assert.Equal(t, worker.PostDeleteCleanup{UserID: u.ID}, jobs.jobs[0].payload)
	assert.Equal(t, tenantID, jobs.jobs[0].tenantID)

	err = s.Delete(ctx, u.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Len(t, jobs.labels(), 1)
}

func TestListUsersAndRolesArePerDatabase(t *testing.T) {
	f := newFixture(t)
	seedRoles(t, f)
	users := NewUserService(f.users, f.roles, f.tokens, &recordingDispatcher{}, nil)
	roles := NewRoleService(f.roles)
	ctx := tenantCtx()
	f.addUser(t, ctx, "a@example.com", "Password123")

	list, err := users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	rs, err := roles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rs, 4)

	hostCtx := tenancy.WithHandle(ctx, domain.MainHandle(), nil)
	list, err = users.List(hostCtx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnsureHostAdmin(t *testing.T) {
	f := newFixture(t)
	s := NewUserService(f.users, f.roles, f.tokens, &recordingDispatcher{}, nil)
	ctx := context.Background()

	u, err := s.EnsureHostAdmin(ctx, " Ops@Example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", u.Email)
	assert.True(t, u.IsActive)
	require.NotNil(t, u.ActivatedAt)

	role, err := f.roles.GetByID(ctx, domain.MainHandle(), u.RoleID)
	require.NoError(t, err)
	assert.Contains(t, role.Permissions, domain.PermHostManageTenants)

	again, err := s.EnsureHostAdmin(ctx, "ops@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	roles, err := f.roles.List(ctx, domain.MainHandle())
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}
