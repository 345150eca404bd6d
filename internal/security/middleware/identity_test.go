package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/repository/memory"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const tenantID = "0123456789abcdef01234567"

type identityFixture struct {
	tokens  *auth.TokenManager
	users   *memory.UserRepository
	roles   *memory.RoleRepository
	decoder *IdentityDecoder
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	tokens, err := auth.NewTokenManager(auth.TokenConfig{Secret: "access-secret", RefreshSecret: "refresh-secret"})
	require.NoError(t, err)
	dbs := memory.NewDatabases()
	users := memory.NewUserRepository(dbs)
	roles := memory.NewRoleRepository(dbs)
	return &identityFixture{
		tokens:  tokens,
		users:   users,
		roles:   roles,
		decoder: NewIdentityDecoder(tokens, users, roles, nil),
	}
}

func (f *identityFixture) addUser(t *testing.T, h domain.DataHandle, perms ...domain.Permission) *domain.User {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{Email: domain.NewID() + "@example.com", TenantID: h.TenantID(), IsActive: true}
	if perms != nil {
		role := &domain.Role{Name: domain.NewID(), Permissions: perms, TenantID: h.TenantID()}
		require.NoError(t, f.roles.Create(ctx, h, role))
		u.RoleID = role.ID
	}
	require.NoError(t, f.users.Create(ctx, h, u))
	return u
}

func (f *identityFixture) bearer(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, err := f.tokens.GenerateAccessToken(u)
	require.NoError(t, err)
	return "Bearer " + tok
}

func tenantCtx() context.Context {
	return tenancy.WithHandle(context.Background(), domain.TenantHandle(tenantID), &domain.Tenant{ID: tenantID})
}

func TestDecodeNoHeaderIsAnonymous(t *testing.T) {
	f := newIdentityFixture(t)
	p, err := f.decoder.Decode(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDecodeLoadsRolePermissions(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.TenantHandle(tenantID), domain.PermUserView, domain.PermRoleView)

	p, err := f.decoder.Decode(tenantCtx(), f.bearer(t, u))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, u.ID, p.ID)
	assert.Equal(t, tenantID, p.TenantID)
	assert.True(t, p.HasRole)
	assert.True(t, p.Permissions.HasAll(domain.PermUserView, domain.PermRoleView))
	assert.False(t, p.Permissions.Has(domain.PermFullAccess))
}

func TestDecodeUserWithoutRole(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.MainHandle())

	p, err := f.decoder.Decode(context.Background(), f.bearer(t, u))
	require.NoError(t, err)
	assert.False(t, p.HasRole)
	assert.Empty(t, p.Permissions)
}

func TestDecodeRejectsTenantMismatch(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.TenantHandle(tenantID), domain.PermFullAccess)

	// A tenant token on a host request.
	_, err := f.decoder.Decode(context.Background(), f.bearer(t, u))
	assert.ErrorIs(t, err, ErrTenantMismatch)

	// A host token without host rights on a tenant request.
	hostUser := f.addUser(t, domain.MainHandle(), domain.PermUserView)
	_, err = f.decoder.Decode(tenantCtx(), f.bearer(t, hostUser))
	assert.ErrorIs(t, err, ErrTenantMismatch)

	// Host administrators may act on any tenant.
	admin := f.addUser(t, domain.MainHandle(), domain.PermHostManageTenants)
	p, err := f.decoder.Decode(tenantCtx(), f.bearer(t, admin))
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.ID)
}

func TestDecodeRejectsBadTokens(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.MainHandle(), domain.PermFullAccess)

	refresh, err := f.tokens.GenerateRefreshToken(u.ID, "")
	require.NoError(t, err)
	purpose, err := f.tokens.GeneratePurposeToken(u, auth.TypeActivation)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"refresh token", "Bearer " + refresh},
		{"purpose token", "Bearer " + purpose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.decoder.Decode(context.Background(), tt.header)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestDecodeDeletedUser(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.MainHandle(), domain.PermFullAccess)
	header := f.bearer(t, u)
	require.NoError(t, f.users.Delete(context.Background(), domain.MainHandle(), u.ID))

	_, err := f.decoder.Decode(context.Background(), header)
	assert.Error(t, err)
}

func TestIdentityMiddleware(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.addUser(t, domain.MainHandle(), domain.PermFullAccess)

	var got *domain.Principal
	h := f.decoder.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipalFromContext(r.Context())
	}))

	t.Run("valid token", func(t *testing.T) {
		got = nil
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Authorization", f.bearer(t, u))
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, got)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("rejected token continues anonymously", func(t *testing.T) {
		got = &domain.Principal{}
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Authorization", "Bearer junk")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		old, err := auth.NewTokenManager(auth.TokenConfig{
			Secret: "access-secret", RefreshSecret: "refresh-secret", AccessTTL: time.Minute,
		})
		require.NoError(t, err)
		tok, err := old.WithClock(func() time.Time { return past }).GenerateAccessToken(u)
		require.NoError(t, err)

		got = &domain.Principal{}
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Nil(t, got)
	})
}
