package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/security/ratelimit"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const loginWindow = time.Minute

// AuthService handles authentication operations against the database bound
// to the request.
type AuthService struct {
	users         domain.UserRepository
	tokens        *auth.TokenManager
	sink          *audit.Sink
	limiter       *ratelimit.Limiter
	loginAttempts int
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	tokens *auth.TokenManager,
	sink *audit.Sink,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		users:  users,
		tokens: tokens,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// WithLoginThrottle limits failed and successful login attempts per email
// and database to attempts per minute.
func (s *AuthService) WithLoginThrottle(limiter *ratelimit.Limiter, attempts int) *AuthService {
	s.limiter = limiter
	s.loginAttempts = attempts
	return s
}

// Login verifies the credentials and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Unauthorized("Email and password are required")
	}

	h := tenancy.HandleFromContext(ctx)
	key := h.Database() + ":" + email
	if s.limiter != nil && !s.limiter.AllowStrict(key, s.loginAttempts, loginWindow) {
		s.logger.Warn("login throttled", slog.String("database", h.Database()))
		return nil, apperr.TooManyRequests("Too many login attempts")
	}

	user, err := s.users.GetByEmail(ctx, h, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.logger.Info("login attempt with unknown email", slog.String("database", h.Database()))
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		s.logger.Info("login failed with wrong password", slog.String("user_id", user.ID))
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	pair, err := s.tokens.GeneratePair(user)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		s.limiter.Reset(key)
	}

	s.record(ctx, audit.ActionLogin, user)
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
	)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The token must have been
// issued by the tenant the request is bound to.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token").Wrap(err)
	}
	h := tenancy.HandleFromContext(ctx)
	if claims.TenantID != h.TenantID() {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	user, err := s.users.GetByID(ctx, h, claims.UserID())
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("Invalid refresh token")
		}
		return nil, err
	}
	return s.tokens.GeneratePair(user)
}

// Logout records the logout. Tokens are stateless and expire on their own.
func (s *AuthService) Logout(ctx context.Context, p *domain.Principal) {
	s.record(ctx, audit.ActionLogout, &domain.User{ID: p.ID, TenantID: p.TenantID})
}

// Me returns the stored account of p.
func (s *AuthService) Me(ctx context.Context, p *domain.Principal) (*domain.User, error) {
	return s.users.GetByID(ctx, tenancy.HandleFromContext(ctx), p.ID)
}

// Activate marks the account named by an activation token as active.
// Activating twice is not an error.
func (s *AuthService) Activate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.ValidatePurposeToken(token, auth.TypeActivation)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid activation token").Wrap(err)
	}
	h := tenancy.HandleFromContext(ctx)
	if claims.TenantID != h.TenantID() {
		return nil, apperr.Unauthorized("Invalid activation token")
	}
	user, err := s.users.GetByID(ctx, h, claims.UserID())
	if err != nil {
		return nil, err
	}
	if user.IsActive && user.ActivatedAt != nil {
		return user, nil
	}
	now := s.now().UTC()
	user.IsActive = true
	user.ActivatedAt = &now
	if err := s.users.Update(ctx, h, user); err != nil {
		return nil, err
	}
	s.logger.Info("user activated", slog.String("user_id", user.ID))
	return user, nil
}

func (s *AuthService) record(ctx context.Context, action audit.Action, u *domain.User) {
	if s.sink == nil {
		return
	}
	// Write failures are logged by the sink.
	_ = s.sink.Record(ctx, audit.Entry{
		Entity:   "account",
		Action:   action,
		UserID:   u.ID,
		TenantID: tenancy.TenantIDFromContext(ctx),
	})
}

