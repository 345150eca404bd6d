package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourorg/saasforge/internal/domain"
)

// Token types carried in the "type" claim. Access tokens have none.
const (
	TypeRefresh                   = "refresh"
	TypeActivation                = "activation"
	TypePasswordResetConfirmation = "password_reset_confirmation"
	TypeEmailChange               = "email_change"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrUnknownAlgorithm = errors.New("unsupported signing algorithm")
)

// Claims covers access, refresh and purpose tokens. Subject holds the user id.
type Claims struct {
	Email       string           `json:"email,omitempty"`
	IsActive    bool             `json:"is_active,omitempty"`
	ActivatedAt *jwt.NumericDate `json:"activated_at,omitempty"`
	TenantID    string           `json:"tenant_id,omitempty"`
	Role        string           `json:"role,omitempty"`
	Type        string           `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenConfig holds the signing material. Access and purpose tokens share
// Secret; refresh tokens use RefreshSecret.
type TokenConfig struct {
	Secret           string
	Algorithm        string
	AccessTTL        time.Duration
	RefreshSecret    string
	RefreshAlgorithm string
	RefreshTTL       time.Duration
	PurposeTTL       time.Duration
	Issuer           string
}

type signer struct {
	method jwt.SigningMethod
	key    []byte
}

func newSigner(secret, alg string) (signer, error) {
	method := jwt.GetSigningMethod(alg)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return signer{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return signer{method: method, key: []byte(secret)}, nil
}

type TokenManager struct {
	access  signer
	refresh signer
	cfg     TokenConfig
	now     func() time.Time
}

func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.Secret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token secrets are required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
	if cfg.RefreshAlgorithm == "" {
		cfg.RefreshAlgorithm = cfg.Algorithm
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.PurposeTTL <= 0 {
		cfg.PurposeTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "saasforge"
	}
	access, err := newSigner(cfg.Secret, cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	refresh, err := newSigner(cfg.RefreshSecret, cfg.RefreshAlgorithm)
	if err != nil {
		return nil, err
	}
	return &TokenManager{access: access, refresh: refresh, cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the time source used for issuing and validating tokens.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

func (tm *TokenManager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := tm.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tm.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        domain.NewID(),
	}
}

func sign(s signer, claims Claims) (string, error) {
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// GenerateAccessToken mints a short-lived access token for u.
func (tm *TokenManager) GenerateAccessToken(u *domain.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", fmt.Errorf("user id required")
	}
	claims := Claims{
		Email:            u.Email,
		IsActive:         u.IsActive,
		TenantID:         u.TenantID,
		Role:             u.RoleID,
		RegisteredClaims: tm.registered(u.ID, tm.cfg.AccessTTL),
	}
	if u.ActivatedAt != nil {
		claims.ActivatedAt = jwt.NewNumericDate(*u.ActivatedAt)
	}
	return sign(tm.access, claims)
}

// GenerateRefreshToken mints a long-lived refresh token with the refresh key.
func (tm *TokenManager) GenerateRefreshToken(userID, tenantID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	return sign(tm.refresh, Claims{
		TenantID:         tenantID,
		Type:             TypeRefresh,
		RegisteredClaims: tm.registered(userID, tm.cfg.RefreshTTL),
	})
}

// GeneratePair issues a fresh access and refresh token for u.
func (tm *TokenManager) GeneratePair(u *domain.User) (*TokenPair, error) {
	access, err := tm.GenerateAccessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := tm.GenerateRefreshToken(u.ID, u.TenantID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// GeneratePurposeToken mints an activation, password reset or email change
// token signed with the access key.
func (tm *TokenManager) GeneratePurposeToken(u *domain.User, purpose string) (string, error) {
	if !isPurpose(purpose) {
		return "", fmt.Errorf("%w: %q", ErrWrongTokenType, purpose)
	}
	return sign(tm.access, Claims{
		Email:            u.Email,
		TenantID:         u.TenantID,
		Type:             purpose,
		RegisteredClaims: tm.registered(u.ID, tm.cfg.PurposeTTL),
	})
}

// ValidateAccessToken verifies an access token. Tokens carrying any type
// claim are rejected.
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := tm.parse(tokenString, tm.access)
	if err != nil {
		return nil, err
	}
	if claims.Type != "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ValidateRefreshToken verifies a refresh token with the refresh key.
func (tm *TokenManager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := tm.parse(tokenString, tm.refresh)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ValidatePurposeToken verifies a purpose token of the expected type.
func (tm *TokenManager) ValidatePurposeToken(tokenString, purpose string) (*Claims, error) {
	claims, err := tm.parse(tokenString, tm.access)
	if err != nil {
		return nil, err
	}
	if claims.Type != purpose || !isPurpose(purpose) {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (tm *TokenManager) parse(tokenString string, s signer) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func isPurpose(t string) bool {
	switch t {
	case TypeActivation, TypePasswordResetConfirmation, TypeEmailChange:
		return true
	}
	return false
}

// ExtractToken returns the credential of a "Bearer <token>" header.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
