package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"identity-api/internal/config"
	"identity-api/internal/model"
)

const defaultTokenLifetime = 60 * time.Minute

// RoleLookup supplies the role claims embedded at issuance.
type RoleLookup interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"role,omitempty"`
}

// TokenIssuer mints and verifies HS256 bearer tokens. It holds no mutable
// state; the only randomness is the token id.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	roles    RoleLookup
	now      func() time.Time
}

// NewTokenIssuer fails on a missing or short secret so a misconfigured
// service never starts issuing tokens.
func NewTokenIssuer(cfg config.TokenConfig, roles RoleLookup) (*TokenIssuer, error) {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultTokenLifetime
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	if roles == nil {
		return nil, fmt.Errorf("token issuer: role lookup is required")
	}

	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: cfg.Lifetime,
		roles:    roles,
		now:      time.Now,
	}, nil
}

func (t *TokenIssuer) Issue(ctx context.Context, user model.User) (model.IssuedToken, error) {
	roles, err := t.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return model.IssuedToken{}, fmt.Errorf("lookup roles: %w", err)
	}

	// NumericDate has second precision; truncating first keeps exp-iat exact.
	issuedAt := t.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.lifetime)
	tokenID := uuid.NewString()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
		Email:    user.Email,
		Roles:    roles,
	}
	if t.issuer != "" {
		claims.Issuer = t.issuer
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return model.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}

	return model.IssuedToken{
		Token:     signed,
		TokenID:   tokenID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify accepts a token iff the HS256 signature matches, iat <= now < exp,
// and issuer and audience match. Every rejection returns the same error.
func (t *TokenIssuer) Verify(tokenString string) (*model.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		slog.Debug("token rejected", "error", err)
		return nil, errInvalidToken()
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, errInvalidToken()
	}

	return &model.AuthClaims{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
