package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"identity-api/internal/config"
	"identity-api/internal/model"
	"identity-api/pkg/apierror"
)

func requireRejected(t *testing.T, err error) {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, CodeUnauthorized, apiErr.Code)
	require.Equal(t, "UNAUTHORIZED: "+MsgInvalidToken, err.Error())
}

func TestNewTokenIssuer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	t.Run("refuses a missing secret", func(t *testing.T) {
		cfg := testTokenConfig
		cfg.Secret = ""
		_, err := NewTokenIssuer(cfg, env.store)
		require.ErrorContains(t, err, "JWT_SECRET is required")
	})

	t.Run("refuses a weak secret", func(t *testing.T) {
		cfg := testTokenConfig
		cfg.Secret = "short"
		_, err := NewTokenIssuer(cfg, env.store)
		require.Error(t, err)
	})

	t.Run("requires a role lookup", func(t *testing.T) {
		_, err := NewTokenIssuer(testTokenConfig, nil)
		require.Error(t, err)
	})

	t.Run("defaults the lifetime to sixty minutes", func(t *testing.T) {
		cfg := testTokenConfig
		cfg.Lifetime = 0
		issuer, err := NewTokenIssuer(cfg, env.store)
		require.NoError(t, err)
		require.Equal(t, 60*time.Minute, issuer.lifetime)
	})
}

func TestTokenIssuer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trips identity and role claims", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1", "editor", "admin")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		claims, err := env.issuer.Verify(issued.Token)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.UserID)
		require.Equal(t, user.Username, claims.Username)
		require.Equal(t, user.Email, claims.Email)
		require.Equal(t, []string{"editor", "admin"}, claims.Roles)
		require.Equal(t, issued.TokenID, claims.TokenID)
		require.Equal(t, env.clock.Now(), claims.IssuedAt)
	})

	t.Run("expiry is exactly issued-at plus the lifetime", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)
		require.Equal(t, 60*time.Minute, issued.ExpiresAt.Sub(issued.IssuedAt))

		claims, err := env.issuer.Verify(issued.Token)
		require.NoError(t, err)
		require.Equal(t, 60*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt))
		require.True(t, claims.ExpiresAt.After(claims.IssuedAt))
	})

	t.Run("carries issuer and audience", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		parsed, _, err := jwt.NewParser().ParseUnverified(issued.Token, &tokenClaims{})
		require.NoError(t, err)
		require.Equal(t, "HS256", parsed.Header["alg"])
		require.Equal(t, "JWT", parsed.Header["typ"])

		claims := parsed.Claims.(*tokenClaims)
		require.Equal(t, testTokenConfig.Issuer, claims.Issuer)
		require.Equal(t, jwt.ClaimStrings{testTokenConfig.Audience}, claims.Audience)
	})

	t.Run("tokens minted in the same instant differ", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		first, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)
		second, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		require.NotEqual(t, first.TokenID, second.TokenID)
		require.NotEqual(t, first.Token, second.Token)
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		cfg := testTokenConfig
		cfg.Secret = strings.Repeat("x", config.MinSecretLength)
		other, err := NewTokenIssuer(cfg, env.store)
		require.NoError(t, err)
		other.now = env.clock.Now

		issued, err := other.Issue(ctx, user)
		require.NoError(t, err)

		_, err = env.issuer.Verify(issued.Token)
		requireRejected(t, err)
	})

	t.Run("rejects expired tokens and accepts until the last second", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		env.clock.Advance(60*time.Minute - time.Second)
		_, err = env.issuer.Verify(issued.Token)
		require.NoError(t, err)

		env.clock.Advance(time.Second)
		_, err = env.issuer.Verify(issued.Token)
		requireRejected(t, err)
	})

	t.Run("rejects tokens used before issued-at", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		env.clock.Advance(-time.Minute)
		_, err = env.issuer.Verify(issued.Token)
		requireRejected(t, err)
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		parts := strings.Split(issued.Token, ".")
		require.Len(t, parts, 3)
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)
		forged := strings.Replace(string(payload), `"email":"a@x.com"`, `"email":"b@x.com"`, 1)
		require.NotEqual(t, string(payload), forged)
		parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

		_, err = env.issuer.Verify(strings.Join(parts, "."))
		requireRejected(t, err)
	})

	t.Run("rejects unsigned tokens", func(t *testing.T) {
		env := newTestEnv(t)
		now := env.clock.Now()

		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    testTokenConfig.Issuer,
				Audience:  jwt.ClaimStrings{testTokenConfig.Audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = env.issuer.Verify(unsigned)
		requireRejected(t, err)
	})

	t.Run("rejects foreign issuer or audience", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		for _, mutate := range []func(*config.TokenConfig){
			func(c *config.TokenConfig) { c.Issuer = "someone-else" },
			func(c *config.TokenConfig) { c.Audience = "other-clients" },
		} {
			cfg := testTokenConfig
			mutate(&cfg)
			foreign, err := NewTokenIssuer(cfg, env.store)
			require.NoError(t, err)
			foreign.now = env.clock.Now

			issued, err := foreign.Issue(ctx, user)
			require.NoError(t, err)

			_, err = env.issuer.Verify(issued.Token)
			requireRejected(t, err)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.issuer.Verify("not.a.jwt")
		requireRejected(t, err)
	})

	t.Run("issues without roles", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.seedUser(t, "a@x.com", "Abcdef1")

		issued, err := env.issuer.Issue(ctx, user)
		require.NoError(t, err)

		claims, err := env.issuer.Verify(issued.Token)
		require.NoError(t, err)
		require.Empty(t, claims.Roles)
		require.False(t, claims.HasAnyRole("admin"))
	})
}

var _ RoleLookup = (*stubRoles)(nil)

type stubRoles struct{ err error }

func (s *stubRoles) RolesForUser(context.Context, string) ([]string, error) {
	return nil, s.err
}

func TestTokenIssuerRoleLookupFailure(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer(testTokenConfig, &stubRoles{err: context.DeadlineExceeded})
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), model.User{ID: "u1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
