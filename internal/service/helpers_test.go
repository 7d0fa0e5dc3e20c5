package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"identity-api/internal/config"
	"identity-api/internal/model"
	"identity-api/internal/repository"
)

const testSecret = "test-secret-test-secret-test-secret"

var (
	testTokenConfig = config.TokenConfig{
		Secret:   testSecret,
		Issuer:   "identity-api-test",
		Audience: "identity-api-test-clients",
		Lifetime: 60 * time.Minute,
	}
	testPasswordPolicy = config.PasswordPolicy{
		MinLength:        6,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
		BcryptCost:       bcrypt.MinCost,
	}
	testLockoutPolicy = config.LockoutPolicy{MaxFailedAttempts: 5, Window: 5 * time.Minute}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 17, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	hasher   *PasswordHasher
	verifier *PasswordVerifier
	issuer   *TokenIssuer
	service  *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := newFakeClock()

	hasher := NewPasswordHasher(bcrypt.MinCost)
	verifier := NewPasswordVerifier(store, hasher, testLockoutPolicy)
	verifier.now = clock.Now

	issuer, err := NewTokenIssuer(testTokenConfig, store)
	require.NoError(t, err)
	issuer.now = clock.Now

	audit := NewAuditService(store)
	audit.now = clock.Now

	svc := NewAuthService(store, hasher, verifier, issuer, testPasswordPolicy, audit)
	svc.now = clock.Now

	return &testEnv{
		store:    store,
		clock:    clock,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		service:  svc,
	}
}

// seedUser stores a user directly, bypassing Register.
func (e *testEnv) seedUser(t *testing.T, email string, password string, roles ...string) model.User {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)

	user := model.User{
		ID:           "user-" + email,
		Username:     email,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    e.clock.Now(),
	}
	require.NoError(t, e.store.Create(context.Background(), user, roles...))
	return user
}

func (e *testEnv) reload(t *testing.T, id string) model.User {
	t.Helper()

	user, err := e.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return user
}
