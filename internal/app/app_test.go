package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"identity-api/internal/config"
	"identity-api/internal/model"
	"identity-api/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:    config.StoreDriverMemory,
		RequestTimeout: 5 * time.Second,
		Token: config.TokenConfig{
			Secret:   "app-test-secret-app-test-secret-0123",
			Issuer:   "identity-api",
			Audience: "identity-api-clients",
			Lifetime: 60 * time.Minute,
		},
		Password: config.PasswordPolicy{
			MinLength:        6,
			RequireDigit:     true,
			RequireLowercase: true,
			RequireUppercase: true,
			BcryptCost:       bcrypt.MinCost,
		},
		Lockout:          config.LockoutPolicy{MaxFailedAttempts: 5, Window: 5 * time.Minute},
		DefaultRole:      "user",
		RateLimitRPM:     -1,
		AuthRateLimitRPM: 1000,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryStore) {
	t.Helper()

	memory := repository.NewMemoryStore()
	h, err := buildHandler(testConfig(), stores{users: memory, roles: memory, audit: memory, health: memory})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, memory
}

func call(t *testing.T, srv *httptest.Server, method string, path string, body any, token string) (int, model.AuthResponse) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded model.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestBuildHandlerRejectsWeakSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Token.Secret = "too-short"

	memory := repository.NewMemoryStore()
	_, err := buildHandler(cfg, stores{users: memory, roles: memory, audit: memory, health: memory})
	require.Error(t, err)
}

func TestAuthFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := call(t, srv, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email: "a@x.com", Password: "Abcdef1", ConfirmPassword: "Abcdef1",
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.Equal(t, "User registered successfully", body.Message)
	require.NotEmpty(t, body.UserID)
	require.Equal(t, "a@x.com", body.Email)
	require.Equal(t, "a@x.com", body.Username)

	status, body = call(t, srv, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email: "a@x.com", Password: "Abcdef1", ConfirmPassword: "Abcdef1",
	}, "")
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.Success)
	require.Equal(t, "Registration failed: Email 'a@x.com' is already taken.", body.Message)

	status, body = call(t, srv, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "Abcdef1"}, "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.Equal(t, "Login successful", body.Message)
	require.NotEmpty(t, body.Token)
	require.NotNil(t, body.ExpiresAt)

	token := body.Token
	status, body = call(t, srv, http.MethodGet, "/api/v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "a@x.com", body.Email)

	status, body = call(t, srv, http.MethodGet, "/api/v1/auth/me", nil, token+"x")
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, body.Success)

	status, _ = call(t, srv, http.MethodGet, "/api/v1/audit", nil, token)
	require.Equal(t, http.StatusForbidden, status)
}

func TestLockoutOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := call(t, srv, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email: "a@x.com", Password: "Abcdef1", ConfirmPassword: "Abcdef1",
	}, "")
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 4; i++ {
		status, body := call(t, srv, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "wrong"}, "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "Invalid email or password", body.Message)
		require.Empty(t, body.Token)
	}

	status, body := call(t, srv, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Account locked due to multiple failed login attempts", body.Message)

	status, body = call(t, srv, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "Abcdef1"}, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Account locked due to multiple failed login attempts", body.Message)
	require.Empty(t, body.Token)
}

func TestMalformedBodies(t *testing.T) {
	srv, _ := newTestServer(t)

	for path, message := range map[string]string{
		"/api/v1/auth/register": "Invalid registration data",
		"/api/v1/auth/login":    "Invalid login data",
	} {
		resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)

		var body model.AuthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		require.False(t, body.Success)
		require.Equal(t, message, body.Message)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := call(t, srv, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.Equal(t, "ok", body.Message)
}

func TestAuthRateLimitIgnoresForwardedHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimitRPM = 2

	memory := repository.NewMemoryStore()
	h, err := buildHandler(cfg, stores{users: memory, roles: memory, audit: memory, health: memory})
	require.NoError(t, err)

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			bytes.NewBufferString(`{"email":"a@x.com","password":"Abcdef1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.RemoteAddr = "198.51.100.20:40000"

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	require.Equal(t, 48, limited)
}
