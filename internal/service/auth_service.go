package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"identity-api/internal/config"
	"identity-api/internal/metrics"
	"identity-api/internal/model"
)

// UserStore is the credential store the service runs against.
type UserStore interface {
	// Create persists the user together with its roles, or nothing at all.
	Create(ctx context.Context, user model.User, roles ...string) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, id string, mutate func(*model.User) error) (model.User, error)
}

type AuthService struct {
	users       UserStore
	hasher      *PasswordHasher
	verifier    *PasswordVerifier
	tokens      *TokenIssuer
	policy      config.PasswordPolicy
	audit       *AuditService
	defaultRole string
	now         func() time.Time
}

func NewAuthService(
	users UserStore,
	hasher *PasswordHasher,
	verifier *PasswordVerifier,
	tokens *TokenIssuer,
	policy config.PasswordPolicy,
	audit *AuditService,
) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		verifier: verifier,
		tokens:   tokens,
		policy:   policy,
		audit:    audit,
		now:      time.Now,
	}
}

// SetDefaultRole grants role to every newly registered user.
func (s *AuthService) SetDefaultRole(role string) {
	s.defaultRole = strings.TrimSpace(role)
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthUser, error) {
	if err := req.Validate(); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return model.AuthUser{}, errInvalidRegistration()
	}

	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = email
	}

	reasons := passwordPolicyViolations(s.policy, req.Password)

	emailTaken := false
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		emailTaken = true
		reasons = append(reasons, fmt.Sprintf("Email '%s' is already taken.", email))
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.AuthUser{}, fmt.Errorf("register: %w", err)
	}

	if !emailTaken || !strings.EqualFold(username, email) {
		taken, err := s.users.ExistsByUsername(ctx, username)
		if err != nil {
			return model.AuthUser{}, fmt.Errorf("register: %w", err)
		}
		if taken {
			reasons = append(reasons, fmt.Sprintf("Username '%s' is already taken.", username))
		}
	}

	if len(reasons) > 0 {
		metrics.Registrations.WithLabelValues("rejected").Inc()
		s.audit.Log(ctx, model.AuditActionRegister, model.AuditActor{Email: email}, model.AuditStatusFailure, strings.Join(reasons, ", "))
		return model.AuthUser{}, errRegistrationFailed(reasons)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("register: %w", err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		CreatedAt:    s.now().UTC(),
	}

	var roles []string
	if s.defaultRole != "" {
		roles = append(roles, s.defaultRole)
	}

	if err := s.users.Create(ctx, user, roles...); err != nil {
		// Lost a race with a concurrent registration.
		switch {
		case errors.Is(err, model.ErrDuplicateEmail):
			return model.AuthUser{}, errRegistrationFailed([]string{fmt.Sprintf("Email '%s' is already taken.", email)})
		case errors.Is(err, model.ErrDuplicateUsername):
			return model.AuthUser{}, errRegistrationFailed([]string{fmt.Sprintf("Username '%s' is already taken.", username)})
		}
		return model.AuthUser{}, fmt.Errorf("register: %w", err)
	}

	metrics.Registrations.WithLabelValues("succeeded").Inc()
	s.audit.Log(ctx, model.AuditActionRegister, model.AuditActor{UserID: user.ID, Email: user.Email}, model.AuditStatusSuccess, "")
	slog.Info("user registered", "user_id", user.ID, "email", user.Email)

	return user.ToAuthUser(), nil
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.LoginResult, error) {
	if err := req.Validate(); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return model.LoginResult{}, errInvalidLogin()
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, model.ErrUserNotFound) {
		// No account, no lockout state to track.
		s.hasher.CompareDummy(req.Password)
		metrics.LoginAttempts.WithLabelValues(SignInFailed.String()).Inc()
		s.audit.Log(ctx, model.AuditActionLogin, model.AuditActor{Email: strings.TrimSpace(req.Email)}, model.AuditStatusFailure, "unknown email")
		return model.LoginResult{}, errInvalidCredentials()
	}
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: %w", err)
	}

	actor := model.AuditActor{UserID: user.ID, Email: user.Email}

	status, err := s.verifier.CheckPassword(ctx, user, req.Password, true)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues(status.String()).Inc()

	switch status {
	case SignInLockedOut:
		s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusLocked, "account locked")
		slog.Warn("login rejected: account locked", "user_id", user.ID)
		return model.LoginResult{}, errAccountLocked()
	case SignInFailed:
		s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusFailure, "wrong password")
		slog.Warn("login rejected: wrong password", "user_id", user.ID)
		return model.LoginResult{}, errInvalidCredentials()
	}

	issued, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: %w", err)
	}

	loginAt := s.now().UTC()
	user, err = s.users.Update(ctx, user.ID, func(u *model.User) error {
		u.LastLoginAt = &loginAt
		return nil
	})
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: record last login: %w", err)
	}

	s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusSuccess, "")
	slog.Info("user logged in", "user_id", user.ID, "email", user.Email)

	return model.LoginResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      user.ToAuthUser(),
	}, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*model.AuthClaims, error) {
	return s.tokens.Verify(tokenString)
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.ToAuthUser(), nil
}
