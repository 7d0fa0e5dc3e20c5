package service

import (
	"context"
	"fmt"
	"time"

	"identity-api/internal/config"
	"identity-api/internal/metrics"
	"identity-api/internal/model"
)

type SignInStatus int

const (
	SignInFailed SignInStatus = iota
	SignInSucceeded
	SignInLockedOut
)

func (s SignInStatus) String() string {
	switch s {
	case SignInSucceeded:
		return "succeeded"
	case SignInLockedOut:
		return "locked_out"
	default:
		return "failed"
	}
}

type userUpdater interface {
	Update(ctx context.Context, id string, mutate func(*model.User) error) (model.User, error)
}

// PasswordVerifier checks passwords and drives the per-user lockout state:
//
//	Active + correct   -> succeeded, counter reset
//	Active + wrong     -> counter+1; at MaxFailedAttempts lockout-end = now+Window
//	Locked (now < end) -> locked out, password not checked, counter untouched
//
// An expired lockout is cleared on the next attempt.
type PasswordVerifier struct {
	users  userUpdater
	hasher *PasswordHasher
	policy config.LockoutPolicy
	now    func() time.Time
}

func NewPasswordVerifier(users userUpdater, hasher *PasswordHasher, policy config.LockoutPolicy) *PasswordVerifier {
	return &PasswordVerifier{
		users:  users,
		hasher: hasher,
		policy: policy,
		now:    time.Now,
	}
}

// CheckPassword evaluates one sign-in attempt for user. The bcrypt comparison
// runs outside the store's per-user lock; the lockout state is re-read and
// updated atomically inside it so concurrent failures are all counted.
func (v *PasswordVerifier) CheckPassword(ctx context.Context, user model.User, password string, lockoutOnFailure bool) (SignInStatus, error) {
	now := v.now().UTC()
	if user.IsLockedOut(now) {
		return SignInLockedOut, nil
	}

	matched, err := v.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return SignInFailed, err
	}

	if !matched && !lockoutOnFailure {
		return SignInFailed, nil
	}

	status := SignInFailed
	lockedNow := false
	_, err = v.users.Update(ctx, user.ID, func(u *model.User) error {
		if u.IsLockedOut(now) {
			status = SignInLockedOut
			return nil
		}
		if u.LockoutEnd != nil {
			u.LockoutEnd = nil
			u.FailedAccessCount = 0
		}

		if matched {
			u.FailedAccessCount = 0
			status = SignInSucceeded
			return nil
		}

		u.FailedAccessCount++
		if u.FailedAccessCount >= v.policy.MaxFailedAttempts {
			lockoutEnd := now.Add(v.policy.Window)
			u.LockoutEnd = &lockoutEnd
			status = SignInLockedOut
			lockedNow = true
		}
		return nil
	})
	if err != nil {
		return SignInFailed, fmt.Errorf("record sign-in attempt: %w", err)
	}
	if lockedNow {
		metrics.Lockouts.Inc()
	}

	return status, nil
}
