package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"identity-api/internal/config"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A mismatch is not an error;
// a malformed hash is.
func (h *PasswordHasher) Compare(hash string, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	// Passwords over 72 bytes were never accepted at registration.
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}

// CompareDummy burns the same work as a real comparison. It is used when no
// account matches so response time does not reveal whether an email exists.
func (h *PasswordHasher) CompareDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

// passwordPolicyViolations lists every rule the password breaks, in a fixed order.
func passwordPolicyViolations(policy config.PasswordPolicy, password string) []string {
	var (
		reasons                                []string
		hasDigit, hasLower, hasUpper, hasOther bool
	)

	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		default:
			hasOther = true
		}
	}

	if len([]rune(password)) < policy.MinLength {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", policy.MinLength))
	}
	if len(password) > maxPasswordBytes {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordBytes))
	}
	if policy.RequireNonAlphanumeric && !hasOther {
		reasons = append(reasons, "Passwords must have at least one non alphanumeric character.")
	}
	if policy.RequireDigit && !hasDigit {
		reasons = append(reasons, "Passwords must have at least one digit ('0'-'9').")
	}
	if policy.RequireLowercase && !hasLower {
		reasons = append(reasons, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if policy.RequireUppercase && !hasUpper {
		reasons = append(reasons, "Passwords must have at least one uppercase ('A'-'Z').")
	}

	return reasons
}
