package model

import (
	"strings"
	"time"
)

type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	FirstName         string     `json:"first_name,omitempty"`
	LastName          string     `json:"last_name,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	FailedAccessCount int        `json:"-"`
	LockoutEnd        *time.Time `json:"-"`
}

// IsLockedOut reports whether the lockout window is still open at now.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

func (u User) ToAuthUser() AuthUser {
	return AuthUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// NormalizeEmail is the comparison form used for the unique email constraint.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type AuthUser struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type AuthClaims struct {
	UserID    string    `json:"sub"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"role,omitempty"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// HasAnyRole matches role names case-insensitively.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, held := range c.Roles {
		for _, wanted := range roles {
			if strings.EqualFold(held, wanted) {
				return true
			}
		}
	}
	return false
}

type IssuedToken struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      AuthUser
}
