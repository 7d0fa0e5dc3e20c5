package service

import (
	"net/http"
	"strings"

	"identity-api/pkg/apierror"
)

const (
	CodeInvalidRegistration = "INVALID_REGISTRATION"
	CodeRegistrationFailed  = "REGISTRATION_FAILED"
	CodeInvalidLogin        = "INVALID_LOGIN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeUnauthorized        = "UNAUTHORIZED"

	MsgInvalidRegistration = "Invalid registration data"
	MsgInvalidLogin        = "Invalid login data"
	MsgInvalidCredentials  = "Invalid email or password"
	MsgAccountLocked       = "Account locked due to multiple failed login attempts"
	MsgInvalidToken        = "invalid or expired token"
)

func errInvalidRegistration() *apierror.APIError {
	return apierror.New(CodeInvalidRegistration, MsgInvalidRegistration, "", http.StatusBadRequest)
}

func errRegistrationFailed(reasons []string) *apierror.APIError {
	return apierror.New(CodeRegistrationFailed, "Registration failed: "+strings.Join(reasons, ", "), "", http.StatusBadRequest)
}

func errInvalidLogin() *apierror.APIError {
	return apierror.New(CodeInvalidLogin, MsgInvalidLogin, "", http.StatusBadRequest)
}

func errInvalidCredentials() *apierror.APIError {
	return apierror.New(CodeInvalidCredentials, MsgInvalidCredentials, "", http.StatusUnauthorized)
}

func errAccountLocked() *apierror.APIError {
	return apierror.New(CodeAccountLocked, MsgAccountLocked, "", http.StatusUnauthorized)
}

func errInvalidToken() *apierror.APIError {
	return apierror.New(CodeUnauthorized, MsgInvalidToken, "", http.StatusUnauthorized)
}
