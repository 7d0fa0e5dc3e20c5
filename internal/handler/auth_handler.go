package handler

import (
	"encoding/json"
	"net/http"

	"identity-api/internal/middleware"
	"identity-api/internal/model"
	"identity-api/internal/service"
	"identity-api/pkg/apierror"
)

const (
	msgRegistered = "User registered successfully"
	msgLoggedIn   = "Login successful"
)

// maxAuthBodyBytes bounds register/login payloads.
const maxAuthBodyBytes = 1 << 16

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)).Decode(&payload); err != nil {
		writeError(w, apierror.New(service.CodeInvalidRegistration, service.MsgInvalidRegistration, "", http.StatusBadRequest))
		return
	}

	user, err := h.service.Register(auditContext(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AuthResponse{
		Success:  true,
		Message:  msgRegistered,
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)).Decode(&payload); err != nil {
		writeError(w, apierror.New(service.CodeInvalidLogin, service.MsgInvalidLogin, "", http.StatusBadRequest))
		return
	}

	result, err := h.service.Login(auditContext(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	expiresAt := result.ExpiresAt
	writeJSON(w, http.StatusOK, model.AuthResponse{
		Success:   true,
		Message:   msgLoggedIn,
		Token:     result.Token,
		ExpiresAt: &expiresAt,
		UserID:    result.User.ID,
		Email:     result.User.Email,
		Username:  result.User.Username,
	})
}

// Me echoes the verified identity behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	expiresAt := claims.ExpiresAt
	writeJSON(w, http.StatusOK, model.AuthResponse{
		Success:   true,
		ExpiresAt: &expiresAt,
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Data:      claims,
	})
}
