package middleware

import (
	"encoding/json"
	"net/http"

	"identity-api/internal/model"
)

func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.AuthResponse{
		Success: false,
		Message: message,
		Code:    code,
	})
}
