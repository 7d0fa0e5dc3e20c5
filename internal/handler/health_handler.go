package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"identity-api/internal/model"
	"identity-api/pkg/apierror"
)

type pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	store pinger
}

func NewHealthHandler(store pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		writeError(w, apierror.New("SERVICE_UNAVAILABLE", "Store unavailable", "", http.StatusServiceUnavailable))
		return
	}

	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, Message: "ok"})
}
