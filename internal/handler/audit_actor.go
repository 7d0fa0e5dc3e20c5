package handler

import (
	"context"
	"net/http"

	"identity-api/internal/middleware"
	"identity-api/internal/service"
)

// auditContext carries the caller's address into the service's audit entries.
func auditContext(r *http.Request) context.Context {
	return service.WithClientIP(r.Context(), middleware.ClientIP(r))
}
