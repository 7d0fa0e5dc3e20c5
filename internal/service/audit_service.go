package service

import (
	"context"
	"log/slog"
	"time"

	"identity-api/internal/model"
)

type auditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

type AuditService struct {
	store auditStore
	now   func() time.Time
}

func NewAuditService(store auditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

// Log is best effort: a failed write is logged and never reaches the caller.
func (s *AuditService) Log(ctx context.Context, action string, actor model.AuditActor, status string, errText string) {
	if s == nil || s.store == nil {
		return
	}

	if actor.IP == "" {
		actor.IP = clientIPFromContext(ctx)
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now().UTC().Format(time.RFC3339Nano),
		Actor:      actor,
		Status:     status,
		Error:      errText,
	}

	if err := s.store.Log(ctx, entry); err != nil {
		slog.Error("audit write failed", "action", action, "status", status, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	return s.store.Query(ctx, query)
}
