package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"identity-api/internal/model"
)

// MemoryStore keeps users, role memberships and audit entries in process
// memory. A single mutex guards every map, so Update is atomic per user just
// like the row lock taken by the Postgres implementation.
type MemoryStore struct {
	mu            sync.Mutex
	usersByID     map[string]model.User
	idsByEmail    map[string]string
	idsByUsername map[string]string
	rolesByUser   map[string][]string
	audit         []model.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByID:     map[string]model.User{},
		idsByEmail:    map[string]string{},
		idsByUsername: map[string]string{},
		rolesByUser:   map[string][]string{},
	}
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.usersByID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.idsByEmail[model.NormalizeEmail(email)]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return s.usersByID[id], nil
}

func (s *MemoryStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.idsByUsername[usernameKey(username)]
	return exists, nil
}

func (s *MemoryStore) Create(_ context.Context, u model.User, roles ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := model.NormalizeEmail(u.Email)
	if _, exists := s.idsByEmail[emailKey]; exists {
		return model.ErrDuplicateEmail
	}
	nameKey := usernameKey(u.Username)
	if _, exists := s.idsByUsername[nameKey]; exists {
		return model.ErrDuplicateUsername
	}

	u.FailedAccessCount = 0
	u.LockoutEnd = nil
	u.LastLoginAt = nil
	s.usersByID[u.ID] = u
	s.idsByEmail[emailKey] = u.ID
	s.idsByUsername[nameKey] = u.ID

	held := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role != "" && !slices.Contains(held, role) {
			held = append(held, role)
		}
	}
	s.rolesByUser[u.ID] = held
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*model.User) error) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.usersByID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}

	u := current
	if err := mutate(&u); err != nil {
		return model.User{}, err
	}

	// Identity fields are fixed after creation.
	u.ID = current.ID
	u.Email = current.Email
	u.PasswordHash = current.PasswordHash
	u.CreatedAt = current.CreatedAt

	if oldKey, newKey := usernameKey(current.Username), usernameKey(u.Username); oldKey != newKey {
		if _, taken := s.idsByUsername[newKey]; taken {
			return model.User{}, model.ErrDuplicateUsername
		}
		delete(s.idsByUsername, oldKey)
		s.idsByUsername[newKey] = id
	}

	s.usersByID[id] = u
	return u, nil
}

func (s *MemoryStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles := s.rolesByUser[userID]
	out := make([]string, len(roles))
	copy(out, roles)
	return out, nil
}

func (s *MemoryStore) Log(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, entry)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)

	s.mu.Lock()
	matched := make([]model.AuditEntry, 0, len(s.audit))
	// Newest first.
	for i := len(s.audit) - 1; i >= 0; i-- {
		if matchesAuditQuery(s.audit[i], query) {
			matched = append(matched, s.audit[i])
		}
	}
	s.mu.Unlock()

	meta := pageMeta(query, len(matched))
	start := (query.Page - 1) * query.Limit
	if start >= len(matched) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+query.Limit, len(matched))

	return matched[start:end], meta, nil
}

func (s *MemoryStore) Health(context.Context) error {
	return nil
}

func matchesAuditQuery(entry model.AuditEntry, query model.AuditQuery) bool {
	if action := strings.TrimSpace(query.Action); action != "" && !strings.EqualFold(entry.Action, action) {
		return false
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" && entry.Actor.UserID != actorID {
		return false
	}
	if email := strings.TrimSpace(query.Email); email != "" && model.NormalizeEmail(entry.Actor.Email) != model.NormalizeEmail(email) {
		return false
	}
	if status := strings.TrimSpace(query.Status); status != "" && !strings.EqualFold(entry.Status, status) {
		return false
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		return true
	}
	if from, err := time.Parse(time.RFC3339, strings.TrimSpace(query.From)); err == nil && occurredAt.Before(from) {
		return false
	}
	if to, err := time.Parse(time.RFC3339, strings.TrimSpace(query.To)); err == nil && occurredAt.After(to) {
		return false
	}
	return true
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
