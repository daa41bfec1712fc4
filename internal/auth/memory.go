package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fitapp.dev/internal/ids"
)

var _ CredentialStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CredentialStore. The refresh-token index keeps
// lookups by token O(1) and unambiguous.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*UserRecord
	byToken map[string]string // refresh token -> username
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*UserRecord),
		byToken: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("find by username", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return cloneRecord(u), nil
}

func (s *MemoryStore) FindByRefreshToken(ctx context.Context, token string) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("find by refresh token", err)
	}
	if token == "" {
		return UserRecord{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.byToken[token]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return cloneRecord(s.users[username]), nil
}

func (s *MemoryStore) Create(ctx context.Context, username, passwordHash string, roles Roles) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("create", err)
	}
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: roles are required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return UserRecord{}, ErrConflict
	}
	now := s.now().UTC()
	u := &UserRecord{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        NewRoles(roles...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[username] = u
	return cloneRecord(u), nil
}

func (s *MemoryStore) SetRefreshToken(ctx context.Context, username string, token *string) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("set refresh token", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	if token != nil && *token != "" {
		if owner, taken := s.byToken[*token]; taken && owner != username {
			return UserRecord{}, ErrConflict
		}
	}
	if u.RefreshToken != "" {
		delete(s.byToken, u.RefreshToken)
	}
	u.RefreshToken = ""
	if token != nil && *token != "" {
		u.RefreshToken = *token
		s.byToken[*token] = username
	}
	u.UpdatedAt = s.now().UTC()
	return cloneRecord(u), nil
}

func (s *MemoryStore) ClearRefreshToken(ctx context.Context, token string) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("clear refresh token", err)
	}
	if token == "" {
		return UserRecord{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.byToken[token]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	u := s.users[username]
	delete(s.byToken, token)
	u.RefreshToken = ""
	u.UpdatedAt = s.now().UTC()
	return cloneRecord(u), nil
}

func (s *MemoryStore) SetRoles(ctx context.Context, username string, roles Roles) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, storeError("set roles", err)
	}
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: roles are required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	u.Roles = NewRoles(roles...)
	u.UpdatedAt = s.now().UTC()
	return cloneRecord(u), nil
}

func cloneRecord(u *UserRecord) UserRecord {
	out := *u
	out.Roles = append(Roles(nil), u.Roles...)
	return out
}
