package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// MemoryCredentialStore keeps users in process memory. It backs local
// development and tests; a single mutex makes every operation atomic.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]*types.User
	byEmail map[string]string
	now     Clock
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:    make(map[string]*types.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func cloneUser(u *types.User) *types.User {
	c := *u
	if u.ProfileImageRef != nil {
		ref := *u.ProfileImageRef
		c.ProfileImageRef = &ref
	}
	if u.ResetToken != nil {
		rt := *u.ResetToken
		c.ResetToken = &rt
	}
	return &c
}

func (s *MemoryCredentialStore) FindByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[types.NormalizeEmail(email)]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryCredentialStore) FindByID(_ context.Context, id string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) Create(_ context.Context, params types.NewUserParams) (*types.User, error) {
	email := types.NormalizeEmail(params.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
	}
	now := s.now().UTC()
	u := &types.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: params.DisplayName,
		SecretHash:  params.SecretHash,
		Role:        params.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if params.ProfileImageRef != nil {
		ref := *params.ProfileImageRef
		u.ProfileImageRef = &ref
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) UpdateProfile(_ context.Context, id string, params types.UpdateProfileParams) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if params.IsEmpty() {
		return cloneUser(u), nil
	}
	if params.Email != nil {
		email := types.NormalizeEmail(*params.Email)
		if owner, taken := s.byEmail[email]; taken && owner != id {
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		delete(s.byEmail, u.Email)
		u.Email = email
		s.byEmail[email] = id
	}
	if params.DisplayName != nil {
		u.DisplayName = *params.DisplayName
	}
	if params.SecretHash != nil {
		u.SecretHash = *params.SecretHash
	}
	if params.ProfileImageRef != nil {
		ref := *params.ProfileImageRef
		u.ProfileImageRef = &ref
	}
	u.UpdatedAt = s.now().UTC()
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return types.ErrNotFound
	}
	u.ResetToken = &types.ResetToken{TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (s *MemoryCredentialStore) ConsumeResetToken(_ context.Context, id, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || u.ResetToken == nil || u.ResetToken.TokenHash != tokenHash {
		return false, nil
	}
	u.ResetToken = nil
	return true, nil
}

func (s *MemoryCredentialStore) ClearExpiredResetToken(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || u.ResetToken == nil {
		return nil
	}
	if !u.ResetToken.ExpiresAt.After(now) {
		u.ResetToken = nil
	}
	return nil
}

func (s *MemoryCredentialStore) ListUsers(_ context.Context) ([]types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]types.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, *cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryCredentialStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return types.ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}
