package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"kriptoproyek/backend/internal/user/domain"
)

// MemoryRepository keeps users in process memory. Used when no DATABASE_URL is configured and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := r.byEmail[key]; ok {
		return ErrEmailTaken
	}
	stored := cloneUser(u)
	slices.Sort(stored.Roles)
	r.byID[u.ID] = stored
	r.byEmail[key] = u.ID
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PasswordHash = hash
		u.UpdatedAt = at
	}
	return nil
}

func (r *MemoryRepository) AddRole(_ context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok || slices.Contains(u.Roles, role) {
		return nil
	}
	u.Roles = append(u.Roles, role)
	slices.Sort(u.Roles)
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	return &cp
}
