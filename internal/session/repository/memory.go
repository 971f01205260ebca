package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"kriptoproyek/backend/internal/session/domain"
)

// MemoryRepository keeps sessions in process memory. Used in tests and when no
// database is configured; contents are lost on restart.
type MemoryRepository struct {
	txSem    chan struct{}
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Transactor = (*MemoryRepository)(nil)
)

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		txSem:    make(chan struct{}, 1),
		sessions: make(map[string]*domain.Session),
	}
}

// WithUserTx runs fn while holding the repository's transaction lock. Waiting for the
// lock ends with ctx.
func (r *MemoryRepository) WithUserTx(ctx context.Context, _ string, fn func(Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case r.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.txSem }()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(r)
}

func (r *MemoryRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Valid(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *MemoryRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Session
	for _, s := range r.sessions {
		if s.Token == token && (found == nil || s.CreatedAt.After(found.CreatedAt)) {
			found = s
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	r.mu.Lock()
	r.sessions[s.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) MarkRevoked(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok && !s.IsRevoked {
			revokedAt := at
			s.IsRevoked = true
			s.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) RevokeAllByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.Valid(now) {
			revokedAt := now
			s.IsRevoked = true
			s.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, revoked and expired included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortByCreatedDesc(list []*domain.Session) {
	slices.SortStableFunc(list, func(a, b *domain.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
