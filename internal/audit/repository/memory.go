package repository

import (
	"context"
	"sync"

	"kriptoproyek/backend/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AuditLog
	skipped := int32(0)
	for i := len(r.entries) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		if r.entries[i].UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		e := r.entries[i]
		out = append(out, &e)
	}
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *a)
	return nil
}
