package repository

import (
	"context"

	"kriptoproyek/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	// ListByUser returns the user's audit logs newest first, paginated by limit and offset.
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
