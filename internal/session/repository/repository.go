package repository

import (
	"context"
	"time"

	"kriptoproyek/backend/internal/session/domain"
)

// Repository defines persistence for session records. Lookups that find nothing
// return (nil, nil); errors are reserved for storage failures.
type Repository interface {
	// FindActiveByUser returns the user's non-revoked sessions expiring after now, most recent first.
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// FindByToken returns the record whose token equals token. When more than one matches,
	// the most recently created wins.
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	// Insert persists s, assigning s.ID when empty.
	Insert(ctx context.Context, s *domain.Session) error
	// MarkRevoked revokes the given sessions that are not yet revoked and returns how many changed.
	MarkRevoked(ctx context.Context, ids []string, at time.Time) (int64, error)
	// RevokeAllByUser revokes every session of userID still valid at now and returns how many changed.
	RevokeAllByUser(ctx context.Context, userID string, now time.Time) (int64, error)
	// DeleteExpired removes every session with expiresAt <= now, revoked or not.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Transactor is implemented by stores that can run a group of operations for one user
// as a single serialized unit.
type Transactor interface {
	WithUserTx(ctx context.Context, userID string, fn func(Repository) error) error
}
