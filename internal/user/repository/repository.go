package repository

import (
	"context"
	"errors"
	"time"

	"kriptoproyek/backend/internal/user/domain"
)

// ErrEmailTaken is returned by Create when another user already has the email (case-insensitive).
var ErrEmailTaken = errors.New("user: email already registered")

// Repository defines persistence for users and their role assignments.
type Repository interface {
	// GetByID returns the user for id with its roles, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create persists the user and its roles. The user must have ID set.
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	// AddRole grants role to the user; granting a held role is a no-op.
	AddRole(ctx context.Context, userID, role string) error
}
