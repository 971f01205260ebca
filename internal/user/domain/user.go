package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Built-in roles seeded by the initial migration.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// User is the core user entity.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	return nil
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}
