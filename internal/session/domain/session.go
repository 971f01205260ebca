package domain

import (
	"errors"
	"time"
)

var (
	// ErrSessionInvalid is returned when a presented token has no valid session record.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrStorageUnavailable wraps any failure or timeout of the session store.
	// Callers treat it as "not valid" when validating.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

// Session is the server-side record of one issued credential.
type Session struct {
	ID         string
	UserID     string
	Token      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsRevoked  bool
	RevokedAt  *time.Time // nil when not revoked
	DeviceInfo string
	IPAddress  string
}

// Valid reports whether the session is usable at now: not revoked and not yet expired.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && !s.IsRevoked && now.Before(s.ExpiresAt)
}

// Active returns the listing view of s. The token is never part of it.
func (s *Session) Active() ActiveSession {
	return ActiveSession{
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

// ActiveSession is the read-only view of a valid session returned to its owner.
type ActiveSession struct {
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
