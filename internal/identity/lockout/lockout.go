// Package lockout counts failed sign-in attempts and locks an account once a threshold is reached.
package lockout

import (
	"context"
	"errors"
	"time"
)

// Defaults applied when a limiter is built with zero values.
const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 15 * time.Minute
)

// ErrInvalidConfig is returned for a negative attempt threshold or duration.
var ErrInvalidConfig = errors.New("lockout: invalid configuration")

// Limiter tracks failed attempts per key (a user id).
type Limiter interface {
	// Locked reports whether key is currently locked out.
	Locked(ctx context.Context, key string) (bool, error)
	// Fail records one failed attempt and reports whether it locked the key.
	Fail(ctx context.Context, key string) (bool, error)
	// Reset clears the failure count and any lock for key.
	Reset(ctx context.Context, key string) error
}

// Config controls the threshold and lock duration.
type Config struct {
	MaxAttempts int
	Duration    time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.MaxAttempts < 0 || c.Duration < 0 {
		return c, ErrInvalidConfig
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	return c, nil
}
