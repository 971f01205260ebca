// Package health reports readiness of the database and the policy engine.
package health

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds one readiness check.
const DefaultTimeout = 2 * time.Second

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check policy engine readiness (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the configured probes. Nil probes are skipped.
type Checker struct {
	Pinger        Pinger
	PolicyChecker PolicyChecker
	Timeout       time.Duration
}

// Check returns nil when every configured probe succeeds.
func (c *Checker) Check(ctx context.Context) error {
	if c == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if c.Pinger != nil {
		if err := c.Pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.PolicyChecker != nil {
		if err := c.PolicyChecker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	return nil
}
