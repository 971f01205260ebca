package security

import "time"

// TestSecret is a fixed HMAC secret for unit tests only. Do not use in production.
const TestSecret = "test-secret-test-secret-test-secret-0123"

// NewTestTokenProvider returns a TokenProvider using TestSecret and a 15 minute TTL.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider([]byte(TestSecret), "test-issuer", "test-audience", 15*time.Minute)
}
