package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, mis-signed, expired or
	// issued for another issuer or audience. It is a routine outcome, not a fault.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned by NewTokenProvider when no signing secret is configured.
	ErrMissingSecret = errors.New("security: signing secret must be set")
	// ErrInvalidConfig is returned by NewTokenProvider for an empty issuer, audience or non-positive TTL.
	ErrInvalidConfig = errors.New("security: invalid token provider configuration")
)

// Claims holds the JWT claims carried by an access credential.
type Claims struct {
	jwt.RegisteredClaims
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// Subject is the identity a credential is issued for.
type Subject struct {
	ID       string
	Name     string
	Email    string
	FullName string
	Roles    []string
}

// TokenProvider issues and verifies HS256 access credentials. The signing secret
// lives in a memguard enclave and is only decrypted for the duration of a call.
type TokenProvider struct {
	secret   *memguard.Enclave
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with secret. The caller's slice is
// not modified. Returns ErrMissingSecret when secret is empty.
func NewTokenProvider(secret []byte, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if issuer == "" || audience == "" || ttl <= 0 {
		return nil, ErrInvalidConfig
	}
	// NewEnclave wipes its argument.
	buf := make([]byte, len(secret))
	copy(buf, secret)
	return &TokenProvider{
		secret:   memguard.NewEnclave(buf),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of p that reads the current time from now. Used by tests.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	cp := *p
	cp.now = now
	return &cp
}

// TTL returns the declared lifetime of issued credentials.
func (p *TokenProvider) TTL() time.Duration {
	return p.ttl
}

// Issue signs a credential for subject. Returns the compact token and its expiry.
func (p *TokenProvider) Issue(subject Subject) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject.ID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:     subject.Name,
		Email:    subject.Email,
		FullName: subject.FullName,
		Roles:    subject.Roles,
	}

	key, err := p.secret.Open()
	if err != nil {
		return "", time.Time{}, err
	}
	defer key.Destroy()

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses tokenString and checks signature, algorithm, issuer, audience and
// expiry with zero clock skew. Every failure is reported as ErrInvalidToken.
func (p *TokenProvider) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	key, err := p.secret.Open()
	if err != nil {
		return nil, ErrInvalidToken
	}
	defer key.Destroy()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key.Bytes(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
