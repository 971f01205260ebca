package security

import "strings"

const bearerPrefix = "bearer "

// ParseBearer extracts the credential from an Authorization header value of the form
// "Bearer <token>". The scheme is matched case-insensitively. ok is false when the value
// does not use the Bearer scheme; a Bearer header with an empty token yields ("", true).
func ParseBearer(header string) (token string, ok bool) {
	v := strings.TrimSpace(header)
	if strings.EqualFold(v, strings.TrimSpace(bearerPrefix)) {
		return "", true
	}
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(v[len(bearerPrefix):]), true
}
