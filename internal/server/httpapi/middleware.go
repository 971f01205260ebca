package httpapi

import (
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/security"
	"kriptoproyek/backend/internal/server/interceptors"
	sessiondomain "kriptoproyek/backend/internal/session/domain"
	"kriptoproyek/backend/internal/telemetry"
	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

// ClientIP records the caller address in the request context. Mount after
// middleware.RealIP so proxies' X-Forwarded-For and X-Real-IP are honored.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(interceptors.WithClientIP(r.Context(), ip)))
	})
}

// Gate rejects requests whose Bearer credential has no valid session record.
// Requests without an Authorization header, or with a non-Bearer one, pass through
// untouched. A valid credential also passes through unchanged; claims are attached
// later by Authenticate. events may be nil.
func Gate(v interceptors.SessionValidator, log *zap.Logger, events telemetry.EventEmitter) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := security.ParseBearer(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			err := v.Validate(r.Context(), token)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			reason := "invalid_session"
			if errors.Is(err, sessiondomain.ErrStorageUnavailable) {
				reason = "storage_unavailable"
				log.Warn("session gate: store unavailable, denying", zap.String("path", r.URL.Path), zap.Error(err))
			} else {
				log.Debug("session gate: denied", zap.String("path", r.URL.Path))
			}
			telemetry.EmitAsync(events, r.Context(), &telemetrydomain.Event{
				EventType: telemetrydomain.EventGateDenied,
				Source:    "http_gate",
				Metadata: map[string]string{
					"method":    r.Method,
					"path":      r.URL.Path,
					"reason":    reason,
					"client_ip": interceptors.ClientIP(r.Context()),
				},
			})
			writeUnauthorized(w)
		})
	}
}

// Authenticate verifies the Bearer credential's signature and claims and attaches the
// caller identity to the request context. It never rejects; RequireAuth does.
func Authenticate(tokens interceptors.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := security.ParseBearer(r.Header.Get("Authorization"))
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil || claims.Subject == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := interceptors.WithIdentity(r.Context(), claims.Subject, token, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that Authenticate did not attach an identity to.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := interceptors.GetUserID(r.Context()); !ok || id == "" {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
