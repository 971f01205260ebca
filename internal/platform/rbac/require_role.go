// Package rbac enforces role requirements on HTTP routes using the policy engine.
package rbac

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/server/interceptors"
)

// Authorizer decides whether a caller's roles satisfy the required roles.
type Authorizer interface {
	Allow(ctx context.Context, roles, required []string) (bool, error)
}

// RequireRole returns middleware that admits authenticated callers holding one of roles.
// Anonymous callers get 401; callers lacking the role, or a failed policy evaluation, get 403.
func RequireRole(authz Authorizer, log *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, ok := interceptors.GetUserID(ctx)
			if !ok || userID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			allowed, err := authz.Allow(ctx, interceptors.GetRoles(ctx), roles)
			if err != nil {
				log.Error("rbac: policy evaluation failed", zap.String("user_id", userID), zap.Error(err))
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
