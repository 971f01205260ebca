// Package httpapi serves the REST API: the session gate, claim authentication and the
// auth, session and admin routes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/health"
	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/platform/rbac"
	"kriptoproyek/backend/internal/server/interceptors"
	"kriptoproyek/backend/internal/telemetry"
	userdomain "kriptoproyek/backend/internal/user/domain"
)

// Deps holds what NewRouter wires into the HTTP API. Audit, Health, Events and Logger may be nil.
type Deps struct {
	Auth     AuthService
	Sessions interceptors.SessionValidator
	Tokens   interceptors.TokenVerifier
	Authz    rbac.Authorizer
	Audit    AuditReader
	Health   *health.Checker
	Events   telemetry.EventEmitter
	Logger   *zap.Logger
}

// NewRouter returns the API router. The session gate runs before claim authentication
// so a revoked or displaced credential is rejected even while its signature is valid.
func NewRouter(deps Deps) chi.Router {
	log := logger.OrNop(deps.Logger)
	h := &Handlers{auth: deps.Auth, audit: deps.Audit, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(ClientIP)
	r.Use(logger.RequestLogger(log))
	r.Use(Gate(deps.Sessions, log, deps.Events))
	r.Use(Authenticate(deps.Tokens))

	r.Get("/healthz", healthz(deps.Health, log))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Get("/profile", h.profile)
			r.Post("/change-password", h.changePassword)
			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/sessions", h.sessions)
		})
	})

	r.Route("/api/admin/users/{id}", func(r chi.Router) {
		r.Use(RequireAuth)
		r.Use(rbac.RequireRole(deps.Authz, log, userdomain.RoleAdmin))
		r.Get("/sessions", h.adminSessions)
		r.Post("/revoke-sessions", h.adminRevokeSessions)
		r.Get("/audit", h.adminAudit)
	})

	return r
}

func healthz(checker *health.Checker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.Check(r.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
