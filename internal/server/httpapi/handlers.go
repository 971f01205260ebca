package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	auditdomain "kriptoproyek/backend/internal/audit/domain"
	"kriptoproyek/backend/internal/identity/service"
	"kriptoproyek/backend/internal/server/interceptors"
	sessiondomain "kriptoproyek/backend/internal/session/domain"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuthService is the identity service surface used by the HTTP handlers.
type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (string, error)
	Login(ctx context.Context, email, password string, client service.ClientInfo) (*service.LoginResult, error)
	Profile(ctx context.Context, userID string) (*service.Profile, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	Logout(ctx context.Context, userID, token string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	Sessions(ctx context.Context, userID string) ([]sessiondomain.ActiveSession, error)
}

// AuditReader lists a user's audit trail.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Roles     []string  `json:"roles"`
}

type profileResponse struct {
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
	Roles     []string  `json:"roles"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type revokedResponse struct {
	Message string `json:"message"`
	Revoked int    `json:"revoked"`
}

type auditEntry struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Handlers serves the auth and admin routes.
type Handlers struct {
	auth  AuthService
	audit AuditReader
	log   *zap.Logger
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.auth.Register(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "registration successful"})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, service.ClientInfo{
		DeviceInfo: r.UserAgent(),
		IPAddress:  interceptors.ClientIP(r.Context()),
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Email:     res.Email,
		FullName:  res.FullName,
		Roles:     nonNil(res.Roles),
	})
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	p, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Email:     p.Email,
		FullName:  p.FullName,
		CreatedAt: p.CreatedAt,
		Roles:     nonNil(p.Roles),
	})
}

func (h *Handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, _ := interceptors.GetUserID(r.Context())
	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed; sign in again"})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	token, _ := interceptors.GetToken(r.Context())
	if err := h.auth.Logout(r.Context(), userID, token); err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	n, err := h.auth.LogoutAll(r.Context(), userID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Message: "all sessions revoked", Revoked: n})
}

func (h *Handlers) sessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	h.writeSessions(w, r, userID)
}

func (h *Handlers) adminSessions(w http.ResponseWriter, r *http.Request) {
	h.writeSessions(w, r, chi.URLParam(r, "id"))
}

func (h *Handlers) adminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.LogoutAll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Message: "sessions revoked", Revoked: n})
}

func (h *Handlers) adminAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotImplemented, "audit log not configured")
		return
	}
	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil || limit <= 0 || limit > maxAuditLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}
	logs, err := h.audit.ListByUser(r.Context(), chi.URLParam(r, "id"), int32(limit), int32(offset))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	out := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditEntry{
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) writeSessions(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.auth.Sessions(r.Context(), userID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	if list == nil {
		list = []sessiondomain.ActiveSession{}
	}
	writeJSON(w, http.StatusOK, list)
}

// mapError translates service errors to responses. Storage faults are logged and
// reported as 503 without detail.
func (h *Handlers) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sessiondomain.ErrStorageUnavailable):
		h.log.Error("session store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
