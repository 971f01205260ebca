package domain

import "time"

// Audit actions recorded by the identity service.
const (
	ActionRegister        = "register"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionLoginLocked     = "login_locked"
	ActionLogout          = "logout"
	ActionLogoutAll       = "logout_all"
	ActionPasswordChanged = "password_changed"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
