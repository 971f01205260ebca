package domain

import "time"

// Event types. Every event except grpc.request concerns the session lifecycle.
const (
	EventSessionIssued     = "session.issued"
	EventSessionRevoked    = "session.revoked"
	EventSessionRevokedAll = "session.revoked_all"
	EventSessionsSwept     = "session.swept"
	EventGateDenied        = "gate.denied"
	EventGRPCRequest       = "grpc.request"
)

// Event is a best-effort telemetry record about the session lifecycle.
type Event struct {
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
