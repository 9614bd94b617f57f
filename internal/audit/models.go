package audit

import "time"

// Event is an immutable, append-only audit log record of agent activity.
//
// Invariants:
// - Events are never updated or deleted.
// - agent_id is required; only authenticated agent calls are audited.
// - ip and user agent capture are best-effort; do not block agent calls on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// Tool is the agent tool or resource invoked (last path segment of the call).
	Tool string `json:"tool,omitempty"`

	AgentID   string `json:"agent_id"`
	AgentRole string `json:"agent_role,omitempty"`

	// IPAddress is the resolved client address, never a raw forwarding header.
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	Status int    `json:"status,omitempty"`

	// TargetKeyID is set for key management events.
	TargetKeyID string `json:"target_key_id,omitempty"`

	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeAgentCall       EventType = "agent_call"
	EventTypeAgentKeyRevoked EventType = "agent_key_revoked"
)
