package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records agent audit information.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.AgentID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// AgentCall is one authenticated agent request.
type AgentCall struct {
	Tool      string
	AgentID   string
	AgentRole string
	IP        string
	UserAgent string
	Method    string
	Path      string
	Status    int
}

func (s *Service) LogAgentCall(ctx context.Context, call AgentCall) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAgentCall,
		Tool:      call.Tool,
		AgentID:   call.AgentID,
		AgentRole: call.AgentRole,
		IPAddress: call.IP,
		UserAgent: call.UserAgent,
		Method:    call.Method,
		Path:      call.Path,
		Status:    call.Status,
	})
}

// LogKeyRevoked records an admin agent revoking another key.
func (s *Service) LogKeyRevoked(ctx context.Context, actorID, actorRole, ip, keyID string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAgentKeyRevoked,
		Tool:        "revoke_agent_key",
		AgentID:     actorID,
		AgentRole:   actorRole,
		IPAddress:   ip,
		TargetKeyID: keyID,
		Message:     "agent key revoked",
	})
}
