package rbac

import (
	"context"
)

// Agent is the authenticated machine client of a request.
type Agent struct {
	ID    string
	Label string
	Role  Role
}

type agentKey struct{}

func WithAgent(ctx context.Context, a Agent) context.Context {
	return context.WithValue(ctx, agentKey{}, a)
}

func AgentFrom(ctx context.Context) (Agent, bool) {
	a, ok := ctx.Value(agentKey{}).(Agent)
	return a, ok && a.ID != ""
}
